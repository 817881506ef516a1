package service

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/disintegration/imaging"
	"github.com/klauspost/compress/zstd"
	"github.com/oklog/ulid"
	"golang.org/x/sync/singleflight"

	"github.com/yeisme/agrivault/pkg/internal/model"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
	"github.com/yeisme/agrivault/pkg/metrics"
)

// CleanupService 分级回收：缓存清空 → 旧照片有损压缩 → 旧记录归档.
// 每级结束后复查用量，降到滞回目标即停；受保护的条目在任何一级都不动.
type CleanupService struct{ *EngineService }

func NewCleanupService(c context.Context) *CleanupService {
	return &CleanupService{NewEngineService(c)}
}

// 照片重压缩的 JPEG 质量.
const photoJPEGQuality = 60

// cleanupGroup 保证同一范围的清理同时只跑一次，并发调用共享同一结果.
var cleanupGroup singleflight.Group

var (
	zstdEncOnce sync.Once
	zstdEnc     *zstd.Encoder
	zstdDecOnce sync.Once
	zstdDec     *zstd.Decoder
)

func archiveCompress(data []byte) []byte {
	zstdEncOnce.Do(func() {
		zstdEnc, _ = zstd.NewWriter(nil)
	})

	return zstdEnc.EncodeAll(data, nil)
}

func archiveDecompress(data []byte) ([]byte, error) {
	zstdDecOnce.Do(func() {
		zstdDec, _ = zstd.NewReader(nil)
	})

	return zstdDec.DecodeAll(data, nil)
}

// PerformSmartCleanup 执行一轮智能清理. user 为空表示整机.
//
// 用量低于触发阈值且未强制时直接返回"无需清理"且无副作用.
// 清理过程不向调用方抛原始 I/O 错误：跑不下去时返回 Success=false 加说明.
func (s *CleanupService) PerformSmartCleanup(ctx context.Context, user string, force bool) types.CleanupResult {
	// 清理结果被并发调用方共享，不能随首个请求的取消而中途夭折
	runCtx := context.WithoutCancel(ctx)

	v, _, _ := cleanupGroup.Do("cleanup:"+user, func() (any, error) {
		return s.runCleanup(runCtx, user, force), nil
	})

	result, ok := v.(types.CleanupResult)
	if !ok {
		return types.CleanupResult{Success: false, Message: "internal error"}
	}

	return result
}

func (s *CleanupService) runCleanup(ctx context.Context, user string, force bool) types.CleanupResult {
	statsSvc := &StatsService{s.EngineService}

	stats := statsSvc.StorageStats(ctx, user)
	if !force && !stats.NeedsCleanup {
		return types.CleanupResult{Success: false, BytesFreed: 0, Message: "No cleanup needed"}
	}

	mode := "auto"
	if force {
		mode = "forced"
	}

	protected, err := (&ProtectionService{s.EngineService}).ProtectedDataIDs(ctx, user)
	if err != nil {
		logPkg.Logger().Error().Err(err).Msg("protected set unavailable, cleanup aborted")
		return types.CleanupResult{Success: false, Message: "Cleanup skipped: unsynced data state unknown"}
	}

	atTarget := func() bool {
		return statsSvc.StorageStats(ctx, user).UsagePercentage <= s.quota.CleanupTargetPercent
	}

	var freed int64

	freed += s.clearCache(ctx, user, protected)

	if !atTarget() {
		freed += s.compressOldPhotos(ctx, user, protected)
	}

	if !atTarget() {
		freed += s.archiveOldRecords(ctx, user, protected)
	}

	if freed > 0 {
		stamp := s.now().UTC().Format(time.RFC3339)
		if err := s.kvClient.Set(ctx, lastCleanupKey, []byte(stamp), 0); err != nil {
			logPkg.Logger().Warn().Err(err).Msg("persist last cleanup timestamp failed")
		}
	}

	metrics.CleanupRuns.WithLabelValues(mode).Inc()
	logPkg.Logger().Info().
		Str("mode", mode).
		Str("user", user).
		Int64("bytes_freed", freed).
		Msg("cleanup finished")

	return types.CleanupResult{
		Success:    true,
		BytesFreed: freed,
		Message:    fmt.Sprintf("Freed %d bytes", freed),
	}
}

// LastCleanupAt 最近一次实际清理的时间；从未清理返回 ok=false.
func (s *CleanupService) LastCleanupAt(ctx context.Context) (time.Time, bool) {
	data, err := s.kvClient.Get(ctx, lastCleanupKey)
	if err != nil {
		return time.Time{}, false
	}

	t, err := time.Parse(time.RFC3339, string(data))
	if err != nil {
		return time.Time{}, false
	}

	return t, true
}

// clearCache 第一级：清空未受保护的缓存条目. 缓存可再生，优先级最高.
func (s *CleanupService) clearCache(ctx context.Context, user string, protected map[string]struct{}) int64 {
	items, err := s.itemsByCategory(ctx, user, []types.DataCategory{types.CategoryCache}, time.Time{})
	if err != nil {
		logPkg.Logger().Warn().Err(err).Msg("cache stage skipped")
		return 0
	}

	var freed int64

	for _, item := range items {
		if _, ok := protected[item.ID]; ok {
			continue
		}

		if err := s.dropItem(ctx, item); err != nil {
			logPkg.Logger().Warn().Str("id", item.ID).Err(err).Msg("cache entry removal failed")
			continue
		}

		freed += item.SizeBytes
	}

	metrics.BytesFreed.WithLabelValues("cache").Add(float64(freed))

	return freed
}

// compressOldPhotos 第二级：对超过压缩年龄且未压缩过的照片做一次性有损压缩.
// Compressed 标记保证幂等；标记丢失时用内容指纹兜底.
func (s *CleanupService) compressOldPhotos(ctx context.Context, user string, protected map[string]struct{}) int64 {
	cutoff := s.now().AddDate(0, 0, -s.quota.PhotoCompressAgeDays)

	var items []model.Item

	dbx := s.dbClient.GetDB().WithContext(ctx).
		Where("category = ? AND compressed = ? AND updated_at < ?", types.CategoryPhotos, false, cutoff)
	if user != "" {
		dbx = dbx.Where("user = ?", user)
	}

	if err := dbx.Find(&items).Error; err != nil {
		logPkg.Logger().Warn().Err(err).Msg("photo stage skipped")
		return 0
	}

	var freed int64

	for _, item := range items {
		if _, ok := protected[item.ID]; ok {
			continue
		}

		saved, err := s.compressPhoto(ctx, item)
		if err != nil {
			logPkg.Logger().Warn().Str("id", item.ID).Err(err).Msg("photo compression failed")
			continue
		}

		freed += saved
	}

	metrics.BytesFreed.WithLabelValues("photos").Add(float64(freed))

	return freed
}

func (s *CleanupService) compressPhoto(ctx context.Context, item model.Item) (int64, error) {
	name := areaEntryName(item.User, item.ID)

	data, err := s.areas.ReadFile(areas.KindPhotos, name)
	if err != nil {
		return 0, fmt.Errorf("read photo: %w", err)
	}

	// 标记丢失但内容已是压缩产物：补标记，不再重压
	if item.Fingerprint != 0 && xxhash.Sum64(data) == item.Fingerprint {
		return 0, s.markCompressed(ctx, item.ID, int64(len(data)), item.Fingerprint)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("decode photo: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(photoJPEGQuality)); err != nil {
		return 0, fmt.Errorf("encode photo: %w", err)
	}

	// 重编码反而变大时保留原图，但仍记一次性压缩已做过
	if int64(buf.Len()) >= item.SizeBytes {
		return 0, s.markCompressed(ctx, item.ID, item.SizeBytes, xxhash.Sum64(data))
	}

	if err := s.areas.WriteFile(areas.KindPhotos, name, buf.Bytes()); err != nil {
		return 0, fmt.Errorf("write photo: %w", err)
	}

	newSize := int64(buf.Len())
	if err := s.markCompressed(ctx, item.ID, newSize, xxhash.Sum64(buf.Bytes())); err != nil {
		return 0, err
	}

	return item.SizeBytes - newSize, nil
}

func (s *CleanupService) markCompressed(ctx context.Context, id string, size int64, fingerprint uint64) error {
	return s.dbClient.GetDB().WithContext(ctx).Model(&model.Item{}).
		Where("id = ?", id).
		Updates(map[string]any{"size_bytes": size, "compressed": true, "fingerprint": fingerprint}).Error
}

// archiveOldRecords 第三级：把超过归档年龄的结构化记录移出活跃表.
// 记录序列化后 zstd 压缩，以 ULID 命名存进归档区，活跃行删除.
func (s *CleanupService) archiveOldRecords(ctx context.Context, user string, protected map[string]struct{}) int64 {
	cutoff := s.now().AddDate(0, 0, -s.quota.ArchiveAgeDays)

	recordCategories := []types.DataCategory{
		types.CategoryJournalEntries,
		types.CategoryAnimals,
		types.CategoryWeights,
	}

	items, err := s.itemsByCategory(ctx, user, recordCategories, cutoff)
	if err != nil {
		logPkg.Logger().Warn().Err(err).Msg("archive stage skipped")
		return 0
	}

	var freed int64

	for _, item := range items {
		if _, ok := protected[item.ID]; ok {
			continue
		}

		if err := s.archiveItem(ctx, item); err != nil {
			logPkg.Logger().Warn().Str("id", item.ID).Err(err).Msg("archival failed")
			continue
		}

		freed += item.SizeBytes
	}

	metrics.BytesFreed.WithLabelValues("archive").Add(float64(freed))

	return freed
}

func (s *CleanupService) archiveItem(ctx context.Context, item model.Item) error {
	payload, err := sonic.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	blobKey := ulid.MustNew(ulid.Now(), crand.Reader).String()

	if err := s.areas.WriteFile(areas.KindArchive, areaEntryName(item.User, blobKey), archiveCompress(payload)); err != nil {
		return fmt.Errorf("write archive blob: %w", err)
	}

	archived := model.ArchivedItem{
		ID:           item.ID,
		User:         item.User,
		Category:     item.Category,
		OriginalSize: item.SizeBytes,
		BlobKey:      blobKey,
		ArchivedAt:   s.now(),
	}

	dbx := s.dbClient.GetDB().WithContext(ctx)
	if err := dbx.Create(&archived).Error; err != nil {
		return fmt.Errorf("index archive: %w", err)
	}

	if err := dbx.Delete(&model.Item{}, "id = ?", item.ID).Error; err != nil {
		return fmt.Errorf("remove active record: %w", err)
	}

	_ = s.kvClient.Delete(ctx, accessKey(item.User, types.DataCategory(item.Category), item.ID))

	return nil
}

// ArchivedRecord 读回一条已归档记录（解压归档区的 zstd 块）.
func (s *CleanupService) ArchivedRecord(ctx context.Context, id string) (model.Item, error) {
	var archived model.ArchivedItem
	if err := s.dbClient.GetDB().WithContext(ctx).First(&archived, "id = ?", id).Error; err != nil {
		return model.Item{}, fmt.Errorf("archive index: %w", err)
	}

	blob, err := s.areas.ReadFile(areas.KindArchive, areaEntryName(archived.User, archived.BlobKey))
	if err != nil {
		return model.Item{}, fmt.Errorf("read archive blob: %w", err)
	}

	payload, err := archiveDecompress(blob)
	if err != nil {
		return model.Item{}, fmt.Errorf("decompress archive blob: %w", err)
	}

	var item model.Item
	if err := sonic.Unmarshal(payload, &item); err != nil {
		return model.Item{}, fmt.Errorf("decode archived record: %w", err)
	}

	return item, nil
}

// EnforceRetention 按用户年龄档位删除超期数据（未成年保留期更短）.
// 未同步的条目即使超期也先留着，等同步完成后的下一轮再删.
func (s *CleanupService) EnforceRetention(ctx context.Context) (int64, error) {
	users, err := s.knownUsers(ctx)
	if err != nil {
		return 0, err
	}

	var freed int64

	for _, user := range users {
		tier := s.ageTier(ctx, user)
		cutoff := s.now().AddDate(0, 0, -tier.RetentionDays)

		unsynced := make(map[string]struct{})

		for _, cat := range types.DataCategories {
			ids, err := s.syncState.UnsyncedIDs(ctx, user, cat)
			if err != nil {
				logPkg.Logger().Warn().Str("user", user).Err(err).Msg("retention skipped for user, sync state unknown")
				unsynced = nil

				break
			}

			for _, id := range ids {
				unsynced[id] = struct{}{}
			}
		}

		if unsynced == nil {
			continue
		}

		var items []model.Item
		if err := s.dbClient.GetDB().WithContext(ctx).
			Where("user = ? AND created_at < ?", user, cutoff).
			Find(&items).Error; err != nil {
			logPkg.Logger().Warn().Str("user", user).Err(err).Msg("retention scan failed")
			continue
		}

		for _, item := range items {
			if _, ok := unsynced[item.ID]; ok {
				continue
			}

			if err := s.dropItem(ctx, item); err != nil {
				logPkg.Logger().Warn().Str("id", item.ID).Err(err).Msg("retention removal failed")
				continue
			}

			freed += item.SizeBytes
		}
	}

	return freed, nil
}

// itemsByCategory 查指定分类的条目；cutoff 非零时只取更早创建的.
func (s *EngineService) itemsByCategory(ctx context.Context, user string, categories []types.DataCategory, cutoff time.Time) ([]model.Item, error) {
	var items []model.Item

	dbx := s.dbClient.GetDB().WithContext(ctx).Where("category IN ?", categories)
	if user != "" {
		dbx = dbx.Where("user = ?", user)
	}

	if !cutoff.IsZero() {
		dbx = dbx.Where("created_at < ?", cutoff)
	}

	if err := dbx.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	return items, nil
}

// dropItem 删除条目的记账行、文件与访问记录.
func (s *EngineService) dropItem(ctx context.Context, item model.Item) error {
	if err := s.dbClient.GetDB().WithContext(ctx).Delete(&model.Item{}, "id = ?", item.ID).Error; err != nil {
		return err
	}

	cat := types.DataCategory(item.Category)
	if cat.IsFileBacked() {
		kind := areas.KindCache
		if cat == types.CategoryPhotos {
			kind = areas.KindPhotos
		}

		if err := s.areas.Remove(kind, areaEntryName(item.User, item.ID)); err != nil {
			logPkg.Logger().Warn().Str("id", item.ID).Err(err).Msg("area file removal failed")
		}
	}

	_ = s.kvClient.Delete(ctx, accessKey(item.User, cat, item.ID))

	return nil
}

// knownUsers 记账表中出现过数据的用户列表.
func (s *EngineService) knownUsers(ctx context.Context) ([]string, error) {
	var users []string
	if err := s.dbClient.GetDB().WithContext(ctx).Model(&model.Item{}).
		Distinct().Pluck("user", &users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return users, nil
}
