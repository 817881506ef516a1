package service

import (
	"context"
	"fmt"
	"time"

	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
)

// AdvisorService 主动清理建议. 只读，各分类都在合理范围时返回空列表.
type AdvisorService struct{ *EngineService }

func NewAdvisorService(c context.Context) *AdvisorService {
	return &AdvisorService{NewEngineService(c)}
}

// CleanupRecommendations 生成当前值得做的清理建议.
//
//   - 缓存超过绝对下限 → 高收益（可无损清空）
//   - 照片用量达到其配额的阈值比例 → 中等收益（压缩旧照片）
//   - 可归档的旧记录聚合超过下限 → 低收益（移入归档）
func (s *AdvisorService) CleanupRecommendations(ctx context.Context, user string) []types.CleanupRecommendation {
	quota := s.loadQuota(ctx)
	stats := (&StatsService{s.EngineService}).StorageStats(ctx, user)

	recs := make([]types.CleanupRecommendation, 0, 3)

	var cacheSize, photoSize int64

	for _, c := range stats.Categories {
		switch c.Category {
		case types.CategoryCache:
			cacheSize = c.Size
		case types.CategoryPhotos:
			photoSize = c.Size
		}
	}

	if cacheSize > s.quota.CacheRecommendFloor {
		recs = append(recs, types.CleanupRecommendation{
			Type:        types.RecommendCache,
			Impact:      types.ImpactHigh,
			Description: fmt.Sprintf("Cache holds %s of regenerable data that can be cleared safely", formatBytes(cacheSize)),
		})
	}

	if quota.PhotoLimit > 0 && photoSize*100 >= int64(s.quota.PhotoRecommendPercent)*quota.PhotoLimit {
		recs = append(recs, types.CleanupRecommendation{
			Type:        types.RecommendPhotos,
			Impact:      types.ImpactMedium,
			Description: fmt.Sprintf("Photos use %d%% of their budget; compressing photos older than %d days frees space", usagePercent(photoSize, quota.PhotoLimit), s.quota.PhotoCompressAgeDays),
		})
	}

	if old := s.archivableBytes(ctx, user); old > s.quota.ArchiveRecommendFloor {
		recs = append(recs, types.CleanupRecommendation{
			Type:        types.RecommendArchive,
			Impact:      types.ImpactLow,
			Description: fmt.Sprintf("Records older than %d days total %s and can be archived", s.quota.ArchiveAgeDays, formatBytes(old)),
		})
	}

	return recs
}

// archivableBytes 超过归档年龄且近期未被访问的结构化记录总量.
func (s *AdvisorService) archivableBytes(ctx context.Context, user string) int64 {
	cutoff := s.now().AddDate(0, 0, -s.quota.ArchiveAgeDays)

	recordCategories := []types.DataCategory{
		types.CategoryJournalEntries,
		types.CategoryAnimals,
		types.CategoryWeights,
	}

	items, err := s.itemsByCategory(ctx, user, recordCategories, cutoff)
	if err != nil {
		logPkg.Logger().Warn().Err(err).Msg("archivable scan failed")
		return 0
	}

	window := time.Duration(s.quota.ProtectionWindowDays) * 24 * time.Hour
	protection := &ProtectionService{s.EngineService}

	var total int64

	for _, item := range items {
		if protection.RecentlyAccessed(ctx, item.User, types.DataCategory(item.Category), item.ID, window) {
			continue
		}

		total += item.SizeBytes
	}

	return total
}

func formatBytes(n int64) string {
	const mb = 1 << 20
	if n >= mb {
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	}

	return fmt.Sprintf("%d KB", n/(1<<10))
}
