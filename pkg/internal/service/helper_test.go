package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yeisme/agrivault/pkg/configs"
	ctxPkg "github.com/yeisme/agrivault/pkg/context"
	"github.com/yeisme/agrivault/pkg/internal/model"
	"github.com/yeisme/agrivault/pkg/internal/service"
	"github.com/yeisme/agrivault/pkg/internal/storage"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	dbc "github.com/yeisme/agrivault/pkg/internal/storage/db"
	kvc "github.com/yeisme/agrivault/pkg/internal/storage/kv"
	"github.com/yeisme/agrivault/pkg/internal/types"
)

const testMB = 1 << 20

// testNow 测试用的固定"现在".
var testNow = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	ctx context.Context
	mgr *storage.Manager
	now time.Time
}

func (e *testEnv) clock() time.Time { return e.now }

// setupEnv 组装内存版存储：内存 sqlite 记账库 + 内存 KV + MemMapFs 文件区，
// 并把全局配额策略重置为出厂默认.
func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	if err := gdb.AutoMigrate(&model.Item{}, &model.ArchivedItem{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mem, err := kvc.NewKVStore(context.Background(), kvc.KVTypeMemory, nil)
	if err != nil {
		t.Fatalf("memory kv: %v", err)
	}

	ar, err := areas.NewWithFs(afero.NewMemMapFs(), "areas")
	if err != nil {
		t.Fatalf("areas: %v", err)
	}

	mgr := &storage.Manager{
		DB:    &dbc.Client{DB: gdb},
		KV:    &kvc.Client{KVStore: mem},
		Areas: ar,
	}

	resetQuotaConfig()

	return &testEnv{
		ctx: ctxPkg.WithStorageManager(context.Background(), mgr),
		mgr: mgr,
		now: testNow,
	}
}

func resetQuotaConfig() {
	configs.GetConfig().Quota = configs.QuotaConfig{
		DefaultTotalLimit: configs.DefaultTotalLimit,
		DefaultPhotoLimit: configs.DefaultPhotoLimit,
		DefaultDataLimit:  configs.DefaultDataLimit,
		DefaultCacheLimit: configs.DefaultCacheLimit,

		CleanupTriggerPercent: configs.DefaultCleanupTriggerPercent,
		WarningPercent:        configs.DefaultWarningPercent,
		CleanupTargetPercent:  configs.DefaultCleanupTargetPercent,

		ProtectionWindowDays: configs.DefaultProtectionWindowDays,
		PhotoCompressAgeDays: configs.DefaultPhotoCompressAgeDays,
		ArchiveAgeDays:       configs.DefaultArchiveAgeDays,

		MinorAgeThreshold:  configs.DefaultMinorAgeThreshold,
		MinorTotalLimit:    configs.DefaultMinorTotalLimit,
		MinorRetentionDays: configs.DefaultMinorRetention,
		AdultRetentionDays: configs.DefaultAdultRetention,

		DeviceReserveBytes: configs.DefaultDeviceReserve,

		CacheRecommendFloor:   configs.DefaultCacheRecFloor,
		ArchiveRecommendFloor: configs.DefaultArchiveRecFloor,
		PhotoRecommendPercent: configs.DefaultPhotoRecPercent,
	}
}

// seedItem 直接落一行记账记录，时间戳取 env.now（可先拨动时钟制造旧数据）.
func (e *testEnv) seedItem(t *testing.T, user string, category types.DataCategory, id string, size int64) {
	t.Helper()

	item := model.Item{
		ID:        id,
		User:      user,
		Category:  string(category),
		SizeBytes: size,
		CreatedAt: e.now,
		UpdatedAt: e.now,
	}
	if err := e.mgr.DB.GetDB().Create(&item).Error; err != nil {
		t.Fatalf("seed item %s: %v", id, err)
	}
}

// seedFile 落一行记账记录并在文件区写入对应内容.
func (e *testEnv) seedFile(t *testing.T, user string, category types.DataCategory, id string, data []byte) {
	t.Helper()

	kind := areas.KindCache
	if category == types.CategoryPhotos {
		kind = areas.KindPhotos
	}

	if err := e.mgr.Areas.WriteFile(kind, user+"/"+id, data); err != nil {
		t.Fatalf("seed file %s: %v", id, err)
	}

	e.seedItem(t, user, category, id, int64(len(data)))
}

// markUnsynced 往默认同步端口读取的 KV 清单里登记未同步 id.
func (e *testEnv) markUnsynced(t *testing.T, user string, category types.DataCategory, ids ...string) {
	t.Helper()

	payload := "["
	for i, id := range ids {
		if i > 0 {
			payload += ","
		}

		payload += fmt.Sprintf("%q", id)
	}

	payload += "]"

	key := "sync:unsynced:" + user + ":" + string(category)
	if err := e.mgr.KV.Set(context.Background(), key, []byte(payload), 0); err != nil {
		t.Fatalf("mark unsynced: %v", err)
	}
}

// setBirthDate 往默认身份端口读取的 KV 键里写出生日期.
func (e *testEnv) setBirthDate(t *testing.T, user string, birth time.Time) {
	t.Helper()

	key := "profile:birthdate:" + user
	if err := e.mgr.KV.Set(context.Background(), key, []byte(birth.Format("2006-01-02")), 0); err != nil {
		t.Fatalf("set birth date: %v", err)
	}
}

func (e *testEnv) itemExists(t *testing.T, id string) bool {
	t.Helper()

	var count int64
	if err := e.mgr.DB.GetDB().Model(&model.Item{}).Where("id = ?", id).Count(&count).Error; err != nil {
		t.Fatalf("count item: %v", err)
	}

	return count > 0
}

// 端口桩.

type stubSync struct {
	ids map[string][]string // user → ids（与分类无关）
	err error
}

func (s *stubSync) UnsyncedIDs(_ context.Context, user string, category types.DataCategory) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}

	if category != types.CategoryJournalEntries {
		return nil, nil
	}

	return s.ids[user], nil
}

type stubProbe struct {
	free int64
	err  error
}

func (s *stubProbe) FreeBytes(context.Context) (int64, error) { return s.free, s.err }

// newStats 等构造器：统一注入测试时钟.
func (e *testEnv) newStats() *service.StatsService {
	s := service.NewStatsService(e.ctx)
	s.WithClock(e.clock)

	return s
}

func (e *testEnv) newQuota() *service.QuotaService {
	s := service.NewQuotaService(e.ctx)
	s.WithClock(e.clock)

	return s
}

func (e *testEnv) newGate() *service.GateService {
	s := service.NewGateService(e.ctx)
	s.WithClock(e.clock)

	return s
}

func (e *testEnv) newCleanup() *service.CleanupService {
	s := service.NewCleanupService(e.ctx)
	s.WithClock(e.clock)

	return s
}

func (e *testEnv) newAdvisor() *service.AdvisorService {
	s := service.NewAdvisorService(e.ctx)
	s.WithClock(e.clock)

	return s
}

func (e *testEnv) newProfile() *service.ProfileService {
	s := service.NewProfileService(e.ctx)
	s.WithClock(e.clock)

	return s
}

func (e *testEnv) newAccess() *service.AccessService {
	s := service.NewAccessService(e.ctx)
	s.WithClock(e.clock)

	return s
}
