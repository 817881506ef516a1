package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/yeisme/agrivault/pkg/internal/storage/kv"
	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
	"github.com/yeisme/agrivault/pkg/rule"
)

// QuotaService 管理各分类的字节预算：加载/持久化、默认值、部分更新.
type QuotaService struct{ *EngineService }

func NewQuotaService(c context.Context) *QuotaService { return &QuotaService{NewEngineService(c)} }

// lastKnownQuota 最近一次成功读取/写入的配额快照. KV 读写失败时回退到它，
// 保证配额逻辑在持久层故障下仍能给出确定答案.
var (
	lastKnownQuota   types.QuotaSet
	lastKnownQuotaOK bool
	lastKnownQuotaMu sync.RWMutex
)

func rememberQuota(q types.QuotaSet) {
	lastKnownQuotaMu.Lock()
	lastKnownQuota = q
	lastKnownQuotaOK = true
	lastKnownQuotaMu.Unlock()
}

func recallQuota() (types.QuotaSet, bool) {
	lastKnownQuotaMu.RLock()
	defer lastKnownQuotaMu.RUnlock()

	return lastKnownQuota, lastKnownQuotaOK
}

// defaultQuota 配置给出的出厂预算.
func (s *EngineService) defaultQuota() types.QuotaSet {
	return types.QuotaSet{
		TotalLimit: s.quota.DefaultTotalLimit,
		PhotoLimit: s.quota.DefaultPhotoLimit,
		DataLimit:  s.quota.DefaultDataLimit,
		CacheLimit: s.quota.DefaultCacheLimit,
	}
}

// loadQuota 读当前生效的配额. KV 未命中返回默认值（不写入）；
// KV 故障回退到内存快照，再回退到默认值.
func (s *EngineService) loadQuota(ctx context.Context) types.QuotaSet {
	data, err := s.kvClient.Get(ctx, quotaConfigKey)
	if err != nil {
		if !errors.Is(err, kv.ErrKeyNotFound) {
			logPkg.Logger().Warn().Err(err).Msg("quota config unreadable, using last known values")

			if q, ok := recallQuota(); ok {
				return q
			}
		}

		return s.defaultQuota()
	}

	var q types.QuotaSet
	if err := sonic.Unmarshal(data, &q); err != nil {
		logPkg.Logger().Warn().Err(err).Msg("quota config corrupt, using last known values")

		if prev, ok := recallQuota(); ok {
			return prev
		}

		return s.defaultQuota()
	}

	rememberQuota(q)

	return q
}

// persistQuota 持久化配额并刷新内存快照. KV 写失败只记日志，
// 新值仍通过快照对本进程生效.
func (s *EngineService) persistQuota(ctx context.Context, q types.QuotaSet) {
	rememberQuota(q)

	data, err := sonic.Marshal(q)
	if err != nil {
		logPkg.Logger().Error().Err(err).Msg("encode quota config")
		return
	}

	if err := s.kvClient.Set(ctx, quotaConfigKey, data, 0); err != nil {
		logPkg.Logger().Warn().Err(err).Msg("persist quota config failed, in-memory value stays active")
	}
}

// Initialize 启动初始化：首轮写入默认配额，然后做一次用量评估，
// 已超过触发阈值时立即跑一轮清理. 幂等，重复调用只重查用量.
func (s *QuotaService) Initialize(ctx context.Context) error {
	exists, err := s.kvClient.Exists(ctx, quotaConfigKey)
	if err != nil {
		logPkg.Logger().Warn().Err(err).Msg("quota config probe failed, assuming first run")
	}

	if !exists {
		s.persistQuota(ctx, s.defaultQuota())
		logPkg.Logger().Info().Msg("storage quotas initialized with defaults")
	} else {
		// 预热内存快照
		_ = s.loadQuota(ctx)
	}

	stats := (&StatsService{s.EngineService}).StorageStats(ctx, "")
	if stats.NeedsCleanup {
		result := (&CleanupService{s.EngineService}).PerformSmartCleanup(ctx, "", false)
		logPkg.Logger().Info().
			Int64("bytes_freed", result.BytesFreed).
			Str("message", result.Message).
			Msg("initial usage over trigger, cleanup executed")
	}

	return nil
}

// SetStorageQuotas 部分更新：nil 字段保持原值，非正值拒绝且不改动任何字段.
// 成功后立即持久化并返回合并后的配额.
func (s *QuotaService) SetStorageQuotas(ctx context.Context, update types.QuotaUpdate) (types.QuotaSet, error) {
	current := s.loadQuota(ctx)

	merged := current
	if update.TotalLimit != nil {
		merged.TotalLimit = *update.TotalLimit
	}

	if update.PhotoLimit != nil {
		merged.PhotoLimit = *update.PhotoLimit
	}

	if update.DataLimit != nil {
		merged.DataLimit = *update.DataLimit
	}

	if update.CacheLimit != nil {
		merged.CacheLimit = *update.CacheLimit
	}

	if err := rule.ValidateStruct(merged); err != nil {
		return current, fmt.Errorf("quota values must be positive: %w", err)
	}

	s.persistQuota(ctx, merged)

	return merged, nil
}

// CurrentQuota 返回某分类当前生效的预算.
func (s *QuotaService) CurrentQuota(ctx context.Context, category types.DataCategory) int64 {
	return s.loadQuota(ctx).CategoryLimit(category)
}

// QuotaSnapshot 返回完整配额，HTTP 层读取用.
func (s *QuotaService) QuotaSnapshot(ctx context.Context) types.QuotaSet {
	return s.loadQuota(ctx)
}
