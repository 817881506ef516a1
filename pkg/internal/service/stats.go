package service

import (
	"context"
	"math"

	"github.com/yeisme/agrivault/pkg/internal/model"
	"github.com/yeisme/agrivault/pkg/internal/storage/areas"
	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
	"github.com/yeisme/agrivault/pkg/metrics"
)

// StatsService 用量统计. 只读，可任意频率并发调用.
type StatsService struct{ *EngineService }

func NewStatsService(c context.Context) *StatsService { return &StatsService{NewEngineService(c)} }

// StorageStats 汇总当前占用. user 为空表示整机.
//
// items 表是唯一的尺寸权威；photos/cache 的文件区枚举只做对账，
// 发现漂移记日志而不改数. 任何单点读失败按 0 计入并继续，
// 统计永远给出一个可用的答案.
func (s *StatsService) StorageStats(ctx context.Context, user string) types.StorageStats {
	quota := s.loadQuota(ctx)

	totalQuota := quota.TotalLimit
	if user != "" {
		if tier := s.ageTier(ctx, user); tier.IsMinor {
			totalQuota = tier.TotalQuota
		}
	}

	counts, sizes := s.categoryTotals(ctx, user)
	s.reconcileAreas(ctx, user, sizes)

	var totalUsed int64

	categories := make([]types.CategoryUsage, 0, len(types.DataCategories))
	for _, cat := range types.DataCategories {
		size := sizes[cat]
		totalUsed += size

		categories = append(categories, types.CategoryUsage{
			Category: cat,
			Count:    counts[cat],
			Size:     size,
			Limit:    quota.CategoryLimit(cat),
		})
	}

	pct := usagePercent(totalUsed, totalQuota)

	stats := types.StorageStats{
		TotalUsed:       totalUsed,
		TotalQuota:      totalQuota,
		UsagePercentage: pct,
		NeedsCleanup:    pct >= s.quota.CleanupTriggerPercent,
		ShowWarning:     pct >= s.quota.WarningPercent && pct < s.quota.CleanupTriggerPercent,
		Categories:      categories,
	}

	if user == "" {
		metrics.UsagePercent.Set(float64(pct))
	}

	return stats
}

// usagePercent 四舍五入并夹在 [0,100].
func usagePercent(used, quota int64) int {
	if quota <= 0 {
		if used > 0 {
			return 100
		}

		return 0
	}

	pct := int(math.Round(float64(used) / float64(quota) * 100))
	if pct < 0 {
		pct = 0
	}

	if pct > 100 {
		pct = 100
	}

	return pct
}

// categoryTotals 一次聚合查询出各分类的条数与字节和. 查询失败按空计.
func (s *EngineService) categoryTotals(ctx context.Context, user string) (map[types.DataCategory]int, map[types.DataCategory]int64) {
	counts := make(map[types.DataCategory]int, len(types.DataCategories))
	sizes := make(map[types.DataCategory]int64, len(types.DataCategories))

	rows := []struct {
		Category string
		Cnt      int64
		Sum      int64
	}{}

	dbx := s.dbClient.GetDB().WithContext(ctx).Model(&model.Item{}).
		Select("category, COUNT(*) as cnt, COALESCE(SUM(size_bytes),0) as sum").
		Group("category")
	if user != "" {
		dbx = dbx.Where("user = ?", user)
	}

	if err := dbx.Scan(&rows).Error; err != nil {
		logPkg.Logger().Warn().Err(err).Msg("usage aggregation failed, counting zero")
		return counts, sizes
	}

	for _, r := range rows {
		counts[types.DataCategory(r.Category)] = int(r.Cnt)
		sizes[types.DataCategory(r.Category)] = r.Sum
	}

	return counts, sizes
}

// reconcileAreas 对账：文件区的实测字节数与记账值相差时记日志. 不改记账值.
func (s *EngineService) reconcileAreas(ctx context.Context, user string, sizes map[types.DataCategory]int64) {
	kinds := map[types.DataCategory]areas.Kind{
		types.CategoryPhotos: areas.KindPhotos,
		types.CategoryCache:  areas.KindCache,
	}

	for cat, kind := range kinds {
		measured, err := s.areaSize(ctx, kind, user)
		if err != nil {
			logPkg.Logger().Warn().Str("area", string(kind)).Err(err).Msg("area reconciliation skipped")
			continue
		}

		if measured != sizes[cat] {
			logPkg.Logger().Warn().
				Str("category", string(cat)).
				Int64("recorded", sizes[cat]).
				Int64("measured", measured).
				Msg("size drift between accounting and files")
		}
	}
}

// areaSize 文件区实测字节数，user 非空时只数该用户目录.
func (s *EngineService) areaSize(ctx context.Context, kind areas.Kind, user string) (int64, error) {
	if user == "" {
		return s.areas.TotalSize(ctx, kind)
	}

	entries, err := s.areas.Entries(ctx, kind)
	if err != nil {
		return 0, err
	}

	prefix := user + "/"

	var total int64

	for _, e := range entries {
		if len(e.Name) > len(prefix) && e.Name[:len(prefix)] == prefix {
			total += e.Size
		}
	}

	return total, nil
}
