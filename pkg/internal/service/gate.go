package service

import (
	"context"
	"fmt"

	"github.com/yeisme/agrivault/pkg/internal/types"
	logPkg "github.com/yeisme/agrivault/pkg/log"
	"github.com/yeisme/agrivault/pkg/metrics"
)

// 拒绝写入时返回给上层的提示文案. UI 原样展示.
const (
	warnTotalQuotaExceeded = "Total storage quota exceeded"
	warnDeviceFull         = "Insufficient device storage"
)

// GateService 写入准入控制. 只读，不改任何状态.
type GateService struct{ *EngineService }

func NewGateService(c context.Context) *GateService { return &GateService{NewEngineService(c)} }

// CanStoreData 判断一次拟写入能否进行.
//
// 依次检查总预算、分类预算与设备剩余空间；任何一项不满足都拒绝并给出
// 对应文案. 拒绝是正常业务结果，不是错误. 占用处于提醒带或更高时
// SuggestCleanup 为 true，即便写入被放行.
func (s *GateService) CanStoreData(ctx context.Context, user string, category types.DataCategory, proposedSize int64) (types.PermissionResult, error) {
	if proposedSize <= 0 {
		return types.PermissionResult{}, fmt.Errorf("proposed size must be positive")
	}

	quota := s.loadQuota(ctx)
	stats := (&StatsService{s.EngineService}).StorageStats(ctx, user)

	result := types.PermissionResult{
		CanStore:       true,
		SuggestCleanup: stats.ShowWarning || stats.NeedsCleanup,
	}

	if stats.TotalUsed+proposedSize > stats.TotalQuota {
		result.CanStore = false
		result.SuggestCleanup = true
		result.Warnings = append(result.Warnings, warnTotalQuotaExceeded)
		metrics.DeniedWrites.WithLabelValues("total_quota").Inc()
	}

	if used := categoryUsed(stats, category); used+proposedSize > quota.CategoryLimit(category) {
		result.CanStore = false
		result.SuggestCleanup = true
		result.Warnings = append(result.Warnings, categoryQuotaWarning(category))
		metrics.DeniedWrites.WithLabelValues("category_quota").Inc()
	}

	free, err := s.probe.FreeBytes(ctx)
	if err != nil {
		// 容量探测失败不拦写入，只能按预算判断
		logPkg.Logger().Warn().Err(err).Msg("device capacity probe failed, skipping free-space check")
	} else if free-s.quota.DeviceReserveBytes <= proposedSize {
		// 写满到 0 字节也算不够，至少要留出 1 字节余量
		result.CanStore = false
		result.Warnings = append(result.Warnings, warnDeviceFull)
		metrics.DeniedWrites.WithLabelValues("device_space").Inc()
	}

	return result, nil
}

func categoryUsed(stats types.StorageStats, category types.DataCategory) int64 {
	var used int64

	for _, c := range stats.Categories {
		switch {
		case c.Category == category:
			used += c.Size
		case !category.IsFileBacked() && !c.Category.IsFileBacked():
			// 结构化分类共用数据预算，额度要合并占用
			used += c.Size
		}
	}

	return used
}

func categoryQuotaWarning(category types.DataCategory) string {
	switch category {
	case types.CategoryPhotos:
		return "Photo storage quota exceeded"
	case types.CategoryCache:
		return "Cache storage quota exceeded"
	default:
		return "Data storage quota exceeded"
	}
}
