// Package jobs 注册配额引擎的定时任务：夜间清理、保留期执行与访问记录修剪.
package jobs

import (
	"context"
	"time"

	"github.com/yeisme/agrivault/pkg/configs"
	"github.com/yeisme/agrivault/pkg/internal/service"
	"github.com/yeisme/agrivault/pkg/log"
	"github.com/yeisme/agrivault/pkg/scheduler"
)

// 任务名，调度器接口按名称管理.
const (
	JobSmartCleanup     = "quota.smart_cleanup"
	JobEnforceRetention = "retention.enforce"
	JobPruneAccess      = "access.prune"
)

// 默认排程：清理与保留期都放在夜间低峰，访问修剪每周一次.
const (
	cronSmartCleanup     = "0 3 * * *"
	cronEnforceRetention = "30 4 * * *"
	cronPruneAccess      = "0 5 * * 0"
)

// Register 把引擎任务挂到调度器. ctx 必须携带存储管理器.
func Register(ctx context.Context, sched *scheduler.Scheduler) error {
	if err := sched.AddCron(JobSmartCleanup, cronSmartCleanup, runSmartCleanup, ctx); err != nil {
		return err
	}

	if err := sched.AddCron(JobEnforceRetention, cronEnforceRetention, runEnforceRetention, ctx); err != nil {
		return err
	}

	return sched.AddCron(JobPruneAccess, cronPruneAccess, runPruneAccess, ctx)
}

// runSmartCleanup 整机例行清理：只在占用超过触发阈值时才会动数据.
func runSmartCleanup(ctx context.Context) {
	svc := service.NewCleanupService(ctx)

	result := svc.PerformSmartCleanup(ctx, "", false)
	log.Logger().Info().
		Bool("success", result.Success).
		Int64("bytes_freed", result.BytesFreed).
		Str("message", result.Message).
		Msg("scheduled cleanup")
}

// runEnforceRetention 按年龄档位执行数据保留期.
func runEnforceRetention(ctx context.Context) {
	svc := service.NewCleanupService(ctx)

	freed, err := svc.EnforceRetention(ctx)
	if err != nil {
		log.Logger().Error().Err(err).Msg("retention enforcement failed")
		return
	}

	log.Logger().Info().Int64("bytes_freed", freed).Msg("retention enforced")
}

// runPruneAccess 修剪超过两倍保护窗口的访问记录.
func runPruneAccess(ctx context.Context) {
	svc := service.NewAccessService(ctx)

	windowDays := configs.GetConfig().Quota.ProtectionWindowDays
	cutoff := time.Now().AddDate(0, 0, -2*windowDays)

	pruned, err := svc.PruneOlderThan(ctx, cutoff)
	if err != nil {
		log.Logger().Error().Err(err).Msg("access prune failed")
		return
	}

	log.Logger().Info().Int("pruned", pruned).Msg("access records pruned")
}
