package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/agrivault/pkg/scheduler"
)

type schedulerKey struct{}

// SchedulerMiddleware 将调度器注入请求上下文.
func SchedulerMiddleware(sched *scheduler.Scheduler) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithValue(c.Request.Context(), schedulerKey{}, sched)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// GetScheduler 从请求上下文取出调度器.
func GetScheduler(c *gin.Context) *scheduler.Scheduler {
	if sched, ok := c.Request.Context().Value(schedulerKey{}).(*scheduler.Scheduler); ok {
		return sched
	}

	return nil
}
