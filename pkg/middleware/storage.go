package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/agrivault/pkg/context"
	"github.com/yeisme/agrivault/pkg/internal/storage"
)

// StorageMiddleware 把存储管理器挂到请求上下文，服务层从这里取句柄.
func StorageMiddleware(manager *storage.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.WithStorageManager(c.Request.Context(), manager)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
