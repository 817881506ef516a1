// Package router 管理路由配置，只负责把路径绑定到 pkg/internal/handle 提供的处理器.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/agrivault/pkg/internal/handle"
)

// RegisterStorageRoutes 注册配额引擎的存储路由.
func RegisterStorageRoutes(g *gin.RouterGroup) {
	storageRoutes := g.Group("/storage")
	{
		storageRoutes.GET("/stats", handle.GetStorageStats)            // 占用汇总
		storageRoutes.GET("/quotas", handle.GetStorageQuotas)          // 当前配额
		storageRoutes.PATCH("/quotas", handle.PatchStorageQuotas)      // 部分更新配额
		storageRoutes.POST("/permission", handle.CheckStorePermission) // 写入准入检查
		storageRoutes.POST("/cleanup", handle.RunCleanup)              // 触发清理
		storageRoutes.GET("/recommendations", handle.GetCleanupRecommendations)
		storageRoutes.POST("/access", handle.TrackAccess) // 上报访问
		storageRoutes.PUT("/items", handle.RecordItem)    // 登记写入
		storageRoutes.DELETE("/items/:category/:id", handle.RemoveItem)
	}
}

// RegisterUserRoutes 注册用户维度路由.
func RegisterUserRoutes(g *gin.RouterGroup) {
	userRoutes := g.Group("/users")
	{
		userRoutes.GET("/storage", handle.GetUserStorageInfo) // 存储画像
		userRoutes.DELETE("/data", handle.ClearUserData)      // 单用户数据清除
	}
}
