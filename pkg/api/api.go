// Package api 组合HTTP接口：把各路由组注册到 gin 引擎.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/agrivault/pkg/internal/router"
)

// RegisterGroup 注册配额引擎的全部路由组到传入的 gin 引擎.
func RegisterGroup(e *gin.Engine) *gin.Engine {
	v1 := e.Group("/api/v1")

	router.RegisterStorageRoutes(v1)
	router.RegisterUserRoutes(v1)
	router.RegisterHealthCheckRoute(v1)
	router.RegisterSchedulerRoutes(v1)

	return e
}
