package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSMiddleware CORS中间件. 引擎只服务本机应用壳，放开本地来源即可.
func CORSMiddleware() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowHeaders = append(config.AllowHeaders, "X-User")
	config.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}

	return cors.New(config)
}
