// Package app 提供应用程序的初始化和配置功能.
package app

import (
	contextPkg "context"
	"fmt"
	"os"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/agrivault/pkg/api"
	"github.com/yeisme/agrivault/pkg/configs"
	"github.com/yeisme/agrivault/pkg/context"
	"github.com/yeisme/agrivault/pkg/internal/jobs"
	"github.com/yeisme/agrivault/pkg/internal/service"
	"github.com/yeisme/agrivault/pkg/internal/storage"
	"github.com/yeisme/agrivault/pkg/log"
	"github.com/yeisme/agrivault/pkg/metrics"
	"github.com/yeisme/agrivault/pkg/middleware"
	"github.com/yeisme/agrivault/pkg/scheduler"
)

type App struct {
	Engine    *gin.Engine
	Scheduler *scheduler.Scheduler
	config    *configs.AppConfig
}

func NewApp(configPath string) *App {
	ctx := contextPkg.Background()
	engine := gin.New()

	// 初始化配置
	if err := configs.InitConfig(configPath); err != nil {
		fmt.Printf("Error initializing config: %v\n", err)
		os.Exit(1)
	}

	config := configs.GetConfig()

	// 初始化监控
	if err := metrics.InitMetrics(config.Metrics); err != nil {
		fmt.Printf("Error initializing metrics: %v\n", err)
		os.Exit(1)
	}

	manager, err := storage.Init(ctx)
	if err != nil {
		fmt.Printf("Error initializing storage: %v\n", err)
		os.Exit(1)
	}

	ctx = context.WithStorageManager(ctx, manager)

	// 配额初始化：首轮写入默认值，占用过高时立即清理
	if err := service.NewQuotaService(ctx).Initialize(ctx); err != nil {
		fmt.Printf("Error initializing quotas: %v\n", err)
		os.Exit(1)
	}

	// 定时任务：夜间清理、保留期执行、访问记录修剪
	sched, err := scheduler.NewScheduler()
	if err != nil {
		fmt.Printf("Error creating scheduler: %v\n", err)
		os.Exit(1)
	}

	if err := jobs.Register(ctx, sched); err != nil {
		fmt.Printf("Error registering jobs: %v\n", err)
		os.Exit(1)
	}

	sched.Start()

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	engine.Use(
		gin.Recovery(),
		middleware.CORSMiddleware(),
		middleware.GinLoggerMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.RateLimitMiddleware(config.RateLimit),
		middleware.StorageMiddleware(manager),
		middleware.SchedulerMiddleware(sched),
		gzip.Gzip(gzip.DefaultCompression),
	)

	api.RegisterGroup(engine)

	if config.Metrics.Enabled {
		_ = metrics.StartMetricsServer(config.Metrics, engine)
	}

	return &App{
		Engine:    engine,
		Scheduler: sched,
		config:    config,
	}
}

func (a *App) Run() error {
	defer func() {
		if err := a.Scheduler.Stop(); err != nil {
			log.Logger().Warn().Err(err).Msg("scheduler shutdown")
		}
	}()

	return a.Engine.Run(fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port))
}
