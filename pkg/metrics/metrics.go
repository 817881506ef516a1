// Package metrics 提供监控指标功能.
// 支持Prometheus标准，收集HTTP与配额引擎指标.
//
// Example:
//
//	import "github.com/yeisme/agrivault/pkg/metrics"
//
//	err := metrics.InitMetrics(config.Metrics)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	metrics.CleanupRuns.WithLabelValues("auto").Inc()
//	metrics.BytesFreed.WithLabelValues("cache").Add(1024)
package metrics

import (
	"net/http"
	_ "net/http/pprof" // 自动注册pprof端点

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yeisme/agrivault/pkg/configs"
)

// 全局指标变量.
var (
	// RequestCounter HTTP请求计数器.
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint"},
	)

	// RequestDuration HTTP请求持续时间.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// CleanupRuns 清理运行计数，label 区分触发方式（smart/forced/scheduled）.
	CleanupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_cleanup_runs_total",
			Help: "Total number of cleanup runs",
		},
		[]string{"mode"},
	)

	// BytesFreed 各阶段回收的字节数.
	BytesFreed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_cleanup_bytes_freed_total",
			Help: "Bytes reclaimed by cleanup, by stage",
		},
		[]string{"stage"},
	)

	// DeniedWrites 被许可门拒绝的写入数.
	DeniedWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_denied_writes_total",
			Help: "Writes denied by the permission gate, by reason",
		},
		[]string{"reason"},
	)

	// UsagePercent 最近一次统计的总占用百分比.
	UsagePercent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "storage_usage_percent",
			Help: "Last computed storage usage percentage",
		},
	)

	// registry Prometheus注册表.
	registry = prometheus.NewRegistry()
)

// InitMetrics 初始化Metrics.
func InitMetrics(config configs.MetricsConfig) error {
	if !config.Enabled {
		return nil
	}

	// 运行时收集器由默认注册表自带（/metrics 合并暴露），关掉时显式注销，
	// 避免与默认注册表里的同名指标重复
	if !config.RuntimeMetrics {
		prometheus.Unregister(collectors.NewGoCollector())
		prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	// 注册自定义指标
	registry.MustRegister(RequestCounter, RequestDuration, CleanupRuns, BytesFreed, DeniedWrites, UsagePercent)

	return nil
}

// StartMetricsServer 启动Metrics HTTP服务器.
func StartMetricsServer(config configs.MetricsConfig, debugEngine *gin.Engine) error {
	if !config.Enabled {
		return nil
	}

	// GORM 的 prometheus 插件只往默认注册表写，合并两个来源一起暴露
	gatherers := prometheus.Gatherers{registry, prometheus.DefaultGatherer}
	debugEngine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{})))

	// 如果启用pprof，注册pprof端点
	if config.Pprof {
		debugEngine.GET("/debug/pprof/*any", gin.WrapH(http.DefaultServeMux))
	}

	return nil
}

// GetRegistry 获取Prometheus注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}
