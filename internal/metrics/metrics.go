package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	FramesWritten    *prometheus.CounterVec   // labels: result=ok|error
	SessionsTotal    *prometheus.CounterVec   // labels: op, status
	DiscoveryScans   *prometheus.CounterVec   // labels: result=found|not_found|error
	CacheLookups     *prometheus.CounterVec   // labels: result=hit|miss|stale
	SessionActive    prometheus.Gauge         // 当前打开的设备会话数（0或1）
	SessionDuration  *prometheus.HistogramVec // labels: op
	RateLimitRejects prometheus.Counter       // HTTP 限流拒绝
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		FramesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scent_frames_written_total",
			Help: "Command frames written to the device.",
		}, []string{"result"}),
		SessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scent_sessions_total",
			Help: "Device sessions by operation and outcome status.",
		}, []string{"op", "status"}),
		DiscoveryScans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scent_discovery_scans_total",
			Help: "Discovery scans by result.",
		}, []string{"result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scent_cache_lookups_total",
			Help: "Address cache lookups by result.",
		}, []string{"result"}),
		SessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scent_session_active",
			Help: "Currently open device sessions.",
		}),
		SessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scent_session_duration_seconds",
			Help:    "Wall time of device sessions including pacing.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		}, []string{"op"}),
		RateLimitRejects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_ratelimit_rejected_total",
			Help: "HTTP requests rejected by the rate limiter.",
		}),
	}
	reg.MustRegister(m.FramesWritten, m.SessionsTotal, m.DiscoveryScans, m.CacheLookups, m.SessionActive, m.SessionDuration, m.RateLimitRejects)
	return m
}

// RegisterBuildInfo 常量 1 的构建信息指标，便于按版本与驱动筛选实例
func RegisterBuildInfo(reg prometheus.Registerer, version, driver string) {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scent_build_info",
		Help: "Build version and transport driver of the running server.",
	}, []string{"version", "driver"})
	reg.MustRegister(g)
	g.WithLabelValues(version, driver).Set(1)
}
