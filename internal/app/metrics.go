package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/taoyao-code/scent-server/internal/metrics"
)

// NewMetrics 初始化注册表、构建信息与会话指标
func NewMetrics(version, driver string) (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	metrics.RegisterBuildInfo(reg, version, driver)
	return reg, metrics.NewAppMetrics(reg)
}
