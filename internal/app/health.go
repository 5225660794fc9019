package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/taoyao-code/scent-server/internal/catalog"
	"github.com/taoyao-code/scent-server/internal/health"
	"github.com/taoyao-code/scent-server/internal/session"
)

// NewHealthAggregator 创建健康检查聚合器：传输、会话排队、气味目录
func NewHealthAggregator(tr *Transport, locker *session.MemoryLocker, cat *catalog.Catalog) *health.Aggregator {
	agg := health.NewAggregator(health.NewTransportChecker(tr.Driver, tr.Prober))
	if locker != nil {
		agg.AddChecker(health.NewSessionChecker(locker, 0))
	}
	agg.AddChecker(catalogChecker(cat))
	return agg
}

// catalogChecker 目录为空时降级：只能按通道号调用，scent_name 不可用
func catalogChecker(cat *catalog.Catalog) health.Checker {
	return health.NewFuncChecker("catalog", func(context.Context) health.CheckResult {
		n := cat.Len()
		if n == 0 {
			return health.CheckResult{Status: health.StatusDegraded, Message: "scent catalog is empty"}
		}
		return health.CheckResult{
			Status:  health.StatusHealthy,
			Message: "ok",
			Details: map[string]interface{}{"scents": n},
		}
	})
}

// RegisterHealthRoutes 注册健康检查HTTP路由
func RegisterHealthRoutes(r *gin.Engine, aggregator *health.Aggregator) {
	health.RegisterHTTPRoutes(r, aggregator)
}
