package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/taoyao-code/scent-server/internal/api/middleware"
	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
	"github.com/taoyao-code/scent-server/internal/httpserver"
	"go.uber.org/zap"
)

// NewHTTPServer 根据配置创建 HTTP 服务器（全局中间件：请求追踪 + CORS）
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, readyFn func() bool, logger *zap.Logger) *httpserver.Server {
	opts := httpserver.Options{
		ReadyFn: readyFn,
		Logger:  logger,
		Middleware: []gin.HandlerFunc{
			middleware.RequestTracing(),
			middleware.CORS(cfg.API.CORS.AllowOrigins),
		},
	}
	if cfg.Metrics.Enable {
		opts.MetricsPath = cfg.Metrics.Path
		opts.MetricsHandler = metricsHandler
	}
	return httpserver.New(cfg.HTTP, opts)
}
