package api

import (
	"github.com/gin-gonic/gin"
	"github.com/taoyao-code/scent-server/internal/api/middleware"
	"go.uber.org/zap"
)

// RouteOptions 路由中间件配置
type RouteOptions struct {
	Auth      middleware.AuthConfig
	RateLimit middleware.RateLimitConfig
	// OnRateLimited 限流拒绝回调（指标）
	OnRateLimited func()
}

// RegisterScentRoutes 注册设备控制路由
// /health 不需要认证；控制接口与目录接口经过认证与限流
func RegisterScentRoutes(r gin.IRouter, h *ScentHandler, opts RouteOptions, logger *zap.Logger) {
	if r == nil || h == nil {
		return
	}

	r.GET("/health", h.Health)

	ctl := r.Group("")
	ctl.Use(middleware.Auth(opts.Auth, logger))
	if opts.Auth.Enabled {
		logger.Info("api authentication enabled",
			zap.Int("api_keys_count", len(opts.Auth.APIKeys)),
			zap.Bool("jwt", opts.Auth.JWTSecret != ""))
	} else {
		logger.Warn("api authentication disabled - only for development!")
	}
	ctl.Use(middleware.RateLimit(opts.RateLimit, opts.OnRateLimited))

	ctl.POST("/play_scent", h.PlayScent)
	ctl.POST("/play_sequence", h.PlaySequence)
	ctl.GET("/test_connection", h.TestConnection)
	ctl.GET("/api/scents", h.ListScents)

	logger.Info("scent routes registered", zap.Int("endpoints", 5))
}
