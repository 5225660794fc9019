package bootstrap

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/taoyao-code/scent-server/internal/api"
	"github.com/taoyao-code/scent-server/internal/api/middleware"
	"github.com/taoyao-code/scent-server/internal/app"
	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
	"github.com/taoyao-code/scent-server/internal/health"
	"github.com/taoyao-code/scent-server/internal/metrics"
	"go.uber.org/zap"
)

// Version 构建版本
var Version = "dev"

// Run 统一启动流程：依赖就绪后再对外提供 HTTP 服务，收到信号后优雅关闭
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting scent server",
		zap.String("version", Version),
		zap.String("env", cfg.App.Env))

	// ========== 阶段1: 基础组件 ==========
	reg, appm := app.NewMetrics(Version, cfg.Transport.Driver)
	metricsHandler := metrics.Handler(reg)
	ready := health.New()

	cat, err := app.LoadCatalog(cfg.Catalog.Path, log)
	if err != nil {
		log.Error("scent catalog invalid", zap.Error(err))
		return err
	}

	// ========== 阶段2: Redis（仅分布式会话锁）==========
	redisClient, err := app.NewRedisClient(context.Background(), cfg.Redis, cfg.Session.LockKey, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	// ========== 阶段3: 无线传输与会话管理 ==========
	tr, err := app.NewTransport(cfg.Transport, log)
	if err != nil {
		log.Error("transport initialization failed", zap.Error(err))
		return err
	}
	defer tr.Close()
	ready.SetTransportReady(true)

	mgr, locker := app.NewSessionManager(cfg, tr, redisClient, appm, log)
	log.Info("session manager initialized",
		zap.String("keyword", mgr.Keyword()),
		zap.Duration("scan_timeout", cfg.Device.ScanTimeout))

	healthAgg := app.NewHealthAggregator(tr, locker, cat)
	app.AddRedisChecker(healthAgg, redisClient)

	// ========== 阶段4: HTTP ==========
	httpSrv := app.NewHTTPServer(cfg, metricsHandler, ready.Ready, log)
	httpSrv.Register(func(r *gin.Engine) {
		handler := api.NewScentHandler(mgr, cat, log.Named("api"))
		api.RegisterScentRoutes(r, handler, api.RouteOptions{
			Auth: middleware.AuthConfig{
				Enabled:   cfg.API.Auth.Enabled,
				APIKeys:   cfg.API.Auth.APIKeys,
				JWTSecret: cfg.API.Auth.JWTSecret,
				JWTIssuer: cfg.API.Auth.JWTIssuer,
			},
			RateLimit: middleware.RateLimitConfig{
				Enabled: cfg.API.RateLimit.Enabled,
				RPS:     cfg.API.RateLimit.RPS,
				Burst:   cfg.API.RateLimit.Burst,
			},
			OnRateLimited: appm.RateLimitRejects.Inc,
		}, log)
		app.RegisterHealthRoutes(r, healthAgg)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpSrv.Start()
	}()
	ready.SetHTTPReady(true)
	log.Info("all services ready", zap.String("addr", cfg.HTTP.Addr))

	// ========== 阶段5: 等待关闭信号 ==========
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal, gracefully shutting down...", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			log.Error("http server error", zap.Error(err))
			return err
		}
	}

	ready.SetHTTPReady(false)
	// 进行中的序列可能持续数分钟，关闭等待上限与写超时一致
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Warn("http server shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}

func shutdownTimeout(cfg *cfgpkg.Config) time.Duration {
	if cfg.HTTP.WriteTimeout > 10*time.Second {
		return cfg.HTTP.WriteTimeout
	}
	return 10 * time.Second
}
