package middleware

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// RateLimiter 基于Token Bucket的全局限流器（所有请求最终共享同一台设备）
type RateLimiter struct {
	limiter       *rate.Limiter
	rejectedCount atomic.Int64
	onReject      func()
}

// NewRateLimiter 创建限流器，onReject 可为 nil
func NewRateLimiter(cfg RateLimitConfig, onReject func()) *RateLimiter {
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = int(rps * 2)
	}
	return &RateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		onReject: onReject,
	}
}

// RejectedCount 被拒绝的请求数（累计）
func (l *RateLimiter) RejectedCount() int64 {
	return l.rejectedCount.Load()
}

// Middleware 超出速率返回 429
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.limiter.Allow() {
			c.Next()
			return
		}
		l.rejectedCount.Add(1)
		if l.onReject != nil {
			l.onReject()
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"status":  "error",
			"message": "too many requests",
		})
	}
}

// RateLimit 限流中间件；未启用时直接放行
func RateLimit(cfg RateLimitConfig, onReject func()) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}
	return NewRateLimiter(cfg, onReject).Middleware()
}
