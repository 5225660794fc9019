package health

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPinger Redis 客户端能力（storage/redis.Client 实现）
type RedisPinger interface {
	HealthCheck(ctx context.Context) error
	Stats() *redis.PoolStats
	LockState(ctx context.Context) (held bool, ttl time.Duration, err error)
}

// RedisChecker 分布式会话锁后端检查
type RedisChecker struct {
	client RedisPinger
}

// NewRedisChecker 创建Redis健康检查器
func NewRedisChecker(client RedisPinger) *RedisChecker {
	return &RedisChecker{client: client}
}

// Name 返回检查器名称
func (c *RedisChecker) Name() string {
	return "redis"
}

// Check Ping 失败为不健康；连接池将满或会话锁无过期时间为降级
func (c *RedisChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()

	if err := c.client.HealthCheck(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
			Latency: time.Since(start),
		}
	}

	stats := c.client.Stats()
	utilization := 0.0
	if stats.TotalConns > 0 {
		utilization = float64(stats.TotalConns-stats.IdleConns) / float64(stats.TotalConns)
	}
	details := map[string]interface{}{
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"utilization": fmt.Sprintf("%.1f%%", utilization*100),
	}

	status := StatusHealthy
	message := "ok"
	if utilization > 0.9 {
		status = StatusDegraded
		message = "connection pool near limit"
	}

	held, ttl, err := c.client.LockState(ctx)
	switch {
	case err != nil:
		details["session_lock"] = fmt.Sprintf("unknown: %v", err)
	case held && ttl == 0:
		// 没有过期时间的锁不会自动释放，所有实例都将阻塞
		status = StatusDegraded
		message = "session lock has no expiry"
		details["session_lock"] = "held"
	case held:
		details["session_lock"] = "held"
		details["session_lock_ttl_ms"] = ttl.Milliseconds()
	default:
		details["session_lock"] = "free"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
