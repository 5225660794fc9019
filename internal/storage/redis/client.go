package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	cfgpkg "github.com/taoyao-code/scent-server/internal/config"
)

// ErrDisabled 配置未启用 Redis
var ErrDisabled = errors.New("redis is not enabled")

// Client Redis客户端封装，仅服务于分布式会话锁
type Client struct {
	*redis.Client
	lockKey string
}

// NewClient 创建客户端并 Ping 验证；lockKey 为会话锁键，供诊断查询
func NewClient(ctx context.Context, cfg cfgpkg.RedisConfig, lockKey string) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	return &Client{Client: rdb, lockKey: lockKey}, nil
}

// Close 关闭连接
func (c *Client) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// HealthCheck Ping
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Stats 连接池统计
func (c *Client) Stats() *redis.PoolStats {
	return c.PoolStats()
}

// LockState 会话锁当前是否被持有及剩余 TTL；lockKey 为空时返回 false
func (c *Client) LockState(ctx context.Context) (held bool, ttl time.Duration, err error) {
	if c.lockKey == "" {
		return false, 0, nil
	}
	d, err := c.PTTL(ctx, c.lockKey).Result()
	if err != nil {
		return false, 0, err
	}
	// go-redis 对 -2（不存在）与 -1（无过期）原样返回
	switch d {
	case -2:
		return false, 0, nil
	case -1:
		return true, 0, nil
	}
	return true, d, nil
}
