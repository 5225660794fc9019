package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultLockKey 会话锁 Redis Key
const DefaultLockKey = "scent:session:lock"

var (
	// 仅当持有者 token 一致时删除
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	// 仅当持有者 token 一致时续期
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// RedisLocker Redis 分布式会话锁，多实例共用同一外设时串行化
// 只保存持有者 token，不保存任何设备信息
type RedisLocker struct {
	client       *redis.Client
	key          string
	ttl          time.Duration
	waitTimeout  time.Duration
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewRedisLocker 创建分布式会话锁
func NewRedisLocker(client *redis.Client, key string, ttl, waitTimeout time.Duration, logger *zap.Logger) *RedisLocker {
	if key == "" {
		key = DefaultLockKey
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisLocker{
		client:       client,
		key:          key,
		ttl:          ttl,
		waitTimeout:  waitTimeout,
		pollInterval: 100 * time.Millisecond,
		logger:       logger,
	}
}

// Acquire 轮询 SET NX 直到成功或超时；持有期间后台续期
func (l *RedisLocker) Acquire(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if l.waitTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.waitTimeout)
		defer cancel()
	}

	token := uuid.New().String()
	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(waitCtx, l.key, token, l.ttl).Result()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("redis lock: %w", err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-waitCtx.Done():
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: redis lock held by another instance", ErrBusy)
			}
			return nil, waitCtx.Err()
		}
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.refresh(token, stop, done)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		close(stop)
		<-done
		rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(rctx, l.client, []string{l.key}, token).Err(); err != nil {
			l.logger.Warn("redis lock release failed", zap.String("key", l.key), zap.Error(err))
		}
	}, nil
}

// refresh 每 ttl/3 续期一次，直到 stop 关闭
func (l *RedisLocker) refresh(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), l.ttl/3)
			n, err := refreshScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("redis lock refresh failed", zap.String("key", l.key), zap.Error(err))
				continue
			}
			if n == 0 {
				l.logger.Error("redis lock lost", zap.String("key", l.key))
				return
			}
		}
	}
}
