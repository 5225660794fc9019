package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Locker 会话锁：同一时刻只允许一个设备会话
type Locker interface {
	// Acquire 获取锁，返回释放函数
	Acquire(ctx context.Context) (release func(), err error)
}

// MemoryLocker 进程内单许可信号量
type MemoryLocker struct {
	sem           chan struct{}
	timeout       time.Duration
	waiting       atomic.Int64
	rejectedCount atomic.Int64
}

// NewMemoryLocker 创建进程内会话锁
// timeout: 等待锁的上限，<=0 表示仅受 ctx 约束
func NewMemoryLocker(timeout time.Duration) *MemoryLocker {
	return &MemoryLocker{
		sem:     make(chan struct{}, 1),
		timeout: timeout,
	}
}

// Acquire 获取会话许可
func (l *MemoryLocker) Acquire(ctx context.Context) (func(), error) {
	// select 在多个就绪分支间随机选择，已取消的 ctx 必须先行拒绝
	if err := ctx.Err(); err != nil {
		l.rejectedCount.Add(1)
		return nil, err
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	l.waiting.Add(1)
	defer l.waiting.Add(-1)

	select {
	case l.sem <- struct{}{}:
		var once atomic.Bool
		return func() {
			if once.CompareAndSwap(false, true) {
				<-l.sem
			}
		}, nil
	case <-ctx.Done():
		l.rejectedCount.Add(1)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: waited %s", ErrBusy, l.timeout)
		}
		return nil, ctx.Err()
	}
}

// Busy 当前是否有会话持有许可
func (l *MemoryLocker) Busy() bool {
	return len(l.sem) > 0
}

// Waiting 排队等待的操作数
func (l *MemoryLocker) Waiting() int64 {
	return l.waiting.Load()
}

// RejectedCount 等待超时被拒绝的次数（累计）
func (l *MemoryLocker) RejectedCount() int64 {
	return l.rejectedCount.Load()
}

// ChainLocker 依次获取多把锁，逆序释放
type ChainLocker []Locker

// Acquire 实现 Locker
func (c ChainLocker) Acquire(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		release, err := l.Acquire(ctx)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}
