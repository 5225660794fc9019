package health

import (
	"context"
	"fmt"
	"time"
)

// AdapterProber 本地无线适配器状态（bluez.Transport 实现）
type AdapterProber interface {
	AdapterPowered(ctx context.Context) (bool, error)
}

// TransportChecker 无线传输健康检查器
// 只查询本地适配器，不扫描也不连接外设，不占用设备会话
type TransportChecker struct {
	driver string
	prober AdapterProber
}

// NewTransportChecker prober 为 nil 时（模拟驱动）始终健康
func NewTransportChecker(driver string, prober AdapterProber) *TransportChecker {
	return &TransportChecker{driver: driver, prober: prober}
}

// Name 返回检查器名称
func (c *TransportChecker) Name() string {
	return "transport"
}

// Check 执行健康检查
func (c *TransportChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]interface{}{"driver": c.driver}

	if c.prober == nil {
		return CheckResult{Status: StatusHealthy, Message: "ok", Details: details, Latency: time.Since(start)}
	}

	powered, err := c.prober.AdapterPowered(ctx)
	if err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("adapter unavailable: %v", err),
			Details: details,
			Latency: time.Since(start),
		}
	}
	details["powered"] = powered
	if !powered {
		return CheckResult{Status: StatusUnhealthy, Message: "adapter powered off", Details: details, Latency: time.Since(start)}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok", Details: details, Latency: time.Since(start)}
}

// SessionStats 会话锁统计（session.MemoryLocker 实现）
type SessionStats interface {
	Busy() bool
	Waiting() int64
	RejectedCount() int64
}

// SessionChecker 会话排队情况；排队过长时降级
type SessionChecker struct {
	stats      SessionStats
	maxWaiting int64
}

// NewSessionChecker maxWaiting<=0 时取 5
func NewSessionChecker(stats SessionStats, maxWaiting int64) *SessionChecker {
	if maxWaiting <= 0 {
		maxWaiting = 5
	}
	return &SessionChecker{stats: stats, maxWaiting: maxWaiting}
}

// Name 返回检查器名称
func (c *SessionChecker) Name() string {
	return "session"
}

// Check 执行健康检查
func (c *SessionChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	waiting := c.stats.Waiting()

	status := StatusHealthy
	message := "ok"
	if waiting >= c.maxWaiting {
		status = StatusDegraded
		message = "session queue is long"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: map[string]interface{}{
			"busy":           c.stats.Busy(),
			"waiting":        waiting,
			"rejected_total": c.stats.RejectedCount(),
		},
		Latency: time.Since(start),
	}
}
