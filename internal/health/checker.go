package health

import (
	"context"
	"time"
)

// Status 健康状态
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded" // 可服务但部分能力缺失
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult 单项检查结果
type CheckResult struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency"`
}

// Checker 健康检查器
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// funcChecker 以函数实现的检查器
type funcChecker struct {
	name string
	fn   func(ctx context.Context) CheckResult
}

// NewFuncChecker 用函数构造检查器，Latency 未填时自动计时
func NewFuncChecker(name string, fn func(ctx context.Context) CheckResult) Checker {
	return &funcChecker{name: name, fn: fn}
}

func (c *funcChecker) Name() string { return c.name }

func (c *funcChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	r := c.fn(ctx)
	if r.Latency == 0 {
		r.Latency = time.Since(start)
	}
	return r
}
