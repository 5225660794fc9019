package health

import "sync/atomic"

// Readiness 启动就绪状态（传输驱动、HTTP 监听）
type Readiness struct {
	transportReady atomic.Bool
	httpReady      atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetTransportReady(v bool) { r.transportReady.Store(v) }
func (r *Readiness) SetHTTPReady(v bool)      { r.httpReady.Store(v) }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.transportReady.Load() && r.httpReady.Load()
}
