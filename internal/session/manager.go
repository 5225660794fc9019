package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/taoyao-code/scent-server/internal/metrics"
	"github.com/taoyao-code/scent-server/internal/protocol/scent"
	"github.com/taoyao-code/scent-server/internal/transport"
	"go.uber.org/zap"
)

// 操作名（日志与指标标签）
const (
	OpPlayOne        = "play_one"
	OpPlaySequence   = "play_sequence"
	OpTestConnection = "test_connection"
	OpResolve        = "resolve"
)

// Config 会话参数
type Config struct {
	NameKeyword        string        // 外设名称关键字（大小写不敏感）
	WriteCharUUID      string        // 写特征值
	ScanTimeout        time.Duration // 发现扫描上限
	ProbeTimeout       time.Duration // 缓存地址活性探测上限
	ConnectTimeout     time.Duration // 播放会话连接上限
	TestConnectTimeout time.Duration // 连通性测试连接上限
}

func (c *Config) applyDefaults() {
	if c.NameKeyword == "" {
		c.NameKeyword = "wear"
	}
	if c.WriteCharUUID == "" {
		c.WriteCharUUID = transport.WriteCharUUID
	}
	if c.ScanTimeout <= 0 {
		c.ScanTimeout = 10 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.TestConnectTimeout <= 0 {
		c.TestConnectTimeout = 10 * time.Second
	}
}

// Step 序列中的一步
type Step struct {
	Channel         int `json:"channel"`
	DurationSeconds int `json:"duration_seconds"`
}

// Manager 设备会话管理：地址解析（缓存+扫描）、连接、写帧、节拍、断开
// 除 DiscoveryCache 外不在操作之间保留任何状态
type Manager struct {
	cfg     Config
	tr      transport.Transport
	cache   *DiscoveryCache
	lock    Locker
	clock   Clock
	metrics *metrics.AppMetrics
	logger  *zap.Logger

	state atomic.Int32
}

// Option 可选项
type Option func(*Manager)

// WithLocker 替换会话锁（默认进程内单许可）
func WithLocker(l Locker) Option { return func(m *Manager) { m.lock = l } }

// WithClock 替换时间源
func WithClock(c Clock) Option { return func(m *Manager) { m.clock = c } }

// WithMetrics 注入业务指标
func WithMetrics(am *metrics.AppMetrics) Option { return func(m *Manager) { m.metrics = am } }

// WithLogger 注入日志器
func WithLogger(l *zap.Logger) Option { return func(m *Manager) { m.logger = l } }

// NewManager 创建会话管理器
func NewManager(cfg Config, tr transport.Transport, opts ...Option) *Manager {
	cfg.applyDefaults()
	m := &Manager{
		cfg:    cfg,
		tr:     tr,
		cache:  &DiscoveryCache{},
		lock:   NewMemoryLocker(0),
		clock:  realClock{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Cache 返回地址缓存
func (m *Manager) Cache() *DiscoveryCache { return m.cache }

// Keyword 名称关键字
func (m *Manager) Keyword() string { return m.cfg.NameKeyword }

// State 当前会话状态
func (m *Manager) State() State { return State(m.state.Load()) }

func (m *Manager) setState(s State) {
	old := State(m.state.Swap(int32(s)))
	if old != s {
		m.logger.Debug("session state", zap.Stringer("from", old), zap.Stringer("to", s))
	}
}

// ResolveAddress 解析目标外设地址：缓存优先（带活性探测），失败则扫描
func (m *Manager) ResolveAddress(ctx context.Context) (string, error) {
	release, err := m.lock.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	defer m.setState(StateIdle)

	e, err := m.resolve(ctx)
	return e.Address, err
}

// PlayOne 播放单个气味
func (m *Manager) PlayOne(ctx context.Context, channel, durationSeconds int) Outcome {
	return m.run(ctx, OpPlayOne, func(ctx context.Context) Outcome {
		log := m.logger.With(zap.Int("channel", channel), zap.Int("duration_s", durationSeconds))

		e, err := m.resolve(ctx)
		if err != nil {
			return m.errorOutcome(err)
		}
		conn, err := m.open(ctx, e.Address, m.cfg.ConnectTimeout)
		if err != nil {
			return m.errorOutcome(err)
		}
		defer m.close(conn)

		if err := m.writeStep(ctx, conn, Step{Channel: channel, DurationSeconds: durationSeconds}, log); err != nil {
			return failure(fmt.Sprintf("Failed to send scent %d: %v", channel, err))
		}
		log.Info("scent sent", zap.String("address", e.Address))
		return success(fmt.Sprintf("Scent %d sent for %d seconds", channel, durationSeconds))
	})
}

// PlaySequence 顺序播放：只连接一次；单步写失败记录后继续；写成功后等待该步时长
func (m *Manager) PlaySequence(ctx context.Context, steps []Step) Outcome {
	return m.run(ctx, OpPlaySequence, func(ctx context.Context) Outcome {
		e, err := m.resolve(ctx)
		if err != nil {
			return m.errorOutcome(err)
		}
		conn, err := m.open(ctx, e.Address, m.cfg.ConnectTimeout)
		if err != nil {
			return m.errorOutcome(err)
		}
		defer m.close(conn)

		failed := 0
		for i, step := range steps {
			log := m.logger.With(
				zap.Int("step", i+1),
				zap.Int("steps", len(steps)),
				zap.Int("channel", step.Channel),
				zap.Int("duration_s", step.DurationSeconds),
			)
			if err := m.writeStep(ctx, conn, step, log); err != nil {
				failed++
				log.Warn("sequence step failed, continuing", zap.Error(err))
				continue
			}
			if err := m.clock.Sleep(ctx, time.Duration(step.DurationSeconds)*time.Second); err != nil {
				log.Warn("sequence interrupted", zap.Error(err))
				return failure(fmt.Sprintf("Sequence interrupted at step %d: %v", i+1, err))
			}
		}

		m.logger.Info("sequence completed",
			zap.String("address", e.Address),
			zap.Int("steps", len(steps)),
			zap.Int("failed_steps", failed))
		return success("Sequence completed")
	})
}

// TestConnection 连通性诊断：解析、连接，并尽力核验写特征值
// 特征值枚举失败不影响结果，只在消息中注明
func (m *Manager) TestConnection(ctx context.Context) Outcome {
	return m.run(ctx, OpTestConnection, func(ctx context.Context) Outcome {
		e, err := m.resolve(ctx)
		if err != nil {
			out := m.errorOutcome(err)
			out.Keyword = m.cfg.NameKeyword
			return out
		}
		conn, err := m.open(ctx, e.Address, m.cfg.TestConnectTimeout)
		if err != nil {
			out := m.errorOutcome(err)
			out.Address = e.Address
			out.Keyword = m.cfg.NameKeyword
			return out
		}
		defer m.close(conn)

		name := e.Name
		if name == "" {
			name = "Unknown"
		}
		out := Outcome{
			Status:     StatusSuccess,
			Address:    e.Address,
			DeviceName: name,
		}

		// 仅枚举特征值，不写入，状态保持 Connected
		chars, err := conn.Characteristics(ctx)
		switch {
		case err != nil:
			m.logger.Info("could not enumerate characteristics", zap.String("address", e.Address), zap.Error(err))
			out.WriteCharacteristic = CharUnverified
			out.Details = err.Error()
		case transport.HasCharacteristic(chars, m.cfg.WriteCharUUID):
			out.WriteCharacteristic = CharAvailable
		default:
			out.WriteCharacteristic = CharUnverified
		}

		if out.WriteCharacteristic == CharAvailable {
			out.Message = fmt.Sprintf("Device connected successfully. Device Name: %s, Address: %s, Write Characteristic: Available", name, e.Address)
		} else {
			out.Message = fmt.Sprintf("Connected to %s (%s). Note: could not verify write characteristic, but connection successful.", name, e.Address)
		}
		return out
	})
}

// run 统一入口：串行化、状态归位、panic 兜底、指标
func (m *Manager) run(ctx context.Context, op string, fn func(ctx context.Context) Outcome) (out Outcome) {
	start := m.clock.Now()
	release, err := m.lock.Acquire(ctx)
	if err != nil {
		out = m.errorOutcome(err)
		m.observe(op, out, start)
		return out
	}
	defer release()

	if m.metrics != nil {
		m.metrics.SessionActive.Inc()
		defer m.metrics.SessionActive.Dec()
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("session panic", zap.String("op", op), zap.Any("panic", r))
			out = failure(fmt.Sprintf("internal error: %v", r))
		}
		m.setState(StateIdle)
		m.observe(op, out, start)
	}()

	return fn(ctx)
}

func (m *Manager) observe(op string, out Outcome, start time.Time) {
	if m.metrics == nil {
		return
	}
	m.metrics.SessionsTotal.WithLabelValues(op, out.Status).Inc()
	m.metrics.SessionDuration.WithLabelValues(op).Observe(m.clock.Now().Sub(start).Seconds())
}

// resolve 调用方须持有会话锁
func (m *Manager) resolve(ctx context.Context) (Entry, error) {
	m.setState(StateResolving)

	if e, ok := m.cache.Get(); ok {
		if m.probe(ctx, e.Address) {
			m.countCache("hit")
			m.logger.Debug("cached device still available", zap.String("address", e.Address))
			return e, nil
		}
		m.countCache("stale")
		m.cache.InvalidateIf(e.Address)
		m.logger.Info("cached device no longer available", zap.String("address", e.Address))
	} else {
		m.countCache("miss")
	}

	m.logger.Info("scanning for device", zap.String("keyword", m.cfg.NameKeyword), zap.Duration("timeout", m.cfg.ScanTimeout))
	peripherals, err := m.tr.Scan(ctx, m.cfg.ScanTimeout)
	if err != nil {
		m.countScan("error")
		if errors.Is(err, transport.ErrTimeout) {
			return Entry{}, fmt.Errorf("%w: %v", ErrScanTimeout, err)
		}
		return Entry{}, fmt.Errorf("scan: %w", err)
	}

	for _, p := range peripherals {
		if p.NameContains(m.cfg.NameKeyword) {
			e := Entry{Address: p.Address, Name: p.Name}
			m.cache.Set(e)
			m.countScan("found")
			m.logger.Info("device found", zap.String("name", p.Name), zap.String("address", p.Address))
			return e, nil
		}
	}
	m.countScan("not_found")
	m.logger.Warn("no device matched keyword", zap.String("keyword", m.cfg.NameKeyword), zap.Int("discovered", len(peripherals)))
	return Entry{}, ErrDeviceNotFound
}

// probe 短时连接验证缓存地址仍可达
func (m *Manager) probe(ctx context.Context, address string) bool {
	conn, err := m.tr.Connect(ctx, address, m.cfg.ProbeTimeout)
	if err != nil {
		m.logger.Debug("liveness probe failed", zap.String("address", address), zap.Error(err))
		return false
	}
	ok := conn.IsConnected()
	if err := conn.Disconnect(); err != nil {
		m.logger.Debug("probe disconnect failed", zap.String("address", address), zap.Error(err))
	}
	return ok
}

func (m *Manager) open(ctx context.Context, address string, timeout time.Duration) (transport.Conn, error) {
	m.setState(StateConnecting)
	m.logger.Info("connecting to device", zap.String("address", address), zap.Duration("timeout", timeout))

	conn, err := m.tr.Connect(ctx, address, timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %w: %v", ErrConnectionFailed, ErrTimeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	if !conn.IsConnected() {
		_ = conn.Disconnect()
		return nil, ErrConnectionFailed
	}
	m.setState(StateConnected)
	return conn, nil
}

func (m *Manager) close(conn transport.Conn) {
	m.setState(StateDisconnecting)
	if err := conn.Disconnect(); err != nil {
		m.logger.Warn("disconnect failed", zap.String("address", conn.Address()), zap.Error(err))
	}
	m.setState(StateClosed)
}

func (m *Manager) writeStep(ctx context.Context, conn transport.Conn, step Step, log *zap.Logger) error {
	m.setState(StateWriting)
	frame := scent.BuildFrame(uint8(step.Channel), step.DurationSeconds)
	log.Info("sending scent", zap.String("frame", scent.HexFrame(uint8(step.Channel), step.DurationSeconds)))

	if err := conn.WriteCharacteristic(ctx, m.cfg.WriteCharUUID, frame); err != nil {
		m.countFrame("error")
		return fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	m.countFrame("ok")
	return nil
}

// errorOutcome 错误统一转换为结果值
func (m *Manager) errorOutcome(err error) Outcome {
	kw := m.cfg.NameKeyword
	switch {
	case errors.Is(err, ErrDeviceNotFound):
		out := failure(fmt.Sprintf("Device with '%s' in name not found. Make sure device is powered on and in range.", kw))
		out.Keyword = kw
		return out
	case errors.Is(err, ErrScanTimeout):
		out := failure(fmt.Sprintf("Scan timeout while searching for device with '%s' in name. Make sure Bluetooth is enabled and try again.", kw))
		out.Keyword = kw
		out.Details = err.Error()
		return out
	case errors.Is(err, ErrTimeout):
		out := failure("Connection timeout. Device not responding. Make sure it's powered on and in range.")
		out.Keyword = kw
		out.Details = err.Error()
		return out
	case errors.Is(err, ErrConnectionFailed):
		out := failure("Failed to connect to device")
		if err != ErrConnectionFailed {
			out.Details = err.Error()
		}
		return out
	case errors.Is(err, ErrBusy):
		return failure("Device is busy with another session, try again later")
	default:
		return failure(fmt.Sprintf("Connection error: %v", err))
	}
}

func (m *Manager) countCache(result string) {
	if m.metrics != nil {
		m.metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (m *Manager) countScan(result string) {
	if m.metrics != nil {
		m.metrics.DiscoveryScans.WithLabelValues(result).Inc()
	}
}

func (m *Manager) countFrame(result string) {
	if m.metrics != nil {
		m.metrics.FramesWritten.WithLabelValues(result).Inc()
	}
}
