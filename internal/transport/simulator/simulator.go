// Package simulator 内存中的虚拟外设，用于无硬件开发与测试
package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/taoyao-code/scent-server/internal/transport"
)

// Write 一次写入记录
type Write struct {
	Address string
	UUID    string
	Data    []byte
}

// Transport 模拟传输：记录写入、支持故障注入
type Transport struct {
	mu sync.Mutex

	peripherals []transport.Peripheral
	chars       []string
	charsErr    error
	latency     time.Duration

	scanErr      error
	connectErr   map[string]error
	disconnected map[string]bool // 连接成功但句柄报告未连接
	failWrites   map[int]error   // 第N次写入（从1开始）失败

	scanCount    int
	connectCount int
	writeCount   int
	active       int
	maxActive    int
	writes       []Write
}

// New 创建模拟传输，默认暴露写特征值
func New(peripherals ...transport.Peripheral) *Transport {
	return &Transport{
		peripherals:  peripherals,
		chars:        []string{transport.WriteCharUUID},
		connectErr:   make(map[string]error),
		disconnected: make(map[string]bool),
		failWrites:   make(map[int]error),
	}
}

// SetLatency 每次扫描/连接的模拟耗时
func (t *Transport) SetLatency(d time.Duration) {
	t.mu.Lock()
	t.latency = d
	t.mu.Unlock()
}

// SetPeripherals 替换可被扫描到的外设
func (t *Transport) SetPeripherals(ps ...transport.Peripheral) {
	t.mu.Lock()
	t.peripherals = ps
	t.mu.Unlock()
}

// SetScanError 扫描返回错误
func (t *Transport) SetScanError(err error) {
	t.mu.Lock()
	t.scanErr = err
	t.mu.Unlock()
}

// SetConnectError 连接指定地址时返回错误，err为nil表示恢复
func (t *Transport) SetConnectError(address string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.connectErr, address)
		return
	}
	t.connectErr[address] = err
}

// SetReportsDisconnected 连接调用成功但句柄报告未连接
func (t *Transport) SetReportsDisconnected(address string, v bool) {
	t.mu.Lock()
	t.disconnected[address] = v
	t.mu.Unlock()
}

// FailWrite 第n次写入（全局计数，从1开始）返回err
func (t *Transport) FailWrite(n int, err error) {
	t.mu.Lock()
	t.failWrites[n] = err
	t.mu.Unlock()
}

// SetCharacteristics 设置特征值枚举结果
func (t *Transport) SetCharacteristics(uuids []string, err error) {
	t.mu.Lock()
	t.chars = uuids
	t.charsErr = err
	t.mu.Unlock()
}

// Scan 实现 transport.Transport
func (t *Transport) Scan(ctx context.Context, timeout time.Duration) ([]transport.Peripheral, error) {
	t.mu.Lock()
	t.scanCount++
	latency, scanErr := t.latency, t.scanErr
	out := make([]transport.Peripheral, len(t.peripherals))
	copy(out, t.peripherals)
	t.mu.Unlock()

	if err := wait(ctx, latency, timeout); err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return out, nil
}

// Connect 实现 transport.Transport
func (t *Transport) Connect(ctx context.Context, address string, timeout time.Duration) (transport.Conn, error) {
	t.mu.Lock()
	t.connectCount++
	latency := t.latency
	connErr := t.connectErr[address]
	known := false
	for _, p := range t.peripherals {
		if p.Address == address {
			known = true
			break
		}
	}
	t.mu.Unlock()

	if err := wait(ctx, latency, timeout); err != nil {
		return nil, err
	}
	if connErr != nil {
		return nil, connErr
	}
	if !known {
		return nil, transport.ErrTimeout
	}

	t.mu.Lock()
	t.active++
	if t.active > t.maxActive {
		t.maxActive = t.active
	}
	connected := !t.disconnected[address]
	t.mu.Unlock()
	return &conn{t: t, address: address, connected: connected}, nil
}

// ScanCount 扫描次数
func (t *Transport) ScanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scanCount
}

// ConnectCount 连接次数（含活性探测）
func (t *Transport) ConnectCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectCount
}

// Active 当前未断开的连接数
func (t *Transport) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// MaxActive 历史最大并发连接数
func (t *Transport) MaxActive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxActive
}

// Writes 返回写入记录快照
func (t *Transport) Writes() []Write {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Write, len(t.writes))
	for i, w := range t.writes {
		data := make([]byte, len(w.Data))
		copy(data, w.Data)
		out[i] = Write{Address: w.Address, UUID: w.UUID, Data: data}
	}
	return out
}

// wait 模拟耗时；耗时超过超时上限时返回 ErrTimeout
func wait(ctx context.Context, latency, timeout time.Duration) error {
	if latency <= 0 {
		return ctx.Err()
	}
	expired := false
	if timeout > 0 && latency > timeout {
		latency, expired = timeout, true
	}
	timer := time.NewTimer(latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		if expired {
			return transport.ErrTimeout
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type conn struct {
	t         *Transport
	address   string
	connected bool
	closed    bool
}

func (c *conn) Address() string { return c.address }

func (c *conn) IsConnected() bool {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	return c.connected && !c.closed
}

func (c *conn) WriteCharacteristic(ctx context.Context, uuid string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.closed || !c.connected {
		return transport.ErrNotConnected
	}
	c.t.writeCount++
	if err, ok := c.t.failWrites[c.t.writeCount]; ok {
		return err
	}
	if c.t.charsErr == nil && !transport.HasCharacteristic(c.t.chars, uuid) {
		return transport.ErrCharacteristicNotFound
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	c.t.writes = append(c.t.writes, Write{Address: c.address, UUID: uuid, Data: buf})
	return nil
}

func (c *conn) Characteristics(ctx context.Context) ([]string, error) {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.t.charsErr != nil {
		return nil, c.t.charsErr
	}
	out := make([]string, len(c.t.chars))
	copy(out, c.t.chars)
	return out, nil
}

func (c *conn) Disconnect() error {
	c.t.mu.Lock()
	defer c.t.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.t.active--
	return nil
}
