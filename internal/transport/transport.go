// Package transport 定义与气味设备之间的无线链路能力集（扫描、连接、写特征值、断开）
package transport

import (
	"context"
	"errors"
	"strings"
	"time"
)

// WriteCharUUID 设备接收命令的写特征值（Nordic UART RX），全系统固定
const WriteCharUUID = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"

var (
	// ErrUnsupported 平台不支持该能力（如特征值枚举）
	ErrUnsupported = errors.New("transport: operation not supported")
	// ErrNotConnected 连接已断开
	ErrNotConnected = errors.New("transport: not connected")
	// ErrCharacteristicNotFound 目标特征值不存在
	ErrCharacteristicNotFound = errors.New("transport: characteristic not found")
	// ErrTimeout 扫描或连接等待超时
	ErrTimeout = errors.New("transport: timeout")
)

// Peripheral 扫描发现的外设
type Peripheral struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int16  `json:"rssi,omitempty"`
}

// NameContains 名称是否包含关键字（大小写不敏感）
func (p Peripheral) NameContains(keyword string) bool {
	if p.Name == "" {
		return false
	}
	return strings.Contains(strings.ToLower(p.Name), strings.ToLower(keyword))
}

// Transport 无线传输协作者
type Transport interface {
	// Scan 在 timeout 内扫描外设并返回发现列表
	Scan(ctx context.Context, timeout time.Duration) ([]Peripheral, error)

	// Connect 在 timeout 内连接指定地址
	Connect(ctx context.Context, address string, timeout time.Duration) (Conn, error)
}

// Conn 已建立的连接句柄
type Conn interface {
	Address() string

	// IsConnected 连接是否仍处于已连接状态
	IsConnected() bool

	// WriteCharacteristic 向特征值写入数据，写超时交由实现的默认值
	WriteCharacteristic(ctx context.Context, uuid string, data []byte) error

	// Characteristics 枚举已连接外设的特征值UUID；不支持时返回 ErrUnsupported
	Characteristics(ctx context.Context) ([]string, error)

	Disconnect() error
}

// NormalizeUUID 统一为小写比较
func NormalizeUUID(uuid string) string {
	return strings.ToLower(strings.TrimSpace(uuid))
}

// HasCharacteristic 判断列表中是否包含目标UUID
func HasCharacteristic(uuids []string, target string) bool {
	want := NormalizeUUID(target)
	for _, u := range uuids {
		if NormalizeUUID(u) == want {
			return true
		}
	}
	return false
}
