package session

import "errors"

// 会话错误分类
var (
	// ErrDeviceNotFound 扫描超时内未发现名称匹配的外设
	ErrDeviceNotFound = errors.New("device not found")
	// ErrConnectionFailed 连接未得到已连接的句柄
	ErrConnectionFailed = errors.New("connection failed")
	// ErrWriteFailed 单帧写入失败
	ErrWriteFailed = errors.New("write failed")
	// ErrTimeout 连接等待超时
	ErrTimeout = errors.New("timeout")
	// ErrScanTimeout 发现扫描本身超时（适配器无响应），区别于未发现设备
	ErrScanTimeout = errors.New("scan timeout")
	// ErrBusy 等待会话锁超时
	ErrBusy = errors.New("device busy")
)
