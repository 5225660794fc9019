package scent

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// 帧格式：F5(1) + header(4) + cmdType(1) + subCmd(1) + channel(1) + padding(2) + durationMs(2) + crc(2) + 55(1)
// CRC覆盖 header..durationMs，共11字节
const (
	StartByte byte = 0xF5
	EndByte   byte = 0x55

	CmdTypePlay    byte = 0x02 // 播放命令族
	SubCmdChannel  byte = 0x05 // 气味通道子命令
	BodyLen             = 11
	FrameLen            = 1 + BodyLen + 2 + 1
	MillisPerSecond     = 1000
)

var header = [4]byte{0x00, 0x00, 0x00, 0x01}

// 帧内偏移
const (
	offBody     = 1
	offCmdType  = 5
	offSubCmd   = 6
	offChannel  = 7
	offPadding  = 8
	offDuration = 10
	offCRC      = 12
	offEnd      = 14
)

var (
	ErrFrameLength = errors.New("invalid frame length")
	ErrFrameMarker = errors.New("invalid start/end marker")
	ErrFrameHeader = errors.New("unexpected header or command bytes")
)

// Frame 解码后的播放命令帧
type Frame struct {
	Channel    uint8
	DurationMs uint16
	Raw        []byte
}

// DurationSeconds 时长（秒，向下取整）
func (f *Frame) DurationSeconds() int {
	return int(f.DurationMs) / MillisPerSecond
}

// Hex 大写十六进制表示，用于日志
func (f *Frame) Hex() string {
	return strings.ToUpper(hex.EncodeToString(f.Raw))
}

// BuildFrame 构建气味播放命令帧
// 不校验通道范围（1-12由调用方负责）；duration*1000 超过65535时按线格式截断为低16位
func BuildFrame(channel uint8, durationSeconds int) []byte {
	buf := make([]byte, FrameLen)
	buf[0] = StartByte
	copy(buf[offBody:], header[:])
	buf[offCmdType] = CmdTypePlay
	buf[offSubCmd] = SubCmdChannel
	buf[offChannel] = channel
	// padding 保持 0x00 0x00
	binary.BigEndian.PutUint16(buf[offDuration:], uint16(durationSeconds*MillisPerSecond))

	crc := CRC16Bytes(buf[offBody:offCRC])
	buf[offCRC] = crc[0]
	buf[offCRC+1] = crc[1]
	buf[offEnd] = EndByte
	return buf
}

// HexFrame BuildFrame 的十六进制形式
func HexFrame(channel uint8, durationSeconds int) string {
	return strings.ToUpper(hex.EncodeToString(BuildFrame(channel, durationSeconds)))
}

// ParseFrame 解析并校验命令帧
func ParseFrame(b []byte) (*Frame, error) {
	if len(b) != FrameLen {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFrameLength, len(b), FrameLen)
	}
	if b[0] != StartByte || b[offEnd] != EndByte {
		return nil, ErrFrameMarker
	}
	if [4]byte(b[offBody:offCmdType]) != header || b[offCmdType] != CmdTypePlay || b[offSubCmd] != SubCmdChannel {
		return nil, ErrFrameHeader
	}
	if err := VerifyCRC(b[offBody:offCRC], [2]byte{b[offCRC], b[offCRC+1]}); err != nil {
		return nil, err
	}

	raw := make([]byte, FrameLen)
	copy(raw, b)
	return &Frame{
		Channel:    b[offChannel],
		DurationMs: binary.BigEndian.Uint16(b[offDuration:]),
		Raw:        raw,
	}, nil
}
