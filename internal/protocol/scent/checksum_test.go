package scent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16Modbus(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "空数据",
			data:     []byte{},
			expected: 0xFFFF,
		},
		{
			name:     "标准校验串",
			data:     []byte("123456789"),
			expected: 0x4B37,
		},
		{
			name:     "通道1_5秒数据区",
			data:     []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x05, 0x01, 0x00, 0x00, 0x13, 0x88},
			expected: 0x2BD4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CRC16Modbus(tt.data)
			if result != tt.expected {
				t.Errorf("CRC16Modbus() = 0x%04X, expected 0x%04X", result, tt.expected)
			}
		})
	}
}

func TestCRC16Bytes_BigEndian(t *testing.T) {
	got := CRC16Bytes([]byte("123456789"))
	assert.Equal(t, [2]byte{0x4B, 0x37}, got)
}

func TestCRC16_SingleBitFlip(t *testing.T) {
	body := []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x05, 0x07, 0x00, 0x00, 0x1F, 0x40}
	base := CRC16Modbus(body)

	for i := range body {
		for bit := 0; bit < 8; bit++ {
			flipped := make([]byte, len(body))
			copy(flipped, body)
			flipped[i] ^= 1 << bit
			if CRC16Modbus(flipped) == base {
				t.Fatalf("bit flip at byte %d bit %d did not change crc", i, bit)
			}
		}
	}
}

func TestVerifyCRC(t *testing.T) {
	body := []byte{0x00, 0x00, 0x00, 0x01, 0x02, 0x05, 0x02, 0x00, 0x00, 0x13, 0x88}

	assert.NoError(t, VerifyCRC(body, [2]byte{0x2B, 0x90}))
	assert.ErrorIs(t, VerifyCRC(body, [2]byte{0x90, 0x2B}), ErrCRCMismatch)
}
