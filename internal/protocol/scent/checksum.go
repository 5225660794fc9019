package scent

import "errors"

var (
	// ErrCRCMismatch CRC校验失败
	ErrCRCMismatch = errors.New("crc mismatch")
)

// CRC16Modbus 计算 CRC-16/MODBUS
// 初值0xFFFF，反射多项式0xA001，无最终异或
func CRC16Modbus(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// CRC16Bytes 返回线上字节序的校验值（高字节在前）
// 注意：标准MODBUS是低字节在前，设备固件要求高字节在前
func CRC16Bytes(data []byte) [2]byte {
	crc := CRC16Modbus(data)
	return [2]byte{byte(crc >> 8), byte(crc)}
}

// VerifyCRC 校验数据区与尾部的两个CRC字节
func VerifyCRC(body []byte, trailer [2]byte) error {
	if CRC16Bytes(body) != trailer {
		return ErrCRCMismatch
	}
	return nil
}
