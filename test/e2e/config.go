package e2e

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config E2E测试配置
type Config struct {
	ServerURL string // 服务器地址
	APIKey    string // API密钥（服务端未启用认证时可为空）

	RequestTimeout  time.Duration // 单个请求超时
	SequenceTimeout time.Duration // 序列请求超时（包含节拍等待）

	// RequireDevice 为 true 时要求设备可达（真实硬件或模拟驱动）
	RequireDevice bool
	Verbose       bool
}

// GetConfig 获取测试配置（支持环境变量覆盖）
func GetConfig() *Config {
	return &Config{
		ServerURL:       getEnv("E2E_SERVER_URL", "http://localhost:5000"),
		APIKey:          getEnv("E2E_API_KEY", ""),
		RequestTimeout:  getDurationEnv("E2E_REQUEST_TIMEOUT", 30*time.Second),
		SequenceTimeout: getDurationEnv("E2E_SEQUENCE_TIMEOUT", 2*time.Minute),
		RequireDevice:   getBoolEnv("E2E_REQUIRE_DEVICE", false),
		Verbose:         getBoolEnv("E2E_VERBOSE", false),
	}
}

// MaskedAPIKey 返回脱敏的 API Key
func (c *Config) MaskedAPIKey() string {
	if len(c.APIKey) <= 8 {
		return "***"
	}
	return c.APIKey[:4] + "***" + c.APIKey[len(c.APIKey)-4:]
}

// String 返回配置的字符串表示（脱敏）
func (c *Config) String() string {
	return fmt.Sprintf(`E2E Test Configuration:
  Server URL: %s
  API Key: %s
  Request Timeout: %s
  Sequence Timeout: %s
  Require Device: %v`,
		c.ServerURL,
		c.MaskedAPIKey(),
		c.RequestTimeout,
		c.SequenceTimeout,
		c.RequireDevice,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
