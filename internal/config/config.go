package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// DeviceConfig 目标外设发现与连接参数
type DeviceConfig struct {
	NameKeyword        string        `mapstructure:"nameKeyword"`
	WriteCharUUID      string        `mapstructure:"writeCharUUID"`
	ScanTimeout        time.Duration `mapstructure:"scanTimeout"`
	ProbeTimeout       time.Duration `mapstructure:"probeTimeout"`
	ConnectTimeout     time.Duration `mapstructure:"connectTimeout"`
	TestConnectTimeout time.Duration `mapstructure:"testConnectTimeout"`
}

// SimulatedPeripheral 模拟外设
type SimulatedPeripheral struct {
	Name    string `mapstructure:"name"`
	Address string `mapstructure:"address"`
	RSSI    int16  `mapstructure:"rssi"`
}

// SimulatorConfig 模拟驱动配置
type SimulatorConfig struct {
	Latency     time.Duration         `mapstructure:"latency"`
	Peripherals []SimulatedPeripheral `mapstructure:"peripherals"`
}

// TransportConfig 无线传输驱动
type TransportConfig struct {
	Driver    string          `mapstructure:"driver"` // bluez | simulator
	Adapter   string          `mapstructure:"adapter"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
}

// SessionConfig 会话串行化
type SessionConfig struct {
	Lock            string        `mapstructure:"lock"` // memory | redis
	LockWaitTimeout time.Duration `mapstructure:"lockWaitTimeout"`
	LockTTL         time.Duration `mapstructure:"lockTTL"`
	LockKey         string        `mapstructure:"lockKey"`
}

// RedisConfig Redis 连接配置（仅用于分布式会话锁）
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// AuthConfig API 认证
type AuthConfig struct {
	Enabled   bool     `mapstructure:"enabled"`
	APIKeys   []string `mapstructure:"apiKeys"`
	JWTSecret string   `mapstructure:"jwtSecret"`
	JWTIssuer string   `mapstructure:"jwtIssuer"`
}

// RateLimitConfig 令牌桶限流
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allowOrigins"`
}

// APIConfig 对外 API 配置
type APIConfig struct {
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
	CORS      CORSConfig      `mapstructure:"cors"`
}

// CatalogConfig 气味目录文件
type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

// Config 顶层配置结构
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Device    DeviceConfig    `mapstructure:"device"`
	Transport TransportConfig `mapstructure:"transport"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	API       APIConfig       `mapstructure:"api"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 SCENT_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("SCENT_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// 环境变量覆盖：前缀 SCENT_，并将点号替换为下划线
	v.SetEnvPrefix("SCENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch c.Transport.Driver {
	case "bluez", "simulator":
	default:
		return fmt.Errorf("config: unknown transport.driver %q", c.Transport.Driver)
	}
	switch c.Session.Lock {
	case "memory":
	case "redis":
		if !c.Redis.Enabled {
			return errors.New("config: session.lock=redis requires redis.enabled")
		}
	default:
		return fmt.Errorf("config: unknown session.lock %q", c.Session.Lock)
	}
	if strings.TrimSpace(c.Device.NameKeyword) == "" {
		return errors.New("config: device.nameKeyword must not be empty")
	}
	if c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 && c.API.Auth.JWTSecret == "" {
		return errors.New("config: api.auth enabled without apiKeys or jwtSecret")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "scent-server")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.readTimeout", "5s")
	// 序列请求可持续数分钟，写超时需覆盖
	v.SetDefault("http.writeTimeout", "15m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/scent-server.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("device.nameKeyword", "wear")
	v.SetDefault("device.writeCharUUID", "6e400002-b5a3-f393-e0a9-e50e24dcca9e")
	v.SetDefault("device.scanTimeout", "10s")
	v.SetDefault("device.probeTimeout", "5s")
	v.SetDefault("device.connectTimeout", "10s")
	v.SetDefault("device.testConnectTimeout", "10s")

	v.SetDefault("transport.driver", "bluez")
	v.SetDefault("transport.adapter", "hci0")
	v.SetDefault("transport.simulator.latency", "50ms")

	v.SetDefault("session.lock", "memory")
	v.SetDefault("session.lockWaitTimeout", "5m")
	v.SetDefault("session.lockTTL", "30s")
	v.SetDefault("session.lockKey", "scent:session:lock")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.jwtIssuer", "scent-server")
	v.SetDefault("api.rateLimit.enabled", true)
	v.SetDefault("api.rateLimit.rps", 5)
	v.SetDefault("api.rateLimit.burst", 10)
	v.SetDefault("api.cors.allowOrigins", []string{"*"})

	v.SetDefault("catalog.path", "configs/scents.yaml")
}
