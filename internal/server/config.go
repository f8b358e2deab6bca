package server

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Config HTTP 服务配置（server.*）
type Config struct {
	// 运行模式：debug, release, test
	Mode string `mapstructure:"mode"`
	Addr string `mapstructure:"addr"`

	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`

	// 关机时等待会话结束与 HTTP 排空的总时长
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	TrustedProxies []string `mapstructure:"trusted_proxies"`

	// 启动时打印 banner 与路由表
	Banner bool `mapstructure:"banner"`

	// 升级请求按客户端 IP 限流
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	CORS CORSConfig `mapstructure:"cors"`
}

// RateLimitConfig 令牌桶限流配置
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	BucketExpiry      time.Duration `mapstructure:"bucket_expiry"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Mode:            gin.ReleaseMode,
		Addr:            ":8080",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 15 * time.Second,
		Banner:          true,
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 5,
			Burst:             10,
			BucketExpiry:      10 * time.Minute,
		},
		CORS: CORSConfig{
			AllowOrigins: []string{"*"},
			MaxAge:       12 * time.Hour,
		},
	}
}
