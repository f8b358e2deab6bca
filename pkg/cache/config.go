package cache

import (
	"fmt"
	"time"
)

// DriverType 驱动类型
type DriverType string

const (
	DriverRedis  DriverType = "redis"
	DriverMemory DriverType = "memory"
)

// RedisMode Redis 部署模式
type RedisMode string

const (
	RedisStandalone RedisMode = "standalone"
	RedisCluster    RedisMode = "cluster"
	RedisSentinel   RedisMode = "sentinel"
)

// Config 缓存配置（cache.*）
type Config struct {
	Driver     DriverType    `mapstructure:"driver"`
	KeyPrefix  string        `mapstructure:"key_prefix"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
	MaxEntries int           `mapstructure:"max_entries"` // 仅内存驱动
	Redis      RedisConfig   `mapstructure:"redis"`
}

// RedisConfig Redis 连接配置（redis.*）
type RedisConfig struct {
	Addr       string    `mapstructure:"addr"`  // 单机地址
	Addrs      []string  `mapstructure:"addrs"` // 集群/哨兵地址
	Mode       RedisMode `mapstructure:"mode"`
	MasterName string    `mapstructure:"master_name"` // 哨兵模式
	Username   string    `mapstructure:"username"`
	Password   string    `mapstructure:"password"`
	DB         int       `mapstructure:"db"`

	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DefaultConfig 默认内存缓存
func DefaultConfig() *Config {
	return &Config{
		Driver:     DriverMemory,
		KeyPrefix:  "pawchat:",
		DefaultTTL: time.Minute,
		MaxEntries: 10000,
		Redis:      DefaultRedisConfig(),
	}
}

// DefaultRedisConfig 默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Mode:         RedisStandalone,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return ErrInvalidConfig.WithMessage("cache: default_ttl must be positive")
	}
	switch c.Driver {
	case DriverMemory:
		if c.MaxEntries <= 0 {
			return ErrInvalidConfig.WithMessage("cache: max_entries must be positive")
		}
		return nil
	case DriverRedis:
		return c.Redis.Validate()
	default:
		return ErrInvalidConfig.WithMessagef("cache: unsupported driver %q", c.Driver)
	}
}

// Validate 校验 Redis 配置
func (r RedisConfig) Validate() error {
	switch r.Mode {
	case RedisStandalone, "":
		if r.Addr == "" {
			return ErrInvalidConfig.WithMessage("redis: addr is required for standalone mode")
		}
	case RedisCluster:
		if len(r.Addrs) == 0 {
			return ErrInvalidConfig.WithMessage("redis: cluster mode requires addrs")
		}
	case RedisSentinel:
		if len(r.Addrs) == 0 || r.MasterName == "" {
			return ErrInvalidConfig.WithMessage("redis: sentinel mode requires addrs and master_name")
		}
	default:
		return ErrInvalidConfig.WithMessage(fmt.Sprintf("redis: unsupported mode %q", r.Mode))
	}
	return nil
}
