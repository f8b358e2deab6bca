package app

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tokmz/pawchat/internal/auth"
	"github.com/tokmz/pawchat/internal/server"
	"github.com/tokmz/pawchat/pkg/cache"
	"github.com/tokmz/pawchat/pkg/config"
	"github.com/tokmz/pawchat/pkg/logger"
	"github.com/tokmz/pawchat/pkg/metrics"
	"github.com/tokmz/pawchat/pkg/orm"
	"github.com/tokmz/pawchat/pkg/tracing"
	"github.com/tokmz/pawchat/pkg/ws"
)

// EnvPrefix 环境变量前缀，如 PAWCHAT_SERVER_ADDR
const EnvPrefix = "PAWCHAT"

// Config 应用配置
type Config struct {
	Server   server.Config     `mapstructure:"server"`
	Log      logger.FileConfig `mapstructure:"log"`
	Database orm.Config        `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	Cache    CacheConfig       `mapstructure:"cache"`
	WS       WSConfig          `mapstructure:"ws"`
	Auth     auth.Config       `mapstructure:"auth"`
	Tracing  tracing.Config    `mapstructure:"tracing"`
	Metrics  metrics.Config    `mapstructure:"metrics"`
}

// RedisConfig 在线状态镜像与缓存共用的 Redis
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	KeyPrefix string `mapstructure:"key_prefix"` // 在线集合与最后在线时间的键前缀

	cache.RedisConfig `mapstructure:",squash"`
}

// CacheConfig 聊天目录缓存
type CacheConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Driver     cache.DriverType `mapstructure:"driver" validate:"omitempty,oneof=memory redis"`
	KeyPrefix  string           `mapstructure:"key_prefix"`
	TTL        time.Duration    `mapstructure:"ttl" validate:"gte=0"`
	MaxEntries int              `mapstructure:"max_entries" validate:"gte=0"`
}

// WSConfig 实时通道参数，零值沿用 ws.DefaultConfig
type WSConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	HeartbeatTimeout  time.Duration `mapstructure:"heartbeat_timeout"`
	MaxMessageSize    int64         `mapstructure:"max_message_size"`
	SendQueueSize     int           `mapstructure:"send_queue_size"`
	SendTimeout       time.Duration `mapstructure:"send_timeout"`
	BroadcastWorkers  int           `mapstructure:"broadcast_workers"`
	HandlerTimeout    time.Duration `mapstructure:"handler_timeout"`
	TypingTTL         time.Duration `mapstructure:"typing_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	AllowedOrigins    []string      `mapstructure:"allowed_origins"`
	EnableCompression bool          `mapstructure:"enable_compression"`
}

// Options 转换为 ws 选项
func (c WSConfig) Options() []ws.Option {
	var opts []ws.Option
	def := ws.DefaultConfig()
	if c.HeartbeatInterval > 0 || c.HeartbeatTimeout > 0 {
		interval, timeout := def.HeartbeatInterval, def.HeartbeatTimeout
		if c.HeartbeatInterval > 0 {
			interval = c.HeartbeatInterval
		}
		if c.HeartbeatTimeout > 0 {
			timeout = c.HeartbeatTimeout
		}
		opts = append(opts, ws.WithHeartbeat(interval, timeout))
	}
	if c.MaxMessageSize > 0 {
		opts = append(opts, ws.WithMessageSizeLimit(c.MaxMessageSize))
	}
	if c.SendQueueSize > 0 {
		opts = append(opts, ws.WithSendQueueSize(c.SendQueueSize))
	}
	if c.SendTimeout > 0 {
		opts = append(opts, ws.WithSendTimeout(c.SendTimeout))
	}
	if c.BroadcastWorkers > 0 {
		opts = append(opts, ws.WithBroadcastWorkers(c.BroadcastWorkers))
	}
	if c.HandlerTimeout > 0 {
		opts = append(opts, ws.WithHandlerTimeout(c.HandlerTimeout))
	}
	if c.TypingTTL > 0 {
		opts = append(opts, ws.WithTypingTTL(c.TypingTTL))
	}
	if c.SweepInterval > 0 {
		opts = append(opts, ws.WithSweepInterval(c.SweepInterval))
	}
	switch {
	case len(c.AllowedOrigins) == 1 && c.AllowedOrigins[0] == "*":
		opts = append(opts, ws.WithAllowAllOrigins())
	case len(c.AllowedOrigins) > 0:
		opts = append(opts, ws.WithCheckOriginWhitelist(c.AllowedOrigins))
	}
	if c.EnableCompression {
		opts = append(opts, ws.WithEnableCompression(true))
	}
	return opts
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	redisCfg := cache.DefaultRedisConfig()
	return &Config{
		Server: server.DefaultConfig(),
		Log: logger.FileConfig{
			Level:   "info",
			Format:  "json",
			Console: true,
			Caller:  true,
		},
		Database: *orm.DefaultConfig(),
		Redis: RedisConfig{
			KeyPrefix:   "pawchat:",
			RedisConfig: redisCfg,
		},
		Cache: CacheConfig{
			Enabled:    true,
			Driver:     cache.DriverMemory,
			KeyPrefix:  "pawchat:chats:",
			TTL:        30 * time.Second,
			MaxEntries: 10000,
		},
		Auth:    auth.DefaultConfig(),
		Tracing: *tracing.DefaultConfig(),
		Metrics: metrics.DefaultConfig(),
	}
}

var validate = validator.New()

// Validate 校验配置
func (c *Config) Validate() error {
	if err := validate.Struct(c.Cache); err != nil {
		return err
	}
	if c.Auth.Secret == "" {
		return auth.ErrInvalidSecret
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.Redis.Enabled {
		if err := c.Redis.RedisConfig.Validate(); err != nil {
			return err
		}
	}
	if c.Cache.Enabled {
		if c.Cache.TTL <= 0 {
			return cache.ErrInvalidConfig.WithMessage("cache: ttl must be positive")
		}
		if c.Cache.Driver == cache.DriverRedis && !c.Redis.Enabled {
			return cache.ErrInvalidConfig.WithMessage("cache: redis driver requires redis.enabled")
		}
	}
	if c.Tracing.Enabled {
		if err := c.Tracing.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// defaults 注册到 viper 的键，使对应的环境变量生效
func defaults(c *Config) map[string]any {
	return map[string]any{
		"server.mode":             c.Server.Mode,
		"server.addr":             c.Server.Addr,
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.idle_timeout":     c.Server.IdleTimeout,
		"server.max_header_bytes": c.Server.MaxHeaderBytes,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"server.banner":           c.Server.Banner,

		"server.rate_limit.enabled":             c.Server.RateLimit.Enabled,
		"server.rate_limit.requests_per_second": c.Server.RateLimit.RequestsPerSecond,
		"server.rate_limit.burst":               c.Server.RateLimit.Burst,
		"server.rate_limit.bucket_expiry":       c.Server.RateLimit.BucketExpiry,

		"server.cors.enabled":       c.Server.CORS.Enabled,
		"server.cors.allow_origins": c.Server.CORS.AllowOrigins,
		"server.cors.max_age":       c.Server.CORS.MaxAge,

		"log.level":   c.Log.Level,
		"log.format":  c.Log.Format,
		"log.console": c.Log.Console,
		"log.file":    c.Log.File,
		"log.caller":  c.Log.Caller,

		"database.type":           string(c.Database.Type),
		"database.dsn":            c.Database.DSN,
		"database.max_idle_conns": c.Database.MaxIdleConns,
		"database.max_open_conns": c.Database.MaxOpenConns,
		"database.slow_threshold": c.Database.SlowThreshold,
		"database.tracing":        c.Database.Tracing,

		"redis.enabled":    c.Redis.Enabled,
		"redis.key_prefix": c.Redis.KeyPrefix,
		"redis.addr":       c.Redis.Addr,
		"redis.mode":       string(c.Redis.Mode),
		"redis.password":   c.Redis.Password,
		"redis.db":         c.Redis.DB,

		"cache.enabled":     c.Cache.Enabled,
		"cache.driver":      string(c.Cache.Driver),
		"cache.key_prefix":  c.Cache.KeyPrefix,
		"cache.ttl":         c.Cache.TTL,
		"cache.max_entries": c.Cache.MaxEntries,

		"auth.secret":     c.Auth.Secret,
		"auth.issuer":     c.Auth.Issuer,
		"auth.expiration": c.Auth.Expiration,

		"tracing.enabled":       c.Tracing.Enabled,
		"tracing.service_name":  c.Tracing.ServiceName,
		"tracing.exporter":      c.Tracing.ExporterType,
		"tracing.endpoint":      c.Tracing.ExporterEndpoint,
		"tracing.sampling_rate": c.Tracing.SamplingRate,

		"metrics.enabled":   c.Metrics.Enabled,
		"metrics.path":      c.Metrics.Path,
		"metrics.namespace": c.Metrics.Namespace,
	}
}

// Source 已加载的配置来源，可监听文件变更
type Source struct {
	*config.Config
}

// Load 从文件（可缺省）与 PAWCHAT_* 环境变量加载配置
func Load(path string) (*Config, *Source, error) {
	cfg := DefaultConfig()
	src := config.New(
		config.WithConfigFile(path),
		config.WithOptional(true),
		config.WithAutoWatch(path != ""),
		config.WithDefaults(defaults(cfg)),
		config.WithEnv(EnvPrefix),
	)
	if err := src.Load(); err != nil {
		return nil, nil, err
	}
	if err := src.Unmarshal(cfg); err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, &Source{Config: src}, nil
}

// Reload 重新解析当前配置
func (s *Source) Reload() (*Config, error) {
	cfg := DefaultConfig()
	if err := s.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}
