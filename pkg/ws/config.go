package ws

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tokmz/pawchat/pkg/logger"
)

// Config WebSocket 配置
type Config struct {
	// 连接配置
	HandshakeTimeout time.Duration // 握手超时时间
	MaxMessageSize   int64         // 单帧最大字节数
	SendQueueSize    int           // 每个连接的发送队列长度
	WriteWait        time.Duration // 单次写超时

	// 心跳配置
	HeartbeatInterval time.Duration // ping 间隔
	HeartbeatTimeout  time.Duration // 超过该时间未收到 pong 视为断开

	// 投递配置
	SendTimeout      time.Duration // 单个接收者的发送超时
	BroadcastWorkers int           // 单次广播的最大并发发送数

	// 会话配置
	HandlerTimeout  time.Duration // 单个事件的处理超时
	TeardownTimeout time.Duration // 断开清理的超时

	// 输入状态配置
	TypingTTL     time.Duration // 输入状态过期时间，0 表示不过期
	SweepInterval time.Duration // 过期输入与失效连接的扫描间隔

	// Upgrader 配置
	UpgraderConfig UpgraderConfig

	// 事件中间件，位于内置中间件之后
	Middleware []MiddlewareFunc

	// 监控与日志
	Metrics Metrics
	Logger  logger.Logger
}

// UpgraderConfig Upgrader 配置
type UpgraderConfig struct {
	ReadBufferSize    int                      // 读缓冲区大小
	WriteBufferSize   int                      // 写缓冲区大小
	CheckOrigin       func(*http.Request) bool // Origin 检查函数
	EnableCompression bool                     // 是否启用压缩
	AllowedOrigins    []string                 // 允许的 Origin 白名单
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		HandshakeTimeout:  10 * time.Second,
		MaxMessageSize:    64 * 1024,
		SendQueueSize:     256,
		WriteWait:         10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  90 * time.Second,
		SendTimeout:       2 * time.Second,
		BroadcastWorkers:  64,
		HandlerTimeout:    10 * time.Second,
		TeardownTimeout:   5 * time.Second,
		TypingTTL:         10 * time.Second,
		SweepInterval:     time.Second,
		UpgraderConfig: UpgraderConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("%w: HandshakeTimeout must be positive, got %v", ErrInvalidConfig, c.HandshakeTimeout)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: MaxMessageSize must be positive, got %d", ErrInvalidConfig, c.MaxMessageSize)
	}
	if c.SendQueueSize <= 0 {
		return fmt.Errorf("%w: SendQueueSize must be positive, got %d", ErrInvalidConfig, c.SendQueueSize)
	}
	if c.WriteWait <= 0 {
		return fmt.Errorf("%w: WriteWait must be positive, got %v", ErrInvalidConfig, c.WriteWait)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("%w: HeartbeatInterval must be positive, got %v", ErrInvalidConfig, c.HeartbeatInterval)
	}
	if c.HeartbeatTimeout <= c.HeartbeatInterval {
		return fmt.Errorf("%w: HeartbeatTimeout (%v) must be greater than HeartbeatInterval (%v)",
			ErrInvalidConfig, c.HeartbeatTimeout, c.HeartbeatInterval)
	}
	if c.SendTimeout <= 0 {
		return fmt.Errorf("%w: SendTimeout must be positive, got %v", ErrInvalidConfig, c.SendTimeout)
	}
	if c.BroadcastWorkers <= 0 {
		return fmt.Errorf("%w: BroadcastWorkers must be positive, got %d", ErrInvalidConfig, c.BroadcastWorkers)
	}
	if c.HandlerTimeout <= 0 {
		return fmt.Errorf("%w: HandlerTimeout must be positive, got %v", ErrInvalidConfig, c.HandlerTimeout)
	}
	if c.TeardownTimeout <= 0 {
		return fmt.Errorf("%w: TeardownTimeout must be positive, got %v", ErrInvalidConfig, c.TeardownTimeout)
	}
	if c.TypingTTL < 0 {
		return fmt.Errorf("%w: TypingTTL must not be negative, got %v", ErrInvalidConfig, c.TypingTTL)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("%w: SweepInterval must be positive, got %v", ErrInvalidConfig, c.SweepInterval)
	}
	if c.UpgraderConfig.ReadBufferSize <= 0 {
		return fmt.Errorf("%w: UpgraderConfig.ReadBufferSize must be positive, got %d", ErrInvalidConfig, c.UpgraderConfig.ReadBufferSize)
	}
	if c.UpgraderConfig.WriteBufferSize <= 0 {
		return fmt.Errorf("%w: UpgraderConfig.WriteBufferSize must be positive, got %d", ErrInvalidConfig, c.UpgraderConfig.WriteBufferSize)
	}
	return nil
}

// Option 配置选项
type Option func(*Config)

// WithHeartbeat 设置心跳间隔与超时
func WithHeartbeat(interval, timeout time.Duration) Option {
	return func(c *Config) {
		c.HeartbeatInterval = interval
		c.HeartbeatTimeout = timeout
	}
}

// WithMessageSizeLimit 设置单帧大小限制
func WithMessageSizeLimit(size int64) Option {
	return func(c *Config) {
		c.MaxMessageSize = size
	}
}

// WithSendQueueSize 设置发送队列长度
func WithSendQueueSize(size int) Option {
	return func(c *Config) {
		c.SendQueueSize = size
	}
}

// WithSendTimeout 设置单个接收者发送超时
func WithSendTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.SendTimeout = timeout
	}
}

// WithBroadcastWorkers 设置广播并发数
func WithBroadcastWorkers(n int) Option {
	return func(c *Config) {
		c.BroadcastWorkers = n
	}
}

// WithHandlerTimeout 设置事件处理超时
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.HandlerTimeout = timeout
	}
}

// WithTypingTTL 设置输入状态过期时间，0 关闭过期
func WithTypingTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.TypingTTL = ttl
	}
}

// WithSweepInterval 设置后台扫描间隔
func WithSweepInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.SweepInterval = interval
	}
}

// WithCheckOrigin 设置 Origin 检查函数
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.CheckOrigin = fn
	}
}

// WithCheckOriginWhitelist 设置 Origin 白名单
// 示例：WithCheckOriginWhitelist([]string{"https://example.com", "https://app.example.com"})
func WithCheckOriginWhitelist(allowedOrigins []string) Option {
	return func(c *Config) {
		c.UpgraderConfig.AllowedOrigins = allowedOrigins
		c.UpgraderConfig.CheckOrigin = createWhitelistChecker(allowedOrigins)
	}
}

// WithAllowAllOrigins 允许所有来源（仅用于开发环境）
func WithAllowAllOrigins() Option {
	return WithCheckOrigin(func(*http.Request) bool { return true })
}

// WithEnableCompression 启用压缩
func WithEnableCompression(enable bool) Option {
	return func(c *Config) {
		c.UpgraderConfig.EnableCompression = enable
	}
}

// WithMiddleware 追加事件中间件
func WithMiddleware(mw ...MiddlewareFunc) Option {
	return func(c *Config) {
		c.Middleware = append(c.Middleware, mw...)
	}
}

// WithMetrics 设置监控
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithLogger 设置日志
func WithLogger(log logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// defaultCheckOrigin 默认同源检查，非浏览器客户端不带 Origin 时放行
func defaultCheckOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// createWhitelistChecker 创建白名单检查器
func createWhitelistChecker(allowedOrigins []string) func(*http.Request) bool {
	whitelist := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		whitelist[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// 白名单模式下拒绝空 Origin
			return false
		}
		return whitelist[origin]
	}
}

// newUpgrader 创建升级器
func newUpgrader(handshakeTimeout time.Duration, config UpgraderConfig) *websocket.Upgrader {
	checkOrigin := config.CheckOrigin
	if checkOrigin == nil {
		if len(config.AllowedOrigins) > 0 {
			checkOrigin = createWhitelistChecker(config.AllowedOrigins)
		} else {
			checkOrigin = defaultCheckOrigin
		}
	}

	return &websocket.Upgrader{
		HandshakeTimeout:  handshakeTimeout,
		ReadBufferSize:    config.ReadBufferSize,
		WriteBufferSize:   config.WriteBufferSize,
		CheckOrigin:       checkOrigin,
		EnableCompression: config.EnableCompression,
	}
}
