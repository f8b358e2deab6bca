package tracing

import (
	"io"
	"time"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

// 导出器类型
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
	ExporterNoop   = "noop"
)

// ErrInvalidConfig 配置错误
var ErrInvalidConfig = apperr.New(4001, "invalid tracing config", 500)

// Config 链路追踪配置
type Config struct {
	// 服务名称（必填）
	ServiceName string `mapstructure:"service_name"`

	// 服务版本
	ServiceVersion string `mapstructure:"service_version"`

	// 环境（dev/staging/prod）
	Environment string `mapstructure:"environment"`

	// 导出器类型（otlp/stdout/noop）
	ExporterType string `mapstructure:"exporter"`

	// OTLP Collector 地址（host:port）
	ExporterEndpoint string `mapstructure:"endpoint"`

	// 导出器请求头（用于认证）
	ExporterHeaders map[string]string `mapstructure:"headers"`

	// 是否使用非 TLS 连接
	Insecure bool `mapstructure:"insecure"`

	// 采样率（0.0-1.0）
	SamplingRate float64 `mapstructure:"sampling_rate"`

	// 采样类型（always/never/ratio/parent_based）
	SamplingType string `mapstructure:"sampling_type"`

	// 是否启用
	Enabled bool `mapstructure:"enabled"`

	// 资源属性（自定义标签）
	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`

	// 批处理配置
	BatchTimeout       time.Duration `mapstructure:"batch_timeout"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`

	// stdout 导出器的输出，默认 os.Stdout
	Writer io.Writer `mapstructure:"-"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ServiceName:        "pawchat",
		ServiceVersion:     "1.0.0",
		Environment:        "development",
		ExporterType:       ExporterNoop,
		SamplingRate:       1.0,
		SamplingType:       "parent_based",
		Enabled:            false,
		ResourceAttributes: make(map[string]string),
		BatchTimeout:       5 * time.Second,
		MaxExportBatchSize: 512,
		MaxQueueSize:       2048,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return ErrInvalidConfig.WithMessage("service name is required")
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return ErrInvalidConfig.WithMessage("sampling rate must be between 0.0 and 1.0")
	}
	switch c.ExporterType {
	case ExporterOTLP, ExporterStdout, ExporterNoop:
	default:
		return ErrInvalidConfig.WithMessagef("invalid exporter type: %s", c.ExporterType)
	}
	return nil
}
