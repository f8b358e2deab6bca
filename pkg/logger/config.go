package logger

// Format 编码格式
type Format string

const (
	JSONFormat    Format = "json"
	ConsoleFormat Format = "console"
)

// IsValid 是否为已知格式
func (f Format) IsValid() bool { return f == JSONFormat || f == ConsoleFormat }

// RotateConfig lumberjack 轮转参数，零值字段取默认值
type RotateConfig struct {
	Filename   string
	MaxSize    int // MB，默认 100
	MaxAge     int // 天，默认 30
	MaxBackups int // 默认 10
	Compress   bool
}

func (r RotateConfig) withDefaults() RotateConfig {
	if r.MaxSize <= 0 {
		r.MaxSize = 100
	}
	if r.MaxAge <= 0 {
		r.MaxAge = 30
	}
	if r.MaxBackups <= 0 {
		r.MaxBackups = 10
	}
	return r
}

// Config 日志配置
type Config struct {
	Level  Level  // 日志级别（默认 InfoLevel）
	Format Format // 日志格式（json/console，默认 json）

	// 输出配置
	Console bool          // 是否输出到控制台
	File    string        // 文件路径（空则不输出到文件）
	Rotate  *RotateConfig // 轮转配置（nil 则不轮转）

	EnableCaller     bool // 是否记录调用位置
	EnableStacktrace bool // 是否记录堆栈（Error 及以上）
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Format == "" {
		c.Format = JSONFormat
	}
	// 未配置任何输出时默认输出到控制台
	if !c.Console && c.File == "" && (c.Rotate == nil || c.Rotate.Filename == "") {
		c.Console = true
	}
}

// FileConfig 配置文件中的日志段（log.*）
type FileConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Console    bool   `mapstructure:"console"`
	File       string `mapstructure:"file"`
	RotateFile string `mapstructure:"rotate_file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
	Caller     bool   `mapstructure:"caller"`
}

// ToConfig 转换为 Config
func (f FileConfig) ToConfig() (*Config, error) {
	level, err := ParseLevel(f.Level)
	if err != nil {
		return nil, err
	}
	cfg := &Config{
		Level:            level,
		Format:           Format(f.Format),
		Console:          f.Console,
		File:             f.File,
		EnableCaller:     f.Caller,
		EnableStacktrace: true,
	}
	if !cfg.Format.IsValid() {
		cfg.Format = JSONFormat
	}
	if f.RotateFile != "" {
		cfg.Rotate = &RotateConfig{
			Filename:   f.RotateFile,
			MaxSize:    f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAge:     f.MaxAgeDays,
			Compress:   f.Compress,
		}
	}
	return cfg, nil
}
