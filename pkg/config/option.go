package config

import "strings"

// Option 配置选项
type Option func(*Config)

// WithConfigFile 使用指定路径的配置文件，类型由扩展名决定
func WithConfigFile(path string) Option {
	return func(c *Config) { c.configFile = path }
}

// WithSearch 在 paths 中查找名为 name 的配置文件
func WithSearch(name, typ string, paths ...string) Option {
	return func(c *Config) {
		c.configName = name
		c.configType = typ
		c.configPaths = paths
	}
}

// WithOptional 找不到配置文件时只使用默认值与环境变量
func WithOptional(optional bool) Option {
	return func(c *Config) { c.optional = optional }
}

// WithAutoWatch Load 成功后开始监听文件变更，回调由 OnChange 设置
func WithAutoWatch(watch bool) Option {
	return func(c *Config) { c.autoWatch = watch }
}

// WithDefaults 默认值，同时让对应键可以被环境变量覆盖
func WithDefaults(defaults map[string]any) Option {
	return func(c *Config) { c.defaults = defaults }
}

// WithEnv 读取 prefix_ 开头的环境变量，键中的 "." 对应 "_"
func WithEnv(prefix string) Option {
	return func(c *Config) {
		c.envPrefix = prefix
		c.envKeyReplacer = strings.NewReplacer(".", "_")
	}
}
