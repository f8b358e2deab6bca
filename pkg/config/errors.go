package config

import "github.com/tokmz/pawchat/pkg/errors"

// 配置包专用错误定义
var (
	// ErrConfigNotFound 配置文件未找到
	ErrConfigNotFound = errors.New(5001, "config file not found", 500)
	// ErrConfigReadFailed 配置读取失败
	ErrConfigReadFailed = errors.New(5002, "config read failed", 500)
	// ErrConfigDecode 配置反序列化失败
	ErrConfigDecode = errors.New(5003, "config decode failed", 500)
)
