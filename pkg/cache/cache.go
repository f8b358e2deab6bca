// Package cache 键值缓存（内存 LRU 或 Redis）与 Redis 客户端构建
package cache

import (
	"context"
	"encoding/json"
	"time"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

// Cache 缓存接口，值以 JSON 编码存储
type Cache interface {
	Get(ctx context.Context, key string, value any) error
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	ErrNotFound      = apperr.New(3001, "cache key not found", 404)
	ErrConnection    = apperr.New(3002, "cache connection failed", 500)
	ErrSerialization = apperr.New(3003, "cache serialization failed", 500)
	ErrInvalidConfig = apperr.New(3004, "cache invalid config", 500)
)

// New 按驱动创建缓存
func New(ctx context.Context, cfg *Config) (Cache, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverRedis:
		client, err := NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedis(client, cfg.KeyPrefix, cfg.DefaultTTL), nil
	default:
		return NewMemory(cfg.MaxEntries, cfg.KeyPrefix, cfg.DefaultTTL), nil
	}
}

func encode(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, ErrSerialization.WithError(err)
	}
	return data, nil
}

func decode(data []byte, value any) error {
	if err := json.Unmarshal(data, value); err != nil {
		return ErrSerialization.WithError(err)
	}
	return nil
}
