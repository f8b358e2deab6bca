package cache

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

// Loader 读穿缓存：未命中时同一 key 的并发调用只回源一次
type Loader[T any] struct {
	cache Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewLoader 创建 Loader
func NewLoader[T any](c Cache, ttl time.Duration) *Loader[T] {
	return &Loader[T]{cache: c, ttl: ttl}
}

// Get 先查缓存，未命中或缓存不可用时调用 fn 并回填
func (l *Loader[T]) Get(ctx context.Context, key string, fn func(context.Context) (T, error)) (T, error) {
	var v T
	if err := l.cache.Get(ctx, key, &v); err == nil {
		return v, nil
	}

	res, err, _ := l.group.Do(key, func() (any, error) {
		loaded, err := fn(ctx)
		if err != nil {
			return loaded, err
		}
		_ = l.cache.Set(ctx, key, loaded, l.ttl)
		return loaded, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := res.(T)
	if !ok {
		var zero T
		return zero, ErrSerialization.WithMessage("unexpected loader result type")
	}
	return out, nil
}

// Invalidate 删除缓存并丢弃进行中的回源结果
func (l *Loader[T]) Invalidate(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		l.group.Forget(k)
	}
	return l.cache.Delete(ctx, keys...)
}

// IsNotFound 是否为未命中
func IsNotFound(err error) bool {
	return apperr.Is(err, ErrNotFound)
}
