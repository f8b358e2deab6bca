package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/tokmz/pawchat/pkg/cache"

// tracedCache 为每次缓存操作创建 span
type tracedCache struct {
	Cache
}

// WithTracing 包装缓存，增加链路追踪
func WithTracing(c Cache) Cache {
	return &tracedCache{Cache: c}
}

func (t *tracedCache) span(ctx context.Context, op string, keys ...string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "cache."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.operation", op),
			attribute.StringSlice("cache.keys", keys),
		))
}

func finish(span trace.Span, err error) {
	defer span.End()
	// 未命中不算错误
	if err != nil && !IsNotFound(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Bool("cache.hit", err == nil))
}

func (t *tracedCache) Get(ctx context.Context, key string, value any) error {
	ctx, span := t.span(ctx, "get", key)
	err := t.Cache.Get(ctx, key, value)
	finish(span, err)
	return err
}

func (t *tracedCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	ctx, span := t.span(ctx, "set", key)
	span.SetAttributes(attribute.Int64("cache.ttl_ms", ttl.Milliseconds()))
	err := t.Cache.Set(ctx, key, value, ttl)
	finish(span, err)
	return err
}

func (t *tracedCache) Delete(ctx context.Context, keys ...string) error {
	ctx, span := t.span(ctx, "delete", keys...)
	err := t.Cache.Delete(ctx, keys...)
	finish(span, err)
	return err
}
