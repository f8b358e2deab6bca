package ws

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/logger"
	"github.com/tokmz/pawchat/pkg/tracing"
)

// Recovery 将处理器 panic 转换为内部错误
func Recovery(log logger.Logger) MiddlewareFunc {
	return func(ctx context.Context, s *Session, ev Event, next NextFunc) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.ErrorContext(ctx, "handler panic",
					zap.String("type", ev.Type()),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()))
				err = apperr.ErrInternal.WithError(fmt.Errorf("panic: %v", r))
			}
		}()
		return next(ctx)
	}
}

// Logging 记录每个事件的处理结果
func Logging(log logger.Logger) MiddlewareFunc {
	return func(ctx context.Context, s *Session, ev Event, next NextFunc) error {
		start := time.Now()
		err := next(ctx)
		fields := []zap.Field{
			zap.String("type", ev.Type()),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			log.WarnContext(ctx, "event failed", append(fields, zap.Error(err))...)
			return err
		}
		log.DebugContext(ctx, "event handled", fields...)
		return nil
	}
}

// Tracing 为每个事件创建 ws.<type> Span
func Tracing() MiddlewareFunc {
	return func(ctx context.Context, s *Session, ev Event, next NextFunc) error {
		ctx, span := tracing.StartSpan(ctx, "ws."+ev.Type(),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("ws.session_id", s.ID),
				attribute.String("ws.user_id", s.UserID.String()),
			))
		defer span.End()

		err := next(ctx)
		tracing.RecordError(span, err)
		return err
	}
}

// Instrument 记录事件数量、耗时与失败数
func Instrument(metrics Metrics) MiddlewareFunc {
	return func(ctx context.Context, s *Session, ev Event, next NextFunc) error {
		start := time.Now()
		metrics.IncrementMessageCount(ev.Type())
		err := next(ctx)
		metrics.RecordMessageLatency(ev.Type(), time.Since(start))
		if err != nil {
			metrics.IncrementMessageErrors(ev.Type())
		}
		return err
	}
}
