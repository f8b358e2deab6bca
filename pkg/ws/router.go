package ws

import (
	"context"
	"sync"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

// HandlerFunc 事件处理器
type HandlerFunc func(ctx context.Context, s *Session, ev Event) error

// NextFunc 中间件下一步函数
type NextFunc func(ctx context.Context) error

// MiddlewareFunc 中间件函数
type MiddlewareFunc func(ctx context.Context, s *Session, ev Event, next NextFunc) error

// Router 按事件类型分发
type Router struct {
	handlers   map[string]HandlerFunc
	middleware []MiddlewareFunc
	compiled   map[string]HandlerFunc // 预编译的处理器链
	mu         sync.RWMutex
	frozen     bool
}

// NewRouter 创建路由器
func NewRouter() *Router {
	return &Router{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register 注册处理器
func (r *Router) Register(tag string, handler HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRouterFrozen
	}
	if _, exists := r.handlers[tag]; exists {
		return ErrHandlerExists
	}
	r.handlers[tag] = handler
	return nil
}

// Use 添加中间件
func (r *Router) Use(middleware ...MiddlewareFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRouterFrozen
	}
	r.middleware = append(r.middleware, middleware...)
	return nil
}

// Freeze 冻结路由器（启动后不可修改）
func (r *Router) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return
	}
	r.frozen = true

	r.compiled = make(map[string]HandlerFunc, len(r.handlers))
	for tag, handler := range r.handlers {
		r.compiled[tag] = chain(r.middleware, handler)
	}
}

// chain 从后向前构建中间件链
func chain(middleware []MiddlewareFunc, handler HandlerFunc) HandlerFunc {
	final := handler
	for i := len(middleware) - 1; i >= 0; i-- {
		mw, next := middleware[i], final
		final = func(ctx context.Context, s *Session, ev Event) error {
			return mw(ctx, s, ev, func(ctx context.Context) error {
				return next(ctx, s, ev)
			})
		}
	}
	return final
}

// Route 分发事件
func (r *Router) Route(ctx context.Context, s *Session, ev Event) error {
	r.mu.RLock()
	if r.frozen {
		handler, exists := r.compiled[ev.Type()]
		r.mu.RUnlock()
		if !exists {
			return apperr.ErrUnknownEvent.WithMessagef("unknown message type: %s", ev.Type())
		}
		return handler(ctx, s, ev)
	}

	handler, exists := r.handlers[ev.Type()]
	middleware := append([]MiddlewareFunc(nil), r.middleware...)
	r.mu.RUnlock()

	if !exists {
		return apperr.ErrUnknownEvent.WithMessagef("unknown message type: %s", ev.Type())
	}
	return chain(middleware, handler)(ctx, s, ev)
}

// Handle 注册强类型处理器，事件类型由 E 决定
func Handle[E Event](r *Router, handler func(ctx context.Context, s *Session, ev E) error) error {
	var zero E
	return r.Register(zero.Type(), func(ctx context.Context, s *Session, ev Event) error {
		typed, ok := ev.(E)
		if !ok {
			return apperr.ErrInvalidMessage
		}
		return handler(ctx, s, typed)
	})
}
