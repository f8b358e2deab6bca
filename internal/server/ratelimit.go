package server

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/logger"
)

var errTooManyRequests = apperr.New(1005, "too many requests", 429)

// tokenBucket 令牌桶
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// limiter 按 key 维护令牌桶
type limiter struct {
	rate   float64
	burst  float64
	expiry time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = max(1, int(cfg.RequestsPerSecond))
	}
	return &limiter{
		rate:    cfg.RequestsPerSecond,
		burst:   float64(burst),
		expiry:  cfg.BucketExpiry,
		now:     time.Now,
		buckets: make(map[string]*tokenBucket),
	}
}

func (l *limiter) allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	b, exists := l.buckets[key]
	if !exists {
		b = &tokenBucket{tokens: l.burst, lastRefill: now}
		l.buckets[key] = b
	}
	l.mu.Unlock()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = min(l.burst, b.tokens+now.Sub(b.lastRefill).Seconds()*l.rate)
	b.lastRefill = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep 删除长时间未访问的桶
func (l *limiter) sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		idle := now.Sub(b.lastRefill) > l.expiry
		b.mu.Unlock()
		if idle {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// middleware 按客户端 IP 限流
func (l *limiter) middleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if l.allow(ip) {
			c.Next()
			return
		}
		log.WarnContext(c.Request.Context(), "rate limit exceeded",
			zap.String("ip", ip),
			zap.String("path", c.Request.URL.Path))
		fail(c, errTooManyRequests)
	}
}
