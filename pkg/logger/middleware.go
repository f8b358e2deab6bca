package logger

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader 请求 ID 头，缺省时生成
const RequestIDHeader = "X-Request-ID"

// Middleware gin 访问日志，websocket 升级请求在会话结束时记录一次
func Middleware(log Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Request = c.Request.WithContext(WithTraceID(c.Request.Context(), requestID))
		c.Header(RequestIDHeader, requestID)

		c.Next()

		status := c.Writer.Status()
		ctx := c.Request.Context()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.String("ip", c.ClientIP()),
		}

		if status == http.StatusSwitchingProtocols {
			log.InfoContext(ctx, "websocket closed", append(fields, zap.Duration("duration", time.Since(start)))...)
			return
		}

		fields = append(fields, zap.Duration("latency", time.Since(start)))
		switch {
		case status >= 500:
			log.ErrorContext(ctx, "request", fields...)
		case status >= 400:
			log.WarnContext(ctx, "request", fields...)
		default:
			log.DebugContext(ctx, "request", fields...)
		}
	}
}
