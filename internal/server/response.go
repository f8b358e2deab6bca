package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/logger"
	"github.com/tokmz/pawchat/pkg/tracing"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

// traceID 优先使用链路 ID，未追踪的请求使用请求 ID
func traceID(c *gin.Context) string {
	ctx := c.Request.Context()
	if id := tracing.TraceID(ctx); id != "" {
		return id
	}
	return logger.TraceIDFromContext(ctx)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    http.StatusOK,
		Data:    data,
		Message: "success",
		TraceID: traceID(c),
	})
}

// fail 以错误对应的 HTTP 状态码响应，不携带数据
func fail(c *gin.Context, err error) {
	e := apperr.From(err, apperr.ErrServer)
	status := e.HttpCode
	if status < http.StatusBadRequest {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, Response{
		Code:    e.Code,
		Message: e.Message,
		TraceID: traceID(c),
	})
}
