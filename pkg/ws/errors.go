package ws

import "errors"

// 错误定义
var (
	// 连接相关错误
	ErrConnectionClosed = errors.New("ws: connection closed")
	ErrSendTimeout      = errors.New("ws: send timeout")
	ErrNotConnected     = errors.New("ws: user not connected")
	ErrManagerClosed    = errors.New("ws: manager is shutting down")

	// 路由相关错误
	ErrHandlerExists = errors.New("ws: handler already exists")
	ErrRouterFrozen  = errors.New("ws: router is frozen")

	// 配置相关错误
	ErrInvalidConfig = errors.New("ws: invalid config")
)

// Close codes
const (
	CloseNormal       = 1000 // 正常关闭
	CloseShutdown     = 1001 // 服务端下线
	CloseUnauthorized = 1008 // 鉴权失败
	CloseServerError  = 1011 // 服务端错误
	CloseReplaced     = 4000 // 同一用户建立了新会话
)
