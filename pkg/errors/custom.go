package errors

/*
	内置常用错误码
*/

var (
	// ErrServer 服务器错误
	ErrServer = New(1000, "internal server error", 500)
	// ErrBadRequest 客户端请求错误
	ErrBadRequest = New(1001, "bad request", 400)
	// ErrUnauthorized 未授权
	ErrUnauthorized = New(1002, "unauthorized", 401)
	// ErrForbidden 禁止访问
	ErrForbidden = New(1003, "forbidden", 403)
	// ErrNotFound 资源不存在
	ErrNotFound = New(1004, "not found", 404)
)

/*
	聊天实时通道错误码（2xxx）
*/

var (
	// ErrInvalidMessage 无法解析的帧
	ErrInvalidMessage = New(2001, "invalid message format", 400)
	// ErrUnknownEvent 未知事件类型
	ErrUnknownEvent = New(2002, "unknown message type", 400)
	// ErrValidation 事件字段校验失败
	ErrValidation = New(2003, "invalid message data", 400)
	// ErrNotChatMember 非聊天成员
	ErrNotChatMember = New(2004, "you are not a participant of this chat", 403)
	// ErrInvalidTarget 目标用户不合法
	ErrInvalidTarget = New(2005, "invalid target user", 400)
	// ErrCollaborator 依赖服务调用失败
	ErrCollaborator = New(2006, "upstream service failed", 502)
	// ErrInternal 处理器内部错误
	ErrInternal = New(2007, "internal error", 500)
)
