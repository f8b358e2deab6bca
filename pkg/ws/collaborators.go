package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Authenticator 连接鉴权
type Authenticator interface {
	// Authenticate 从握手请求中解析并校验用户身份
	Authenticate(ctx context.Context, r *http.Request) (uuid.UUID, error)
}

// ChatDirectory 聊天目录
type ChatDirectory interface {
	// RoomsForUser 返回用户参与的全部聊天
	RoomsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	// IsMember 判断用户是否为聊天参与者
	IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	// Participants 返回聊天的全部参与者
	Participants(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error)
	// CreatePrivateRoom 创建两人私聊，已存在时返回已有聊天
	CreatePrivateRoom(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, error)
}

// Message 已持久化的聊天消息
type Message struct {
	ID        uuid.UUID `json:"id"`
	ChatID    uuid.UUID `json:"chat_id"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageStore 消息持久化
type MessageStore interface {
	// CreateMessage 保存消息，发送者不是参与者时返回错误
	CreateMessage(ctx context.Context, roomID, senderID uuid.UUID, content string) (*Message, error)
	// MarkRead 将聊天中他人发送的消息标记为已读
	MarkRead(ctx context.Context, roomID, userID uuid.UUID) error
}

// UserDirectory 用户目录
type UserDirectory interface {
	// SetOnlineStatus 更新在线状态，离线时同时记录最后在线时间
	SetOnlineStatus(ctx context.Context, userID uuid.UUID, online bool) error
}
