package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/ws"
)

var _ ws.MessageStore = (*Messages)(nil)

// Messages 消息存储
type Messages struct {
	db    *gorm.DB
	chats ws.ChatDirectory
}

// NewMessages 创建消息存储，chats 用于校验发送者身份
func NewMessages(db *gorm.DB, chats ws.ChatDirectory) *Messages {
	return &Messages{db: db, chats: chats}
}

// CreateMessage 持久化一条消息
func (m *Messages) CreateMessage(ctx context.Context, roomID, senderID uuid.UUID, content string) (*ws.Message, error) {
	if err := m.requireMember(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	msg := Message{ChatID: roomID, SenderID: senderID, Content: content}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&Chat{}).Where("id = ?", roomID).Update("updated_at", msg.CreatedAt).Error
	})
	if err != nil {
		return nil, apperr.ErrCollaborator.WithError(err)
	}
	return toWire(msg), nil
}

// MarkRead 将聊天中他人发送的消息标记为已读
func (m *Messages) MarkRead(ctx context.Context, roomID, userID uuid.UUID) error {
	if err := m.requireMember(ctx, roomID, userID); err != nil {
		return err
	}
	err := m.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", roomID, userID, false).
		Updates(map[string]any{"is_read": true, "updated_at": time.Now()}).Error
	if err != nil {
		return apperr.ErrCollaborator.WithError(err)
	}
	return nil
}

func (m *Messages) requireMember(ctx context.Context, roomID, userID uuid.UUID) error {
	ok, err := m.chats.IsMember(ctx, roomID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrNotChatMember
	}
	return nil
}

func toWire(m Message) *ws.Message {
	return &ws.Message{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		IsRead:    m.IsRead,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}
