package store

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/ws"
)

var _ ws.ChatDirectory = (*Chats)(nil)

// Chats 聊天目录
type Chats struct {
	db *gorm.DB
	// 串行化私聊创建，保证同一对用户只有一个私聊
	createMu sync.Mutex
}

// NewChats 创建聊天目录
func NewChats(db *gorm.DB) *Chats {
	return &Chats{db: db}
}

// RoomsForUser 用户参与的全部聊天
func (c *Chats) RoomsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := c.db.WithContext(ctx).Table(participantsTable).
		Where("user_id = ?", userID).
		Pluck("chat_id", &ids).Error
	if err != nil {
		return nil, apperr.ErrCollaborator.WithError(err)
	}
	return ids, nil
}

// IsMember 用户是否为聊天参与者
func (c *Chats) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	var n int64
	err := c.db.WithContext(ctx).Table(participantsTable).
		Where("chat_id = ? AND user_id = ?", roomID, userID).
		Count(&n).Error
	if err != nil {
		return false, apperr.ErrCollaborator.WithError(err)
	}
	return n > 0, nil
}

// Participants 聊天的参与者
func (c *Chats) Participants(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := c.db.WithContext(ctx).Table(participantsTable).
		Where("chat_id = ?", roomID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, apperr.ErrCollaborator.WithError(err)
	}
	return ids, nil
}

// CreatePrivateRoom 返回两人之间的私聊，不存在时创建
func (c *Chats) CreatePrivateRoom(ctx context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	if a == b {
		return uuid.Nil, apperr.ErrInvalidTarget.WithMessage("cannot create a chat with yourself")
	}

	c.createMu.Lock()
	defer c.createMu.Unlock()

	var roomID uuid.UUID
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := findPrivateRoom(tx, a, b)
		if err != nil {
			return err
		}
		if existing != uuid.Nil {
			roomID = existing
			return nil
		}

		var users int64
		if err := tx.Model(&User{}).Where("id IN ?", []uuid.UUID{a, b}).Count(&users).Error; err != nil {
			return err
		}
		if users != 2 {
			return apperr.ErrInvalidTarget.WithMessage("user not found")
		}

		chat := Chat{}
		if err := tx.Create(&chat).Error; err != nil {
			return err
		}
		rows := []map[string]any{
			{"chat_id": chat.ID, "user_id": a},
			{"chat_id": chat.ID, "user_id": b},
		}
		if err := tx.Table(participantsTable).Create(rows).Error; err != nil {
			return err
		}
		roomID = chat.ID
		return nil
	})
	if err != nil {
		var coded *apperr.Error
		if errors.As(err, &coded) {
			return uuid.Nil, coded
		}
		return uuid.Nil, apperr.ErrCollaborator.WithError(err)
	}
	return roomID, nil
}

// findPrivateRoom 两人共同参与的非群聊
func findPrivateRoom(tx *gorm.DB, a, b uuid.UUID) (uuid.UUID, error) {
	var ids []uuid.UUID
	err := tx.Table(participantsTable+" AS cp").
		Joins("JOIN chats ON chats.id = cp.chat_id").
		Where("chats.is_group = ? AND cp.user_id IN ?", false, []uuid.UUID{a, b}).
		Group("cp.chat_id").
		Having("COUNT(DISTINCT cp.user_id) = ?", 2).
		Limit(1).
		Pluck("cp.chat_id", &ids).Error
	if err != nil || len(ids) == 0 {
		return uuid.Nil, err
	}
	return ids[0], nil
}
