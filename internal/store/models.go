// Package store 基于 GORM 与 Redis 的聊天协作方实现
package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User 用户
type User struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	Email     string    `gorm:"size:255;not null;uniqueIndex"`
	IsOnline  bool      `gorm:"not null;default:false"`
	LastSeen  *time.Time
	CreatedAt time.Time
	Chats     []Chat `gorm:"many2many:chat_participants;"`
}

// Chat 聊天，私聊恰好两名参与者
type Chat struct {
	ID           uuid.UUID `gorm:"type:char(36);primaryKey"`
	Name         *string   `gorm:"size:255"`
	IsGroup      bool      `gorm:"not null;default:false"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Participants []User `gorm:"many2many:chat_participants;"`
}

// Message 聊天消息
type Message struct {
	ID        uuid.UUID `gorm:"type:char(36);primaryKey"`
	ChatID    uuid.UUID `gorm:"type:char(36);not null;index"`
	SenderID  uuid.UUID `gorm:"type:char(36);not null;index"`
	Content   string    `gorm:"type:text;not null"`
	IsRead    bool      `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

const participantsTable = "chat_participants"

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (c *Chat) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// Migrate 自动建表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&User{}, &Chat{}, &Message{})
}
