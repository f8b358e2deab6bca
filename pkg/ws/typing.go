package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// TypingExpiry 超时未续期的输入状态
type TypingExpiry struct {
	UserID uuid.UUID
	RoomID uuid.UUID
}

// TypingState 房间内正在输入的用户
//
// ttl 为 0 时输入状态只会被显式停止或断开清除。
type TypingState struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]time.Time // roomID -> userID -> 最近一次输入
	ttl   time.Duration
	now   func() time.Time
}

// NewTypingState 创建输入状态表
func NewTypingState(ttl time.Duration) *TypingState {
	return &TypingState{
		rooms: make(map[uuid.UUID]map[uuid.UUID]time.Time),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Set 更新输入状态，只有开始或停止输入时返回 true
//
// 对正在输入的用户重复设置 true 只刷新时间，不产生通知。
func (t *TypingState) Set(userID, roomID uuid.UUID, isTyping bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	users, ok := t.rooms[roomID]
	if isTyping {
		if !ok {
			users = make(map[uuid.UUID]time.Time)
			t.rooms[roomID] = users
		}
		_, was := users[userID]
		users[userID] = t.now()
		return !was
	}

	if !ok {
		return false
	}
	if _, was := users[userID]; !was {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}

// Clear 清除用户在所有房间的输入状态，返回原本在输入的房间
func (t *TypingState) Clear(userID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()

	var rooms []uuid.UUID
	for roomID, users := range t.rooms {
		if _, ok := users[userID]; !ok {
			continue
		}
		delete(users, userID)
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
		rooms = append(rooms, roomID)
	}
	return rooms
}

// IsTyping 用户是否在房间中输入
func (t *TypingState) IsTyping(userID, roomID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rooms[roomID][userID]
	return ok
}

// Users 房间内正在输入的用户快照
func (t *TypingState) Users(roomID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	users := make([]uuid.UUID, 0, len(t.rooms[roomID]))
	for id := range t.rooms[roomID] {
		users = append(users, id)
	}
	return users
}

// Count 所有房间输入状态总数
func (t *TypingState) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, users := range t.rooms {
		n += len(users)
	}
	return n
}

// Expire 移除超过 ttl 未刷新的输入状态
func (t *TypingState) Expire() []TypingExpiry {
	if t.ttl <= 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	deadline := t.now().Add(-t.ttl)
	var expired []TypingExpiry
	for roomID, users := range t.rooms {
		for userID, at := range users {
			if at.After(deadline) {
				continue
			}
			delete(users, userID)
			expired = append(expired, TypingExpiry{UserID: userID, RoomID: roomID})
		}
		if len(users) == 0 {
			delete(t.rooms, roomID)
		}
	}
	return expired
}
