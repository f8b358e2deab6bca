package ws

import (
	"sync"

	"github.com/google/uuid"
)

type idSet map[uuid.UUID]struct{}

func (s idSet) slice() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	return out
}

// Membership 房间成员双向索引
//
// rooms 与 users 两个方向始终在同一把锁内修改，读者不会观察到只更新了一侧的状态。
// 空集合在修改时立即删除。
type Membership struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]idSet // roomID -> users
	users map[uuid.UUID]idSet // userID -> rooms
}

// NewMembership 创建成员索引
func NewMembership() *Membership {
	return &Membership{
		rooms: make(map[uuid.UUID]idSet),
		users: make(map[uuid.UUID]idSet),
	}
}

// Join 加入房间，返回是否为新增
func (m *Membership) Join(userID, roomID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.rooms[roomID]
	if !ok {
		members = make(idSet)
		m.rooms[roomID] = members
	}
	if _, exists := members[userID]; exists {
		return false
	}
	members[userID] = struct{}{}

	rooms, ok := m.users[userID]
	if !ok {
		rooms = make(idSet)
		m.users[userID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true
}

// Leave 离开房间，返回是否确实移除
func (m *Membership) Leave(userID, roomID uuid.UUID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(userID, roomID)
}

func (m *Membership) leaveLocked(userID, roomID uuid.UUID) bool {
	members, ok := m.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := members[userID]; !exists {
		return false
	}
	delete(members, userID)
	if len(members) == 0 {
		delete(m.rooms, roomID)
	}

	if rooms, ok := m.users[userID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(m.users, userID)
		}
	}
	return true
}

// RemoveUser 将用户移出所有房间，返回受影响的房间
func (m *Membership) RemoveUser(userID uuid.UUID) []uuid.UUID {
	m.mu.Lock()
	defer m.mu.Unlock()

	rooms := m.users[userID].slice()
	for _, roomID := range rooms {
		m.leaveLocked(userID, roomID)
	}
	return rooms
}

// MembersOf 房间成员快照，未知房间返回空
func (m *Membership) MembersOf(roomID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[roomID].slice()
}

// RoomsOf 用户所在房间快照
func (m *Membership) RoomsOf(userID uuid.UUID) []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.users[userID].slice()
}

// IsMember 用户是否订阅了房间
func (m *Membership) IsMember(userID, roomID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomID][userID]
	return ok
}

// HasRoom 房间是否存在于索引中
func (m *Membership) HasRoom(roomID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[roomID]
	return ok
}

// RoomCount 非空房间数
func (m *Membership) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Distribution 每个房间的在线成员数
func (m *Membership) Distribution() map[uuid.UUID]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[uuid.UUID]int, len(m.rooms))
	for roomID, members := range m.rooms {
		out[roomID] = len(members)
	}
	return out
}
