package ws

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transport 单个实时连接的发送端
type Transport interface {
	// Send 发送一帧，ctx 到期视为发送失败
	Send(ctx context.Context, payload []byte) error
	// Close 以指定关闭码关闭连接，可重复调用
	Close(code int, reason string) error
	// Closed 连接是否已关闭
	Closed() bool
}

// SessionTransport 会话使用的双向连接
type SessionTransport interface {
	Transport
	// Receive 阻塞读取下一帧
	Receive(ctx context.Context) ([]byte, error)
}

// Connection 在线连接
type Connection struct {
	UserID      uuid.UUID
	Transport   Transport
	ConnectedAt time.Time
}

// Registry 用户到唯一在线连接的映射
type Registry struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]Connection

	lifecycle userLocks
}

// NewRegistry 创建连接注册表
func NewRegistry() *Registry {
	return &Registry{
		conns:     make(map[uuid.UUID]Connection),
		lifecycle: userLocks{locks: make(map[uuid.UUID]*userLock)},
	}
}

// LockUser 串行化同一用户的上线与清理，返回解锁函数
//
// 持锁期间注册表、房间订阅与持久化在线状态的变更作为一个整体生效，
// 调用方不得在持锁时向其他用户发送消息。
func (r *Registry) LockUser(userID uuid.UUID) (unlock func()) {
	return r.lifecycle.lock(userID)
}

// Register 安装用户的连接，返回被替换的旧连接
func (r *Registry) Register(userID uuid.UUID, t Transport) Transport {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.conns[userID]
	r.conns[userID] = Connection{UserID: userID, Transport: t, ConnectedAt: time.Now()}
	if !ok || prev.Transport == t {
		return nil
	}
	return prev.Transport
}

// Unregister 移除用户连接，用户不存在时为空操作
func (r *Registry) Unregister(userID uuid.UUID) {
	r.mu.Lock()
	delete(r.conns, userID)
	r.mu.Unlock()
}

// Release 仅当注册表仍持有 t 时移除，返回用户是否已被其他连接接管
func (r *Registry) Release(userID uuid.UUID, t Transport) (replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.conns[userID]
	if !ok {
		return false
	}
	if cur.Transport != t {
		return true
	}
	delete(r.conns, userID)
	return false
}

// Get 获取用户连接
func (r *Registry) Get(userID uuid.UUID) (Transport, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c.Transport, ok
}

// Connection 获取连接详情
func (r *Registry) Connection(userID uuid.UUID) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// ListOnline 在线用户快照
func (r *Registry) ListOnline() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]uuid.UUID, 0, len(r.conns))
	for id := range r.conns {
		users = append(users, id)
	}
	return users
}

// Snapshot 连接快照
func (r *Registry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Connection, 0, len(r.conns))
	for _, c := range r.conns {
		conns = append(conns, c)
	}
	return conns
}

// Count 在线连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// userLocks 按用户分配的互斥锁，无人持有时回收
type userLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

func (l *userLocks) lock(userID uuid.UUID) func() {
	l.mu.Lock()
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			ul.mu.Unlock()
			l.mu.Lock()
			ul.refs--
			if ul.refs == 0 {
				delete(l.locks, userID)
			}
			l.mu.Unlock()
		})
	}
}

// size 当前被持有或等待的用户锁数量
func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
