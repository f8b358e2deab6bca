package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

const waitTimeout = 2 * time.Second

// fakeTransport 内存中的 SessionTransport
type fakeTransport struct {
	out  chan []byte
	in   chan []byte
	done chan struct{}
	once sync.Once

	mu          sync.Mutex
	closeCode   int
	closeReason string

	sendErr error
	block   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		out:  make(chan []byte, 256),
		in:   make(chan []byte),
		done: make(chan struct{}),
	}
}

func (f *fakeTransport) Send(ctx context.Context, payload []byte) error {
	if f.Closed() {
		return ErrConnectionClosed
	}
	if f.sendErr != nil {
		return f.sendErr
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case f.out <- payload:
		return nil
	default:
		return errors.New("fake transport buffer full")
	}
}

func (f *fakeTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-f.in:
		return data, nil
	case <-f.done:
		return nil, ErrConnectionClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) Close(code int, reason string) error {
	f.once.Do(func() {
		f.mu.Lock()
		f.closeCode, f.closeReason = code, reason
		f.mu.Unlock()
		close(f.done)
	})
	return nil
}

func (f *fakeTransport) Closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) code() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeCode
}

// push 投递一帧入站消息
func (f *fakeTransport) push(t *testing.T, frame string) {
	t.Helper()
	select {
	case f.in <- []byte(frame):
	case <-time.After(waitTimeout):
		t.Fatalf("session did not accept frame %q", frame)
	}
}

func (f *fakeTransport) pushEvent(t *testing.T, tag string, data any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"type": tag, "data": data})
	require.NoError(t, err)
	f.push(t, string(raw))
}

// next 读取下一帧出站消息
func (f *fakeTransport) next(t *testing.T) []byte {
	t.Helper()
	select {
	case data := <-f.out:
		return data
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

type outFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// expect 跳过其他事件直到收到指定类型
func (f *fakeTransport) expect(t *testing.T, tag string) outFrame {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case data := <-f.out:
			var fr outFrame
			require.NoError(t, json.Unmarshal(data, &fr), "frame %s", data)
			if fr.Type == tag {
				return fr
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", tag)
			return outFrame{}
		}
	}
}

// expectNone 在短时间内没有任何出站帧
func (f *fakeTransport) expectNone(t *testing.T) {
	t.Helper()
	select {
	case data := <-f.out:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func decodeData[T any](t *testing.T, fr outFrame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(fr.Data, &v))
	return v
}

// memChats 内存聊天目录
type memChats struct {
	mu       sync.Mutex
	members  map[uuid.UUID]map[uuid.UUID]bool
	private  map[[2]uuid.UUID]uuid.UUID
	roomsErr error

	participantsErr error
}

func newMemChats() *memChats {
	return &memChats{
		members: make(map[uuid.UUID]map[uuid.UUID]bool),
		private: make(map[[2]uuid.UUID]uuid.UUID),
	}
}

func (c *memChats) addRoom(users ...uuid.UUID) uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := uuid.New()
	c.members[id] = make(map[uuid.UUID]bool)
	for _, u := range users {
		c.members[id][u] = true
	}
	return id
}

func (c *memChats) Participants(_ context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.participantsErr != nil {
		return nil, c.participantsErr
	}
	var out []uuid.UUID
	for u := range c.members[roomID] {
		out = append(out, u)
	}
	return out, nil
}

func (c *memChats) RoomsForUser(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.roomsErr != nil {
		return nil, c.roomsErr
	}
	var rooms []uuid.UUID
	for id, users := range c.members {
		if users[userID] {
			rooms = append(rooms, id)
		}
	}
	return rooms, nil
}

func (c *memChats) IsMember(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.members[roomID][userID], nil
}

func (c *memChats) CreatePrivateRoom(_ context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	pair := []uuid.UUID{a, b}
	sort.Slice(pair, func(i, j int) bool { return pair[i].String() < pair[j].String() })
	key := [2]uuid.UUID{pair[0], pair[1]}

	c.mu.Lock()
	id, ok := c.private[key]
	c.mu.Unlock()
	if ok {
		return id, nil
	}
	id = c.addRoom(a, b)
	c.mu.Lock()
	c.private[key] = id
	c.mu.Unlock()
	return id, nil
}

// memMessages 内存消息存储
type memMessages struct {
	chats   *memChats
	mu      sync.Mutex
	saved   []*Message
	reads   int
	panicOn string
}

func (s *memMessages) CreateMessage(ctx context.Context, roomID, senderID uuid.UUID, content string) (*Message, error) {
	if s.panicOn != "" && content == s.panicOn {
		panic("store exploded")
	}
	ok, _ := s.chats.IsMember(ctx, roomID, senderID)
	if !ok {
		return nil, apperr.ErrNotChatMember
	}
	now := time.Now()
	msg := &Message{ID: uuid.New(), ChatID: roomID, SenderID: senderID, Content: content, CreatedAt: now, UpdatedAt: now}
	s.mu.Lock()
	s.saved = append(s.saved, msg)
	s.mu.Unlock()
	return msg, nil
}

func (s *memMessages) MarkRead(ctx context.Context, roomID, userID uuid.UUID) error {
	ok, _ := s.chats.IsMember(ctx, roomID, userID)
	if !ok {
		return apperr.ErrNotChatMember
	}
	s.mu.Lock()
	s.reads++
	s.mu.Unlock()
	return nil
}

func (s *memMessages) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

// memUsers 记录在线状态变更
type memUsers struct {
	mu      sync.Mutex
	online  map[uuid.UUID]bool
	onCalls map[uuid.UUID]int
	offs    map[uuid.UUID]int
	err     error
}

func newMemUsers() *memUsers {
	return &memUsers{
		online:  make(map[uuid.UUID]bool),
		onCalls: make(map[uuid.UUID]int),
		offs:    make(map[uuid.UUID]int),
	}
}

func (u *memUsers) SetOnlineStatus(_ context.Context, userID uuid.UUID, online bool) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.online[userID] = online
	if online {
		u.onCalls[userID]++
	} else {
		u.offs[userID]++
	}
	return u.err
}

func (u *memUsers) onlineCalls(userID uuid.UUID) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.onCalls[userID]
}

func (u *memUsers) isOnline(userID uuid.UUID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.online[userID]
}

func (u *memUsers) offlineCalls(userID uuid.UUID) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.offs[userID]
}

// queryAuth 从 ?user= 读取用户
type queryAuth struct{}

func (queryAuth) Authenticate(_ context.Context, r *http.Request) (uuid.UUID, error) {
	return uuid.Parse(r.URL.Query().Get("user"))
}

// countingMetrics 统计部分指标
type countingMetrics struct {
	NoopMetrics
	invalid  atomic.Int64
	messages atomic.Int64
	dropped  atomic.Int64
}

func (c *countingMetrics) IncrementInvalidMessages()            { c.invalid.Add(1) }
func (c *countingMetrics) IncrementMessageCount(msgType string) { c.messages.Add(1) }
func (c *countingMetrics) IncrementDroppedMessages()            { c.dropped.Add(1) }

type testEnv struct {
	m        *Manager
	chats    *memChats
	messages *memMessages
	users    *memUsers
	metrics  *countingMetrics
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	chats := newMemChats()
	env := &testEnv{
		chats:    chats,
		messages: &memMessages{chats: chats},
		users:    newMemUsers(),
		metrics:  &countingMetrics{},
	}
	base := []Option{
		WithSendTimeout(200 * time.Millisecond),
		WithTypingTTL(0),
		WithMetrics(env.metrics),
	}
	m, err := NewManager(Dependencies{
		Auth:     queryAuth{},
		Chats:    chats,
		Messages: env.messages,
		Users:    env.users,
	}, append(base, opts...)...)
	require.NoError(t, err)
	env.m = m

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return env
}

type testConn struct {
	*fakeTransport
	user uuid.UUID
	done chan error
}

// connect 启动会话并等待进入 Active
func (e *testEnv) connect(t *testing.T, userID uuid.UUID) *testConn {
	t.Helper()
	before := e.users.onlineCalls(userID)
	c := &testConn{fakeTransport: newFakeTransport(), user: userID, done: make(chan error, 1)}
	go func() { c.done <- e.m.Serve(context.Background(), userID, c.fakeTransport) }()
	require.Eventually(t, func() bool { return e.users.onlineCalls(userID) > before },
		waitTimeout, 5*time.Millisecond)
	return c
}

// hangup 模拟客户端断开并等待清理完成
func (c *testConn) hangup(t *testing.T) error {
	t.Helper()
	_ = c.Close(CloseNormal, "client gone")
	select {
	case err := <-c.done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("session did not finish")
		return nil
	}
}
