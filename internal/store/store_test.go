package store

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tokmz/pawchat/pkg/cache"
	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/orm"
)

func newDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := orm.DefaultConfig()
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	cfg.MaxOpenConns = 1
	db, err := orm.New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() { _ = orm.Close(db) })
	return db
}

type fixture struct {
	db       *gorm.DB
	users    *Users
	chats    *Chats
	messages *Messages
}

func newFixture(t *testing.T) *fixture {
	db := newDB(t)
	chats := NewChats(db)
	return &fixture{db: db, users: NewUsers(db), chats: chats, messages: NewMessages(db, chats)}
}

func (f *fixture) user(t *testing.T) uuid.UUID {
	t.Helper()
	u := &User{Email: uuid.NewString() + "@pets.test"}
	require.NoError(t, f.db.Create(u).Error)
	return u.ID
}

// unread 他人发送给 userID 的未读消息数
func (f *fixture) unread(t *testing.T, roomID, userID uuid.UUID) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&Message{}).
		Where("chat_id = ? AND sender_id <> ? AND is_read = ?", roomID, userID, false).
		Count(&n).Error)
	return n
}

func (f *fixture) load(t *testing.T, id uuid.UUID) User {
	t.Helper()
	var u User
	require.NoError(t, f.db.First(&u, "id = ?", id).Error)
	return u
}

func TestCreatePrivateRoomIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, c := f.user(t), f.user(t), f.user(t)

	first, err := f.chats.CreatePrivateRoom(ctx, a, b)
	require.NoError(t, err)
	second, err := f.chats.CreatePrivateRoom(ctx, b, a)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	participants, err := f.chats.Participants(ctx, first)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, participants)

	other, err := f.chats.CreatePrivateRoom(ctx, a, c)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	rooms, err := f.chats.RoomsForUser(ctx, a)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{first, other}, rooms)
}

func TestCreatePrivateRoomConcurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t), f.user(t)

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := f.chats.CreatePrivateRoom(ctx, a, b)
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestCreatePrivateRoomRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t)

	_, err := f.chats.CreatePrivateRoom(ctx, a, a)
	assert.ErrorIs(t, err, apperr.ErrInvalidTarget)

	_, err = f.chats.CreatePrivateRoom(ctx, a, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrInvalidTarget)
}

func TestIsMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, outsider := f.user(t), f.user(t), f.user(t)
	room, err := f.chats.CreatePrivateRoom(ctx, a, b)
	require.NoError(t, err)

	ok, err := f.chats.IsMember(ctx, room, a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.chats.IsMember(ctx, room, outsider)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMessages(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, outsider := f.user(t), f.user(t), f.user(t)
	room, err := f.chats.CreatePrivateRoom(ctx, a, b)
	require.NoError(t, err)

	_, err = f.messages.CreateMessage(ctx, room, outsider, "hi")
	assert.ErrorIs(t, err, apperr.ErrNotChatMember)

	msg, err := f.messages.CreateMessage(ctx, room, a, "Is this your cat?")
	require.NoError(t, err)
	assert.Equal(t, room, msg.ChatID)
	assert.Equal(t, a, msg.SenderID)
	assert.False(t, msg.IsRead)
	assert.NotEqual(t, uuid.Nil, msg.ID)

	_, err = f.messages.CreateMessage(ctx, room, a, "Grey tabby, white paws")
	require.NoError(t, err)

	assert.Equal(t, int64(2), f.unread(t, room, b))

	require.NoError(t, f.messages.MarkRead(ctx, room, a))
	assert.Equal(t, int64(2), f.unread(t, room, b), "the sender's own read marker does not count")

	require.NoError(t, f.messages.MarkRead(ctx, room, b))
	assert.Zero(t, f.unread(t, room, b))

	assert.ErrorIs(t, f.messages.MarkRead(ctx, room, outsider), apperr.ErrNotChatMember)
}

func TestUsersOnlineStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.user(t)

	require.NoError(t, f.users.SetOnlineStatus(ctx, a, true))
	u := f.load(t, a)
	assert.True(t, u.IsOnline)
	assert.Nil(t, u.LastSeen)

	require.NoError(t, f.users.SetOnlineStatus(ctx, a, false))
	u = f.load(t, a)
	assert.False(t, u.IsOnline)
	require.NotNil(t, u.LastSeen)

	// 未知用户为空操作
	assert.NoError(t, f.users.SetOnlineStatus(ctx, uuid.New(), true))
}

func TestResetOnline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b, idle := f.user(t), f.user(t), f.user(t)
	require.NoError(t, f.users.SetOnlineStatus(ctx, a, true))
	require.NoError(t, f.users.SetOnlineStatus(ctx, b, true))

	n, err := f.users.ResetOnline(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	for _, id := range []uuid.UUID{a, b} {
		u := f.load(t, id)
		assert.False(t, u.IsOnline)
		assert.NotNil(t, u.LastSeen)
	}
	assert.Nil(t, f.load(t, idle).LastSeen)

	n, err = f.users.ResetOnline(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type countingChats struct {
	*Chats
	rooms atomic.Int32
}

func (c *countingChats) RoomsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	c.rooms.Add(1)
	return c.Chats.RoomsForUser(ctx, userID)
}

func TestCachedChats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a, b := f.user(t), f.user(t)
	inner := &countingChats{Chats: f.chats}
	cached := NewCachedChats(inner, cache.NewMemory(100, "", time.Minute), time.Minute)

	rooms, err := cached.RoomsForUser(ctx, a)
	require.NoError(t, err)
	assert.Empty(t, rooms)
	_, err = cached.RoomsForUser(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int32(1), inner.rooms.Load())

	ok, err := cached.IsMember(ctx, uuid.New(), a)
	require.NoError(t, err)
	assert.False(t, ok)

	room, err := cached.CreatePrivateRoom(ctx, a, b)
	require.NoError(t, err)
	rooms, err = cached.RoomsForUser(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{room}, rooms, "creation invalidates")

	ok, err = cached.IsMember(ctx, room, b)
	require.NoError(t, err)
	assert.True(t, ok)

	participants, err := cached.Participants(ctx, room)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a, b}, participants)
}

func TestPresenceCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	cfg := cache.DefaultRedisConfig()
	cfg.Addr = addr
	client, err := cache.NewRedisClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	a := f.user(t)
	p := NewPresenceCache(client, f.users, "pawchat-test:"+uuid.NewString()+":")
	t.Cleanup(func() { _ = p.Reset(ctx) })

	require.NoError(t, p.SetOnlineStatus(ctx, a, true))
	online, err := p.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a}, online)

	require.NoError(t, p.SetOnlineStatus(ctx, a, false))
	online, err = p.OnlineUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)

	seen, err := p.LastSeen(ctx, a)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), seen, 2*time.Second)
}
