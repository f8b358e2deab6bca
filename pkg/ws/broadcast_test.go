package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type broadcastFixture struct {
	registry   *Registry
	membership *Membership
	b          *Broadcaster
	room       uuid.UUID
	users      []uuid.UUID
	conns      map[uuid.UUID]*fakeTransport
}

func newBroadcastFixture(n int, sendTimeout time.Duration) *broadcastFixture {
	f := &broadcastFixture{
		registry:   NewRegistry(),
		membership: NewMembership(),
		room:       uuid.New(),
		conns:      make(map[uuid.UUID]*fakeTransport),
	}
	f.b = NewBroadcaster(f.registry, f.membership, 4, sendTimeout, nil, nil)
	for i := 0; i < n; i++ {
		id := uuid.New()
		ft := newFakeTransport()
		f.users = append(f.users, id)
		f.conns[id] = ft
		f.registry.Register(id, ft)
		f.membership.Join(id, f.room)
	}
	return f
}

func TestBroadcastWithDeadConnection(t *testing.T) {
	f := newBroadcastFixture(5, time.Second)
	dead := f.users[2]
	other := uuid.New()
	f.membership.Join(dead, other)
	f.conns[dead].sendErr = errors.New("broken pipe")

	res := f.b.BroadcastToRoom(context.Background(), f.room, []byte(`{"type":"x"}`), nil)

	assert.Equal(t, 4, res.Delivered)
	assert.Equal(t, []uuid.UUID{dead}, res.Failed)
	for _, id := range f.users {
		if id == dead {
			continue
		}
		assert.Len(t, f.conns[id].out, 1)
		assert.True(t, f.membership.IsMember(id, f.room))
	}

	assert.Equal(t, 4, f.registry.Count())
	_, ok := f.registry.Get(dead)
	assert.False(t, ok)
	assert.Empty(t, f.membership.RoomsOf(dead), "dead user purged from every room")
	assert.False(t, f.membership.HasRoom(other))
	assert.Equal(t, CloseServerError, f.conns[dead].code())
}

func TestBroadcastExclude(t *testing.T) {
	f := newBroadcastFixture(3, time.Second)
	sender := f.users[0]

	res := f.b.BroadcastToRoom(context.Background(), f.room, []byte("hi"), &sender)
	assert.Equal(t, 2, res.Delivered)
	assert.Empty(t, f.conns[sender].out)
}

func TestBroadcastSlowRecipientTimesOut(t *testing.T) {
	f := newBroadcastFixture(3, 50*time.Millisecond)
	slow := f.users[0]
	f.conns[slow].block = true

	start := time.Now()
	res := f.b.BroadcastToRoom(context.Background(), f.room, []byte("hi"), nil)

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, 2, res.Delivered)
	assert.Equal(t, []uuid.UUID{slow}, res.Failed)
	_, ok := f.registry.Get(slow)
	assert.False(t, ok)
}

func TestBroadcastUnknownRoom(t *testing.T) {
	f := newBroadcastFixture(1, time.Second)
	res := f.b.BroadcastToRoom(context.Background(), uuid.New(), []byte("hi"), nil)
	assert.Zero(t, res.Delivered)
	assert.Empty(t, res.Failed)
}

func TestSendToUser(t *testing.T) {
	f := newBroadcastFixture(1, time.Second)
	user := f.users[0]

	require.NoError(t, f.b.SendToUser(context.Background(), user, []byte("direct")))
	assert.Equal(t, []byte("direct"), <-f.conns[user].out)

	ghost := uuid.New()
	f.membership.Join(ghost, f.room)
	assert.ErrorIs(t, f.b.SendToUser(context.Background(), ghost, []byte("direct")), ErrNotConnected)
	assert.False(t, f.membership.IsMember(ghost, f.room), "absent recipient purged")
}

func TestPurgeKeepsNewerSession(t *testing.T) {
	f := newBroadcastFixture(1, time.Second)
	user := f.users[0]
	old := f.conns[user]
	f.registry.Register(user, newFakeTransport())

	f.b.Purge(user, old)

	_, ok := f.registry.Get(user)
	assert.True(t, ok)
	assert.True(t, f.membership.IsMember(user, f.room))
	assert.True(t, old.Closed())
}
