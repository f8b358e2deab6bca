package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tokmz/pawchat/pkg/cache"
	"github.com/tokmz/pawchat/pkg/ws"
)

var _ ws.ChatDirectory = (*CachedChats)(nil)

// CachedChats 为聊天目录的成员查询加读穿缓存
type CachedChats struct {
	next    ws.ChatDirectory
	rooms        *cache.Loader[[]uuid.UUID]
	members      *cache.Loader[bool]
	participants *cache.Loader[[]uuid.UUID]
}

// NewCachedChats 包装聊天目录
func NewCachedChats(next ws.ChatDirectory, c cache.Cache, ttl time.Duration) *CachedChats {
	return &CachedChats{
		next:    next,
		rooms:        cache.NewLoader[[]uuid.UUID](c, ttl),
		members:      cache.NewLoader[bool](c, ttl),
		participants: cache.NewLoader[[]uuid.UUID](c, ttl),
	}
}

func roomsKey(userID uuid.UUID) string { return "rooms:" + userID.String() }

func participantsKey(roomID uuid.UUID) string { return "participants:" + roomID.String() }

func memberKey(roomID, userID uuid.UUID) string {
	return "member:" + roomID.String() + ":" + userID.String()
}

func (c *CachedChats) RoomsForUser(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	return c.rooms.Get(ctx, roomsKey(userID), func(ctx context.Context) ([]uuid.UUID, error) {
		return c.next.RoomsForUser(ctx, userID)
	})
}

func (c *CachedChats) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	return c.members.Get(ctx, memberKey(roomID, userID), func(ctx context.Context) (bool, error) {
		return c.next.IsMember(ctx, roomID, userID)
	})
}

func (c *CachedChats) Participants(ctx context.Context, roomID uuid.UUID) ([]uuid.UUID, error) {
	return c.participants.Get(ctx, participantsKey(roomID), func(ctx context.Context) ([]uuid.UUID, error) {
		return c.next.Participants(ctx, roomID)
	})
}

// CreatePrivateRoom 创建后使两名参与者的缓存失效
func (c *CachedChats) CreatePrivateRoom(ctx context.Context, a, b uuid.UUID) (uuid.UUID, error) {
	roomID, err := c.next.CreatePrivateRoom(ctx, a, b)
	if err != nil {
		return uuid.Nil, err
	}
	_ = c.rooms.Invalidate(ctx, roomsKey(a), roomsKey(b))
	_ = c.members.Invalidate(ctx, memberKey(roomID, a), memberKey(roomID, b))
	_ = c.participants.Invalidate(ctx, participantsKey(roomID))
	return roomID, nil
}
