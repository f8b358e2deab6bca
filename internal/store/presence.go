package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/ws"
)

var _ ws.UserDirectory = (*PresenceCache)(nil)

// PresenceCache 将在线集合与最后在线时间镜像到 Redis，再委托给下游用户目录
type PresenceCache struct {
	client redis.UniversalClient
	next   ws.UserDirectory
	prefix string
	now    func() time.Time
}

// NewPresenceCache 创建 Redis 在线状态镜像
func NewPresenceCache(client redis.UniversalClient, next ws.UserDirectory, prefix string) *PresenceCache {
	return &PresenceCache{client: client, next: next, prefix: prefix, now: time.Now}
}

func (p *PresenceCache) onlineKey() string   { return p.prefix + "presence:online" }
func (p *PresenceCache) lastSeenKey() string { return p.prefix + "presence:last_seen" }

// SetOnlineStatus Redis 写入失败时仍会调用下游
func (p *PresenceCache) SetOnlineStatus(ctx context.Context, userID uuid.UUID, online bool) error {
	id := userID.String()
	_, redisErr := p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if online {
			pipe.SAdd(ctx, p.onlineKey(), id)
		} else {
			pipe.SRem(ctx, p.onlineKey(), id)
		}
		pipe.HSet(ctx, p.lastSeenKey(), id, p.now().Unix())
		return nil
	})

	err := p.next.SetOnlineStatus(ctx, userID, online)
	if err != nil {
		return err
	}
	if redisErr != nil {
		return apperr.ErrCollaborator.WithError(redisErr)
	}
	return nil
}

// OnlineUsers Redis 中的在线用户
func (p *PresenceCache) OnlineUsers(ctx context.Context) ([]uuid.UUID, error) {
	members, err := p.client.SMembers(ctx, p.onlineKey()).Result()
	if err != nil {
		return nil, apperr.ErrCollaborator.WithError(err)
	}
	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		if id, err := uuid.Parse(m); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// LastSeen 最后一次状态变更时间，未记录时返回零值
func (p *PresenceCache) LastSeen(ctx context.Context, userID uuid.UUID) (time.Time, error) {
	raw, err := p.client.HGet(ctx, p.lastSeenKey(), userID.String()).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, apperr.ErrCollaborator.WithError(err)
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, apperr.ErrCollaborator.WithError(err)
	}
	return time.Unix(sec, 0), nil
}

// Reset 清空在线集合，进程启动时调用
func (p *PresenceCache) Reset(ctx context.Context) error {
	if err := p.client.Del(ctx, p.onlineKey()).Err(); err != nil {
		return apperr.ErrCollaborator.WithError(err)
	}
	return nil
}
