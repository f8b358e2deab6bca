package ws

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tokmz/pawchat/pkg/logger"
)

// Presence 在线与输入状态
//
// 在线状态完全由 Registry 推导，UserDirectory 只负责持久化。
type Presence struct {
	registry   *Registry
	membership *Membership
	typing     *TypingState
	users      UserDirectory
	logger     logger.Logger
}

// NewPresence 创建在线状态跟踪器
func NewPresence(registry *Registry, membership *Membership, typing *TypingState, users UserDirectory, log logger.Logger) *Presence {
	if log == nil {
		log = logger.NewNop()
	}
	return &Presence{
		registry:   registry,
		membership: membership,
		typing:     typing,
		users:      users,
		logger:     log,
	}
}

// MarkOnline 订阅房间并记录上线
func (p *Presence) MarkOnline(ctx context.Context, userID uuid.UUID, rooms []uuid.UUID) {
	for _, roomID := range rooms {
		p.membership.Join(userID, roomID)
	}
	if err := p.users.SetOnlineStatus(ctx, userID, true); err != nil {
		p.logger.WarnContext(ctx, "set online status failed",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// MarkOffline 记录离线及最后在线时间，失败只记录日志
func (p *Presence) MarkOffline(ctx context.Context, userID uuid.UUID) {
	if err := p.users.SetOnlineStatus(ctx, userID, false); err != nil {
		p.logger.WarnContext(ctx, "set offline status failed",
			zap.String("user_id", userID.String()), zap.Error(err))
	}
}

// IsOnline 用户是否在线
func (p *Presence) IsOnline(userID uuid.UUID) bool {
	_, ok := p.registry.Get(userID)
	return ok
}

// OnlineMembers 房间中在线的成员
func (p *Presence) OnlineMembers(roomID uuid.UUID) []uuid.UUID {
	members := p.membership.MembersOf(roomID)
	online := members[:0]
	for _, id := range members {
		if p.IsOnline(id) {
			online = append(online, id)
		}
	}
	return online
}

// SetTyping 更新输入状态，返回是否需要通知
func (p *Presence) SetTyping(userID, roomID uuid.UUID, isTyping bool) bool {
	return p.typing.Set(userID, roomID, isTyping)
}

// ClearTyping 清除用户全部输入状态
func (p *Presence) ClearTyping(userID uuid.UUID) []uuid.UUID {
	return p.typing.Clear(userID)
}

// TypingUsers 房间内正在输入的用户
func (p *Presence) TypingUsers(roomID uuid.UUID) []uuid.UUID {
	return p.typing.Users(roomID)
}
