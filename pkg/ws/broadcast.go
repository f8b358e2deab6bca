package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokmz/pawchat/pkg/logger"
)

// BroadcastResult 单次广播结果
type BroadcastResult struct {
	Delivered int
	Failed    []uuid.UUID
}

// Broadcaster 房间广播与单播
//
// 每个接收者的发送相互独立并各自受 sendTimeout 约束，
// 失败的接收者会被移出注册表和所有房间，其余接收者不受影响。
type Broadcaster struct {
	registry    *Registry
	membership  *Membership
	workers     int
	sendTimeout time.Duration
	metrics     Metrics
	logger      logger.Logger
}

// NewBroadcaster 创建广播器
func NewBroadcaster(registry *Registry, membership *Membership, workers int, sendTimeout time.Duration, metrics Metrics, log logger.Logger) *Broadcaster {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Broadcaster{
		registry:    registry,
		membership:  membership,
		workers:     workers,
		sendTimeout: sendTimeout,
		metrics:     metrics,
		logger:      log,
	}
}

// BroadcastToRoom 向房间成员广播，exclude 不为空时跳过该用户
func (b *Broadcaster) BroadcastToRoom(ctx context.Context, roomID uuid.UUID, payload []byte, exclude *uuid.UUID) BroadcastResult {
	start := time.Now()
	defer func() { b.metrics.RecordBroadcastLatency(time.Since(start)) }()

	result := b.fanOut(ctx, without(b.membership.MembersOf(roomID), exclude), payload)
	if len(result.Failed) > 0 {
		b.logger.WarnContext(ctx, "broadcast partially failed",
			zap.String("chat_id", roomID.String()),
			zap.Int("delivered", result.Delivered),
			zap.Int("failed", len(result.Failed)))
	}
	return result
}

// BroadcastToUsers 向给定用户中当前在线的部分发送，离线用户直接跳过
func (b *Broadcaster) BroadcastToUsers(ctx context.Context, users []uuid.UUID, payload []byte, exclude *uuid.UUID) BroadcastResult {
	start := time.Now()
	defer func() { b.metrics.RecordBroadcastLatency(time.Since(start)) }()

	online := make([]uuid.UUID, 0, len(users))
	for _, id := range without(users, exclude) {
		if _, ok := b.registry.Get(id); ok {
			online = append(online, id)
		}
	}
	return b.fanOut(ctx, online, payload)
}

func without(users []uuid.UUID, exclude *uuid.UUID) []uuid.UUID {
	if exclude == nil {
		return users
	}
	out := make([]uuid.UUID, 0, len(users))
	for _, id := range users {
		if id != *exclude {
			out = append(out, id)
		}
	}
	return out
}

func (b *Broadcaster) fanOut(ctx context.Context, recipients []uuid.UUID, payload []byte) BroadcastResult {
	var (
		mu     sync.Mutex
		result BroadcastResult
	)
	if len(recipients) == 0 {
		return result
	}

	// 单个接收者失败不影响其他接收者
	var g errgroup.Group
	if b.workers > 0 {
		g.SetLimit(b.workers)
	}
	for _, userID := range recipients {
		g.Go(func() error {
			err := b.deliver(ctx, userID, payload)
			mu.Lock()
			if err == nil {
				result.Delivered++
			} else {
				result.Failed = append(result.Failed, userID)
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// SendToUser 向单个用户发送，用户不在线时返回 ErrNotConnected
func (b *Broadcaster) SendToUser(ctx context.Context, userID uuid.UUID, payload []byte) error {
	return b.deliver(ctx, userID, payload)
}

func (b *Broadcaster) deliver(ctx context.Context, userID uuid.UUID, payload []byte) error {
	t, ok := b.registry.Get(userID)
	if !ok {
		b.logger.DebugContext(ctx, "recipient not connected", zap.String("user_id", userID.String()))
		b.metrics.IncrementDroppedMessages()
		b.dropStale(userID)
		return ErrNotConnected
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	err := t.Send(sendCtx, payload)
	cancel()
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		err = errors.Join(ErrSendTimeout, err)
	}
	b.logger.WarnContext(ctx, "deliver failed, dropping connection",
		zap.String("user_id", userID.String()), zap.Error(err))
	b.metrics.IncrementDroppedMessages()
	b.metrics.IncrementWriteErrors()
	b.Purge(userID, t)
	return err
}

// Purge 移除失效连接及其房间订阅
//
// 若用户已被新连接接管，只关闭旧连接。
func (b *Broadcaster) Purge(userID uuid.UUID, t Transport) {
	unlock := b.registry.LockUser(userID)
	if !b.registry.Release(userID, t) {
		b.membership.RemoveUser(userID)
	}
	unlock()
	_ = t.Close(CloseServerError, "delivery failed")
}

// dropStale 移除未连接用户残留的房间订阅，重连后的订阅保留
func (b *Broadcaster) dropStale(userID uuid.UUID) {
	unlock := b.registry.LockUser(userID)
	defer unlock()
	if _, ok := b.registry.Get(userID); !ok {
		b.membership.RemoveUser(userID)
	}
}
