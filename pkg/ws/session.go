package ws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/logger"
)

// SessionState 会话状态
type SessionState int32

const (
	StateConnecting SessionState = iota
	StateActive
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session 一个已鉴权连接的生命周期
type Session struct {
	ID          string
	UserID      uuid.UUID
	ConnectedAt time.Time

	transport SessionTransport
	manager   *Manager
	logger    logger.Logger
	state     atomic.Int32
}

func newSession(m *Manager, userID uuid.UUID, t SessionTransport) *Session {
	id := uuid.NewString()
	return &Session{
		ID:          id,
		UserID:      userID,
		ConnectedAt: time.Now(),
		transport:   t,
		manager:     m,
		logger: m.logger.With(
			zap.String("session_id", id),
			zap.String("user_id", userID.String())),
	}
}

// State 当前状态
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// Send 向本会话发送出站事件
func (s *Session) Send(ctx context.Context, tag string, data any) error {
	payload, err := Encode(tag, data)
	if err != nil {
		return apperr.ErrInternal.WithError(err)
	}
	return s.sendRaw(ctx, payload)
}

func (s *Session) sendRaw(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.manager.config.SendTimeout)
	defer cancel()
	return s.transport.Send(ctx, payload)
}

// SendError 将错误转换为 error 事件发回
func (s *Session) SendError(ctx context.Context, err error) error {
	e := apperr.From(err, apperr.ErrInternal)
	return s.Send(ctx, TagError, ErrorPayload{Code: e.Code, Message: e.Message})
}

// run 驱动 Connecting → Active → Closing → Closed
func (s *Session) run(ctx context.Context) error {
	s.setState(StateConnecting)
	s.activate(ctx)

	s.loop(ctx)

	s.setState(StateClosing)
	err := s.teardown()
	s.setState(StateClosed)
	return err
}

func (s *Session) activate(ctx context.Context) {
	m := s.manager
	unlock := m.registry.LockUser(s.UserID)
	defer unlock()

	if prev := m.registry.Register(s.UserID, s.transport); prev != nil {
		s.logger.Info("replacing previous session")
		m.metrics.IncrementReplacedSessions()
		_ = prev.Close(CloseReplaced, "session replaced")
	} else {
		m.metrics.IncrementConnections()
	}
	m.metrics.SetConnectionCount(m.registry.Count())

	dirCtx, cancel := context.WithTimeout(ctx, m.config.HandlerTimeout)
	rooms, err := m.chats.RoomsForUser(dirCtx, s.UserID)
	if err != nil {
		s.logger.WarnContext(dirCtx, "load chats failed, connecting without subscriptions", zap.Error(err))
		rooms = nil
	}
	m.presence.MarkOnline(dirCtx, s.UserID, rooms)
	cancel()

	m.metrics.SetRoomCount(m.membership.RoomCount())
	s.setState(StateActive)
	s.logger.Info("session active", zap.Int("chats", len(rooms)))
}

// loop 串行处理入站帧，连接关闭或 ctx 结束时返回
func (s *Session) loop(ctx context.Context) {
	for {
		frame, err := s.transport.Receive(ctx)
		if err != nil {
			if !errors.Is(err, ErrConnectionClosed) && !errors.Is(err, context.Canceled) {
				s.logger.Debug("receive stopped", zap.Error(err))
			}
			return
		}

		if bytes.Equal(frame, pingFrame) {
			if err := s.sendRaw(ctx, pongFrame); err != nil {
				s.logger.Debug("pong failed", zap.Error(err))
			}
			continue
		}

		s.dispatch(ctx, frame)
	}
}

func (s *Session) dispatch(ctx context.Context, frame []byte) {
	ctx, cancel := context.WithTimeout(ctx, s.manager.config.HandlerTimeout)
	defer cancel()
	ctx = logger.WithUserID(ctx, s.UserID.String())

	ev, err := DecodeEvent(frame)
	if err != nil {
		s.manager.metrics.IncrementInvalidMessages()
		s.logger.DebugContext(ctx, "rejecting frame", zap.Error(err))
	} else {
		err = s.manager.router.Route(ctx, s, ev)
	}
	if err == nil {
		return
	}
	if serr := s.SendError(ctx, err); serr != nil {
		s.logger.DebugContext(ctx, "send error event failed", zap.Error(serr))
	}
}

// teardown 依次执行四个清理步骤，任一步骤失败不影响后续步骤
//
// 状态变更在用户锁内完成，停止输入通知在锁外发送。
func (s *Session) teardown() error {
	m := s.manager
	ctx, cancel := context.WithTimeout(context.Background(), m.config.TeardownTimeout)
	defer cancel()
	ctx = logger.WithUserID(ctx, s.UserID.String())
	defer func() { _ = s.transport.Close(CloseNormal, "") }()

	typingRooms, errs, replaced := s.release(ctx)
	if replaced {
		s.logger.InfoContext(ctx, "session replaced, skipping cleanup")
		return nil
	}

	for _, roomID := range typingRooms {
		err := step("clear_typing", func() error {
			return m.broadcastEvent(ctx, roomID, TagUserStoppedTyping,
				UserChatPayload{UserID: s.UserID, ChatID: roomID}, &s.UserID)
		})
		if err != nil {
			errs = append(errs, err)
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.ErrorContext(ctx, "session teardown incomplete", zap.Error(err))
	} else {
		s.logger.InfoContext(ctx, "session closed")
	}
	return err
}

// release 持用户锁撤销本会话的注册、订阅、输入与在线状态
//
// 注册表已由其他连接接管时不做任何清理。
func (s *Session) release(ctx context.Context) (typingRooms []uuid.UUID, errs []error, replaced bool) {
	m := s.manager
	unlock := m.registry.LockUser(s.UserID)
	defer unlock()

	errs = append(errs, step("unregister", func() error {
		replaced = m.registry.Release(s.UserID, s.transport)
		return nil
	}))
	if replaced {
		return nil, nil, true
	}
	m.metrics.DecrementConnections()
	m.metrics.SetConnectionCount(m.registry.Count())

	errs = append(errs,
		step("leave_chats", func() error {
			m.membership.RemoveUser(s.UserID)
			m.metrics.SetRoomCount(m.membership.RoomCount())
			return nil
		}),
		step("clear_typing", func() error {
			typingRooms = m.presence.ClearTyping(s.UserID)
			return nil
		}),
		step("mark_offline", func() error {
			m.presence.MarkOffline(ctx, s.UserID)
			return nil
		}),
	)
	return typingRooms, errs, false
}

// step 执行一个清理步骤，panic 转换为错误
func step(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
	}()
	if err := fn(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
