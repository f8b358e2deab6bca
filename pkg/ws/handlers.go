package ws

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

// registerHandlers 注册全部入站事件处理器
func (m *Manager) registerHandlers() error {
	r := m.router
	for _, register := range []func() error{
		func() error { return Handle(r, m.handleJoinChat) },
		func() error { return Handle(r, m.handleLeaveChat) },
		func() error { return Handle(r, m.handleSendMessage) },
		func() error { return Handle(r, m.handleTyping) },
		func() error { return Handle(r, m.handleMarkRead) },
		func() error { return Handle(r, m.handleListChats) },
		func() error { return Handle(r, m.handleCreateChat) },
		func() error { return Handle(r, m.handleGetChatStatus) },
	} {
		if err := register(); err != nil {
			return err
		}
	}
	return nil
}

// requireParticipant 通过聊天目录确认用户是参与者
func (m *Manager) requireParticipant(ctx context.Context, roomID, userID uuid.UUID) error {
	ok, err := m.chats.IsMember(ctx, roomID, userID)
	if err != nil {
		return apperr.From(err, apperr.ErrCollaborator)
	}
	if !ok {
		return apperr.ErrNotChatMember
	}
	return nil
}

func (m *Manager) handleJoinChat(ctx context.Context, s *Session, ev JoinChat) error {
	if err := m.requireParticipant(ctx, ev.ChatID, s.UserID); err != nil {
		return err
	}
	if !m.membership.Join(s.UserID, ev.ChatID) {
		return nil
	}
	m.metrics.SetRoomCount(m.membership.RoomCount())
	return m.broadcastEvent(ctx, ev.ChatID, TagUserJoined,
		UserChatPayload{UserID: s.UserID, ChatID: ev.ChatID}, &s.UserID)
}

func (m *Manager) handleLeaveChat(ctx context.Context, s *Session, ev LeaveChat) error {
	if m.presence.SetTyping(s.UserID, ev.ChatID, false) {
		if err := m.broadcastEvent(ctx, ev.ChatID, TagUserStoppedTyping,
			UserChatPayload{UserID: s.UserID, ChatID: ev.ChatID}, &s.UserID); err != nil {
			return err
		}
	}
	if !m.membership.Leave(s.UserID, ev.ChatID) {
		return nil
	}
	m.metrics.SetRoomCount(m.membership.RoomCount())
	return m.broadcastEvent(ctx, ev.ChatID, TagUserLeft,
		UserChatPayload{UserID: s.UserID, ChatID: ev.ChatID}, &s.UserID)
}

func (m *Manager) handleSendMessage(ctx context.Context, s *Session, ev SendMessage) error {
	if err := m.requireParticipant(ctx, ev.ChatID, s.UserID); err != nil {
		return err
	}

	msg, err := m.messages.CreateMessage(ctx, ev.ChatID, s.UserID, ev.Content)
	if err != nil {
		return apperr.From(err, apperr.ErrCollaborator)
	}

	// 发送者也应收到回显
	m.membership.Join(s.UserID, ev.ChatID)
	if err := m.broadcastEvent(ctx, ev.ChatID, TagNewMessage, NewMessagePayload{Message: msg}, nil); err != nil {
		return err
	}

	if m.presence.SetTyping(s.UserID, ev.ChatID, false) {
		return m.broadcastEvent(ctx, ev.ChatID, TagUserStoppedTyping,
			UserChatPayload{UserID: s.UserID, ChatID: ev.ChatID}, &s.UserID)
	}
	return nil
}

func (m *Manager) handleTyping(ctx context.Context, s *Session, ev Typing) error {
	if !m.membership.IsMember(s.UserID, ev.ChatID) {
		return apperr.ErrNotChatMember
	}
	if !m.presence.SetTyping(s.UserID, ev.ChatID, ev.IsTyping) {
		return nil
	}
	tag := TagUserStoppedTyping
	if ev.IsTyping {
		tag = TagUserTyping
	}
	return m.broadcastEvent(ctx, ev.ChatID, tag,
		UserChatPayload{UserID: s.UserID, ChatID: ev.ChatID}, &s.UserID)
}

func (m *Manager) handleMarkRead(ctx context.Context, s *Session, ev MarkRead) error {
	if err := m.messages.MarkRead(ctx, ev.ChatID, s.UserID); err != nil {
		return apperr.From(err, apperr.ErrCollaborator)
	}
	return m.broadcastEvent(ctx, ev.ChatID, TagMessagesRead,
		UserChatPayload{UserID: s.UserID, ChatID: ev.ChatID}, &s.UserID)
}

func (m *Manager) handleListChats(ctx context.Context, s *Session, _ ListChats) error {
	rooms := m.membership.RoomsOf(s.UserID)
	chats := make([]ChatSummary, 0, len(rooms))
	for _, roomID := range rooms {
		chats = append(chats, ChatSummary{ChatID: roomID, OnlineUsers: m.presence.OnlineMembers(roomID)})
	}
	return s.Send(ctx, TagChatsList, ChatsListPayload{Chats: chats})
}

func (m *Manager) handleCreateChat(ctx context.Context, s *Session, ev CreateChat) error {
	if ev.UserID == s.UserID {
		return apperr.ErrInvalidTarget.WithMessage("cannot create a chat with yourself")
	}

	roomID, err := m.chats.CreatePrivateRoom(ctx, s.UserID, ev.UserID)
	if err != nil {
		return apperr.From(err, apperr.ErrCollaborator)
	}

	m.membership.Join(s.UserID, roomID)
	peerOnline := m.presence.IsOnline(ev.UserID)
	if peerOnline {
		m.membership.Join(ev.UserID, roomID)
	}
	m.metrics.SetRoomCount(m.membership.RoomCount())

	created := ChatCreatedPayload{ChatID: roomID, Participants: []uuid.UUID{s.UserID, ev.UserID}}
	if err := s.Send(ctx, TagChatCreated, created); err != nil {
		return err
	}
	if peerOnline {
		payload, err := Encode(TagChatCreated, created)
		if err != nil {
			return apperr.ErrInternal.WithError(err)
		}
		if err := m.broadcaster.SendToUser(ctx, ev.UserID, payload); err != nil {
			s.logger.DebugContext(ctx, "notify peer of new chat failed", zap.Error(err))
		}
	}
	return nil
}

func (m *Manager) handleGetChatStatus(ctx context.Context, s *Session, ev GetChatStatus) error {
	if err := m.requireParticipant(ctx, ev.ChatID, s.UserID); err != nil {
		return err
	}
	return s.Send(ctx, TagChatStatus, ChatStatusPayload{
		ChatID:      ev.ChatID,
		OnlineUsers: m.presence.OnlineMembers(ev.ChatID),
		TypingUsers: m.presence.TypingUsers(ev.ChatID),
	})
}
