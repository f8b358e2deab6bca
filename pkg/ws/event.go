package ws

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	apperr "github.com/tokmz/pawchat/pkg/errors"
)

// 入站事件类型
const (
	TagJoinChat      = "join_chat"
	TagLeaveChat     = "leave_chat"
	TagSendMessage   = "send_message"
	TagTyping        = "typing"
	TagMarkRead      = "mark_read"
	TagListChats     = "list_chats"
	TagCreateChat    = "create_chat"
	TagGetChatStatus = "get_chat_status"
)

// 出站事件类型
const (
	TagNewMessage         = "new_message"
	TagUserJoined         = "user_joined"
	TagUserLeft           = "user_left"
	TagUserTyping         = "user_typing"
	TagUserStoppedTyping  = "user_stopped_typing"
	TagMessagesRead       = "messages_read"
	TagChatsList          = "chats_list"
	TagChatCreated        = "chat_created"
	TagChatStatus         = "chat_status"
	TagError              = "error"
	TagGlobalNotification = "global_notification"
)

// 心跳帧
var (
	pingFrame = []byte("ping")
	pongFrame = []byte("pong")
)

// Event 已解码并校验的入站事件
type Event interface {
	Type() string
}

// JoinChat 订阅聊天
type JoinChat struct {
	ChatID uuid.UUID `json:"chat_id" validate:"required"`
}

// LeaveChat 取消订阅聊天
type LeaveChat struct {
	ChatID uuid.UUID `json:"chat_id" validate:"required"`
}

// SendMessage 发送消息
type SendMessage struct {
	ChatID  uuid.UUID `json:"chat_id" validate:"required"`
	Content string    `json:"content" validate:"required,min=1,max=10000"`
}

// Typing 输入状态
type Typing struct {
	ChatID   uuid.UUID `json:"chat_id" validate:"required"`
	IsTyping bool      `json:"is_typing"`
}

// MarkRead 标记已读
type MarkRead struct {
	ChatID uuid.UUID `json:"chat_id" validate:"required"`
}

// ListChats 列出已订阅的聊天
type ListChats struct{}

// CreateChat 与目标用户创建私聊
type CreateChat struct {
	UserID uuid.UUID `json:"user_id" validate:"required"`
}

// GetChatStatus 查询聊天在线与输入状态
type GetChatStatus struct {
	ChatID uuid.UUID `json:"chat_id" validate:"required"`
}

func (JoinChat) Type() string      { return TagJoinChat }
func (LeaveChat) Type() string     { return TagLeaveChat }
func (SendMessage) Type() string   { return TagSendMessage }
func (Typing) Type() string        { return TagTyping }
func (MarkRead) Type() string      { return TagMarkRead }
func (ListChats) Type() string     { return TagListChats }
func (CreateChat) Type() string    { return TagCreateChat }
func (GetChatStatus) Type() string { return TagGetChatStatus }

var validate = validator.New(validator.WithRequiredStructEnabled())

type eventDecoder func(data json.RawMessage) (Event, error)

var eventDecoders = map[string]eventDecoder{
	TagJoinChat:      decodeAs[JoinChat],
	TagLeaveChat:     decodeAs[LeaveChat],
	TagSendMessage:   decodeAs[SendMessage],
	TagTyping:        decodeAs[Typing],
	TagMarkRead:      decodeAs[MarkRead],
	TagListChats:     decodeAs[ListChats],
	TagCreateChat:    decodeAs[CreateChat],
	TagGetChatStatus: decodeAs[GetChatStatus],
}

func decodeAs[E Event](data json.RawMessage) (Event, error) {
	var ev E
	if len(data) > 0 && !bytes.Equal(data, []byte("null")) {
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, apperr.ErrValidation.WithError(err)
		}
	}
	if err := validate.Struct(ev); err != nil {
		return nil, apperr.ErrValidation.WithMessage(validationMessage(err)).WithError(err)
	}
	return ev, nil
}

func validationMessage(err error) string {
	var errs validator.ValidationErrors
	if !apperr.As(err, &errs) {
		return apperr.ErrValidation.Message
	}
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		fields = append(fields, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
	}
	return apperr.ErrValidation.Message + ": " + strings.Join(fields, ", ")
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// DecodeEvent 解码一帧入站消息
func DecodeEvent(frame []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, apperr.ErrInvalidMessage.WithError(err)
	}
	if env.Type == "" {
		return nil, apperr.ErrInvalidMessage.WithMessage("invalid message format: missing type")
	}
	decode, ok := eventDecoders[env.Type]
	if !ok {
		return nil, apperr.ErrUnknownEvent.WithMessagef("unknown message type: %s", env.Type)
	}
	return decode(env.Data)
}

// Outbound 出站消息
type Outbound struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Encode 编码出站消息
func Encode(tag string, data any) ([]byte, error) {
	return json.Marshal(Outbound{Type: tag, Data: data})
}

// UserChatPayload 用户与聊天的通知
type UserChatPayload struct {
	UserID uuid.UUID `json:"user_id"`
	ChatID uuid.UUID `json:"chat_id"`
}

// NewMessagePayload 新消息
type NewMessagePayload struct {
	Message *Message `json:"message"`
}

// ChatSummary 聊天概要
type ChatSummary struct {
	ChatID      uuid.UUID   `json:"chat_id"`
	OnlineUsers []uuid.UUID `json:"online_users"`
}

// ChatsListPayload 聊天列表
type ChatsListPayload struct {
	Chats []ChatSummary `json:"chats"`
}

// ChatCreatedPayload 私聊已创建
type ChatCreatedPayload struct {
	ChatID       uuid.UUID   `json:"chat_id"`
	Participants []uuid.UUID `json:"participants"`
}

// ChatStatusPayload 聊天状态
type ChatStatusPayload struct {
	ChatID      uuid.UUID   `json:"chat_id"`
	OnlineUsers []uuid.UUID `json:"online_users"`
	TypingUsers []uuid.UUID `json:"typing_users"`
}

// ErrorPayload 错误事件
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ChatNotification 发往聊天参与者的系统通知
type ChatNotification struct {
	Type         string    `json:"type"`
	ChatID       uuid.UUID `json:"chat_id"`
	Notification any       `json:"notification"`
}
