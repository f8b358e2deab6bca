package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/logger"
)

// Dependencies 外部协作方
type Dependencies struct {
	Auth     Authenticator
	Chats    ChatDirectory
	Messages MessageStore
	Users    UserDirectory
}

// Manager 实时聊天核心，持有注册表、成员索引、在线状态、广播器与路由
type Manager struct {
	registry    *Registry
	membership  *Membership
	typing      *TypingState
	presence    *Presence
	broadcaster *Broadcaster
	router      *Router

	auth     Authenticator
	chats    ChatDirectory
	messages MessageStore
	users    UserDirectory

	config   *Config
	upgrader *websocket.Upgrader
	logger   logger.Logger
	metrics  Metrics

	// 生命周期
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex
	sessions sync.WaitGroup
	closing  atomic.Bool
}

// NewManager 创建管理器
func NewManager(deps Dependencies, opts ...Option) (*Manager, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.Auth == nil || deps.Chats == nil || deps.Messages == nil || deps.Users == nil {
		return nil, errors.Join(ErrInvalidConfig, errors.New("ws: all dependencies are required"))
	}

	if config.Metrics == nil {
		config.Metrics = NoopMetrics{}
	}
	if config.Logger == nil {
		config.Logger = logger.NewNop()
	}
	log := config.Logger.Named("ws")

	ctx, cancel := context.WithCancel(context.Background())

	registry := NewRegistry()
	membership := NewMembership()
	typing := NewTypingState(config.TypingTTL)

	m := &Manager{
		registry:    registry,
		membership:  membership,
		typing:      typing,
		presence:    NewPresence(registry, membership, typing, deps.Users, log),
		broadcaster: NewBroadcaster(registry, membership, config.BroadcastWorkers, config.SendTimeout, config.Metrics, log),
		router:      NewRouter(),
		auth:        deps.Auth,
		chats:       deps.Chats,
		messages:    deps.Messages,
		users:       deps.Users,
		config:      config,
		upgrader:    newUpgrader(config.HandshakeTimeout, config.UpgraderConfig),
		logger:      log,
		metrics:     config.Metrics,
		ctx:         ctx,
		cancel:      cancel,
	}

	middleware := append([]MiddlewareFunc{
		Recovery(log),
		Tracing(),
		Instrument(config.Metrics),
		Logging(log),
	}, config.Middleware...)
	if err := m.router.Use(middleware...); err != nil {
		cancel()
		return nil, err
	}
	if err := m.registerHandlers(); err != nil {
		cancel()
		return nil, err
	}
	m.router.Freeze()

	return m, nil
}

// Run 运行后台任务（输入状态过期、失效连接清理），直到 ctx 结束或 Shutdown
func (m *Manager) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(m.ctx, cancel)
	defer stop()

	m.runSweeper(ctx)
	return nil
}

// runSweeper 运行清理任务
func (m *Manager) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ExpireTyping(ctx)
			m.CleanupDeadConnections()
		}
	}
}

// ExpireTyping 对超时未续期的输入状态广播停止输入
func (m *Manager) ExpireTyping(ctx context.Context) int {
	expired := m.typing.Expire()
	for _, e := range expired {
		userID := e.UserID
		if err := m.broadcastEvent(ctx, e.RoomID, TagUserStoppedTyping,
			UserChatPayload{UserID: userID, ChatID: e.RoomID}, &userID); err != nil {
			m.logger.WarnContext(ctx, "typing expiry broadcast failed", zap.Error(err))
		}
	}
	return len(expired)
}

// Shutdown 优雅关闭
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing.Store(true)
	m.mu.Unlock()
	m.cancel()

	for _, c := range m.registry.Snapshot() {
		_ = c.Transport.Close(CloseShutdown, "server shutdown")
	}

	done := make(chan struct{})
	go func() {
		m.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleUpgrade 升级 HTTP 连接并阻塞运行会话
func (m *Manager) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	if m.closing.Load() {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return ErrManagerClosed
	}

	userID, authErr := m.auth.Authenticate(r.Context(), r)

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	t := newWSConn(conn, m.config, m.metrics)

	if authErr != nil {
		m.logger.InfoContext(r.Context(), "rejecting unauthorized connection", zap.Error(authErr))
		_ = t.Close(CloseUnauthorized, "Unauthorized")
		return apperr.ErrUnauthorized.WithError(authErr)
	}

	if err := m.Serve(m.ctx, userID, t); err != nil {
		_ = t.Close(CloseServerError, "internal error")
		return err
	}
	return nil
}

// Serve 在给定连接上运行一个会话，直到连接关闭
func (m *Manager) Serve(ctx context.Context, userID uuid.UUID, t SessionTransport) error {
	m.mu.Lock()
	if m.closing.Load() {
		m.mu.Unlock()
		_ = t.Close(CloseShutdown, "server shutdown")
		return ErrManagerClosed
	}
	m.sessions.Add(1)
	m.mu.Unlock()
	defer m.sessions.Done()

	return newSession(m, userID, t).run(ctx)
}

// broadcastEvent 编码并广播到房间
func (m *Manager) broadcastEvent(ctx context.Context, roomID uuid.UUID, tag string, data any, exclude *uuid.UUID) error {
	payload, err := Encode(tag, data)
	if err != nil {
		return apperr.ErrInternal.WithError(err)
	}
	m.broadcaster.BroadcastToRoom(ctx, roomID, payload, exclude)
	return nil
}

// BroadcastToRoom 向房间广播原始帧
func (m *Manager) BroadcastToRoom(ctx context.Context, roomID uuid.UUID, payload []byte, exclude *uuid.UUID) BroadcastResult {
	return m.broadcaster.BroadcastToRoom(ctx, roomID, payload, exclude)
}

// SendToUser 向用户发送原始帧，用户不在线时返回 ErrNotConnected
func (m *Manager) SendToUser(ctx context.Context, userID uuid.UUID, payload []byte) error {
	return m.broadcaster.SendToUser(ctx, userID, payload)
}

// SendGlobalNotification 向在线用户发送 global_notification
func (m *Manager) SendGlobalNotification(ctx context.Context, userID uuid.UUID, notification any) error {
	payload, err := Encode(TagGlobalNotification, notification)
	if err != nil {
		m.logger.ErrorContext(ctx, "encode notification failed", zap.Error(err))
		return apperr.ErrInternal.WithError(err)
	}
	return m.broadcaster.SendToUser(ctx, userID, payload)
}

// NotifyChatParticipants 向聊天目录中当前在线的参与者发送系统通知
//
// 参与者以目录为准，已退订该聊天但仍在线的参与者同样会收到。
func (m *Manager) NotifyChatParticipants(ctx context.Context, roomID uuid.UUID, notification any, exclude *uuid.UUID) (BroadcastResult, error) {
	participants, err := m.chats.Participants(ctx, roomID)
	if err != nil {
		m.logger.WarnContext(ctx, "load participants failed",
			zap.String("chat_id", roomID.String()), zap.Error(err))
		return BroadcastResult{}, apperr.From(err, apperr.ErrCollaborator)
	}
	payload, err := Encode(TagGlobalNotification, ChatNotification{
		Type:         "chat_notification",
		ChatID:       roomID,
		Notification: notification,
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "encode notification failed", zap.Error(err))
		return BroadcastResult{}, apperr.ErrInternal.WithError(err)
	}
	return m.broadcaster.BroadcastToUsers(ctx, participants, payload, exclude), nil
}

// NotifyUserChats 向用户所在的每个聊天的其他成员发送通知，返回送达数
//
// 单个聊天失败不影响其余聊天。
func (m *Manager) NotifyUserChats(ctx context.Context, userID uuid.UUID, notification any) (int, error) {
	var (
		delivered int
		errs      []error
	)
	for _, roomID := range m.membership.RoomsOf(userID) {
		res, err := m.NotifyChatParticipants(ctx, roomID, notification, &userID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		delivered += res.Delivered
	}
	return delivered, errors.Join(errs...)
}

// CleanupDeadConnections 清理已关闭但仍在注册表中的连接
func (m *Manager) CleanupDeadConnections() []uuid.UUID {
	var dead []uuid.UUID
	for _, c := range m.registry.Snapshot() {
		if !c.Transport.Closed() {
			continue
		}
		m.logger.Warn("removing dead connection", zap.String("user_id", c.UserID.String()))
		m.broadcaster.Purge(c.UserID, c.Transport)
		dead = append(dead, c.UserID)
	}
	if len(dead) > 0 {
		m.metrics.SetConnectionCount(m.registry.Count())
	}
	return dead
}

// Stats 连接统计
type Stats struct {
	TotalConnections  int            `json:"total_connections"`
	TotalChats        int            `json:"total_chats"`
	TotalTypingUsers  int            `json:"total_typing_users"`
	ActiveConnections []string       `json:"active_connections"`
	ChatDistribution  map[string]int `json:"chat_distribution"`
}

// Stats 当前连接统计
func (m *Manager) Stats() Stats {
	online := m.registry.ListOnline()
	active := make([]string, 0, len(online))
	for _, id := range online {
		active = append(active, id.String())
	}
	dist := m.membership.Distribution()
	chats := make(map[string]int, len(dist))
	for id, n := range dist {
		chats[id.String()] = n
	}
	return Stats{
		TotalConnections:  len(online),
		TotalChats:        len(dist),
		TotalTypingUsers:  m.typing.Count(),
		ActiveConnections: active,
		ChatDistribution:  chats,
	}
}

// IsOnline 用户是否在线
func (m *Manager) IsOnline(userID uuid.UUID) bool {
	return m.presence.IsOnline(userID)
}

// OnlineUsers 在线用户
func (m *Manager) OnlineUsers() []uuid.UUID {
	return m.registry.ListOnline()
}

// Registry 连接注册表
func (m *Manager) Registry() *Registry { return m.registry }

// Membership 房间成员索引
func (m *Manager) Membership() *Membership { return m.membership }

// Presence 在线状态
func (m *Manager) Presence() *Presence { return m.presence }
