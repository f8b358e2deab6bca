// Package server pawchat 的 HTTP 入口：websocket 升级、统计、健康检查与指标
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tokmz/pawchat/internal/auth"
	apperr "github.com/tokmz/pawchat/pkg/errors"
	"github.com/tokmz/pawchat/pkg/logger"
	"github.com/tokmz/pawchat/pkg/tracing"
	"github.com/tokmz/pawchat/pkg/ws"
)

// Dependencies 服务依赖
type Dependencies struct {
	Manager *ws.Manager
	Logger  logger.Logger
	// Metrics 挂载到 MetricsPath（默认 /metrics），nil 时不注册
	Metrics     http.Handler
	MetricsPath string
	// Health 健康检查，nil 时总是健康
	Health func(context.Context) error
}

// Server HTTP 服务
type Server struct {
	config  Config
	engine  *gin.Engine
	server  *http.Server
	manager *ws.Manager
	limiter *limiter
	health  func(context.Context) error
	logger  logger.Logger

	metricsPath string
}

// New 创建服务并注册路由
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Manager == nil {
		return nil, errors.New("server: manager is required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.MetricsPath == "" {
		deps.MetricsPath = "/metrics"
	}
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	gin.DefaultWriter = discard{}
	gin.DefaultErrorWriter = discard{}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	log := deps.Logger.Named("http")
	s := &Server{
		config:  cfg,
		engine:  engine,
		manager: deps.Manager,
		health:  deps.Health,
		logger:  log,

		metricsPath: deps.MetricsPath,
	}

	engine.Use(
		gin.Recovery(),
		logger.Middleware(log),
		tracing.Middleware(tracing.WithFilter(s.traced)),
	)

	upgrade := []gin.HandlerFunc{s.handleUpgrade}
	if cfg.RateLimit.Enabled && cfg.RateLimit.RequestsPerSecond > 0 {
		s.limiter = newLimiter(cfg.RateLimit)
		upgrade = append([]gin.HandlerFunc{s.limiter.middleware(log)}, upgrade...)
	}
	engine.GET("/ws", upgrade...)
	engine.GET("/ws/:user_id", upgrade...)
	probes := engine.Group("")
	if cfg.CORS.Enabled {
		probes.Use(cors(cfg.CORS))
		probes.OPTIONS("/ws/stats", noContent)
		probes.OPTIONS("/healthz", noContent)
	}
	probes.GET("/ws/stats", s.handleStats)
	probes.GET("/healthz", s.handleHealth)
	if deps.Metrics != nil {
		engine.GET(deps.MetricsPath, gin.WrapH(deps.Metrics))
	}

	s.server = &http.Server{
		Addr:           cfg.Addr,
		Handler:        engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}
	return s, nil
}

// traced 长连接与探针不创建 span
func (s *Server) traced(c *gin.Context) bool {
	p := c.Request.URL.Path
	if p == "/healthz" || p == s.metricsPath {
		return false
	}
	return p == "/ws/stats" || !strings.HasPrefix(p, "/ws")
}

// Handler 路由处理器
func (s *Server) Handler() http.Handler { return s.engine }

// Run 监听并阻塞直到 ctx 结束，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.config.Banner {
		printBanner(ln.Addr().String(), s.engine.Routes())
	}
	s.logger.Info("http server listening", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stopSweep := s.sweepLimiter(ctx)
	defer stopSweep()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown 先关闭实时会话，再排空 HTTP 请求
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	var errs []error
	if err := s.manager.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("forced shutdown", zap.Error(err))
	} else {
		s.logger.Info("server exited")
	}
	return err
}

func (s *Server) sweepLimiter(ctx context.Context) func() {
	if s.limiter == nil || s.limiter.expiry <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(s.limiter.expiry)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.limiter.sweep()
			}
		}
	}()
	return cancel
}

func (s *Server) handleUpgrade(c *gin.Context) {
	r := c.Request
	if id := c.Param("user_id"); id != "" {
		r = r.WithContext(auth.WithExpectedUser(r.Context(), id))
	}
	if err := s.manager.HandleUpgrade(c.Writer, r); err != nil {
		if apperr.Is(err, ws.ErrManagerClosed) {
			return
		}
		s.logger.DebugContext(r.Context(), "websocket session ended with error", zap.Error(err))
	}
}

func (s *Server) handleStats(c *gin.Context) {
	ok(c, s.manager.Stats())
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health != nil {
		if err := s.health(c.Request.Context()); err != nil {
			fail(c, apperr.ErrServer.WithMessage("unhealthy").WithError(err))
			return
		}
	}
	ok(c, gin.H{"status": "ok", "connections": len(s.manager.OnlineUsers())})
}

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
