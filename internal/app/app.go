// Package app 组装 pawchat 进程：配置、日志、存储、缓存、追踪、指标、实时通道与 HTTP 服务
package app

import (
	"context"
	"errors"
	"net/http"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tokmz/pawchat/internal/auth"
	"github.com/tokmz/pawchat/internal/server"
	"github.com/tokmz/pawchat/internal/store"
	"github.com/tokmz/pawchat/pkg/cache"
	"github.com/tokmz/pawchat/pkg/logger"
	"github.com/tokmz/pawchat/pkg/metrics"
	"github.com/tokmz/pawchat/pkg/orm"
	"github.com/tokmz/pawchat/pkg/tracing"
	"github.com/tokmz/pawchat/pkg/ws"
)

// App 进程内全部组件
type App struct {
	config *Config
	logger logger.Logger

	db       *gorm.DB
	redis    redis.UniversalClient
	cache    cache.Cache
	tracing  *tracing.Provider
	presence *store.PresenceCache

	manager *ws.Manager
	server  *server.Server
}

// New 按配置构建组件，失败时释放已创建的资源
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{config: cfg}
	if err := a.build(ctx); err != nil {
		_ = a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) (err error) {
	cfg := a.config

	logCfg, err := cfg.Log.ToConfig()
	if err != nil {
		return err
	}
	if a.logger, err = logger.New(logCfg); err != nil {
		return err
	}

	tracingCfg := cfg.Tracing
	if a.tracing, err = tracing.New(ctx, &tracingCfg); err != nil {
		return err
	}

	if a.db, err = orm.New(&cfg.Database, a.logger); err != nil {
		return err
	}
	if err = store.Migrate(a.db); err != nil {
		return err
	}

	users := store.NewUsers(a.db)
	chats := store.NewChats(a.db)
	messages := store.NewMessages(a.db, chats)
	// 上次进程遗留的在线标记已失效
	stale, err := users.ResetOnline(ctx)
	if err != nil {
		return err
	}
	if stale > 0 {
		a.logger.Info("reset stale online users", zap.Int64("count", stale))
	}

	var directory ws.UserDirectory = users
	if cfg.Redis.Enabled {
		if a.redis, err = cache.NewRedisClient(ctx, cfg.Redis.RedisConfig); err != nil {
			return err
		}
		a.presence = store.NewPresenceCache(a.redis, users, cfg.Redis.KeyPrefix)
		// 上次进程遗留的在线集合已失效
		if err = a.presence.Reset(ctx); err != nil {
			return err
		}
		directory = a.presence
	}

	var chatDirectory ws.ChatDirectory = chats
	if cfg.Cache.Enabled {
		a.cache = a.newCache()
		chatDirectory = store.NewCachedChats(chats, a.cache, cfg.Cache.TTL)
	}

	authenticator, err := auth.New(cfg.Auth)
	if err != nil {
		return err
	}

	opts := append(cfg.WS.Options(), ws.WithLogger(a.logger))
	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		prom := metrics.New(cfg.Metrics.Namespace)
		opts = append(opts, ws.WithMetrics(prom))
		metricsHandler = prom.Handler()
	}

	a.manager, err = ws.NewManager(ws.Dependencies{
		Auth:     authenticator,
		Chats:    chatDirectory,
		Messages: messages,
		Users:    directory,
	}, opts...)
	if err != nil {
		return err
	}

	a.server, err = server.New(cfg.Server, server.Dependencies{
		Manager:     a.manager,
		Logger:      a.logger,
		Metrics:     metricsHandler,
		MetricsPath: cfg.Metrics.Path,
		Health:      a.health,
	})
	if err != nil {
		return err
	}
	return nil
}

func (a *App) newCache() cache.Cache {
	cfg := a.config.Cache
	var c cache.Cache
	if cfg.Driver == cache.DriverRedis {
		c = cache.NewRedis(a.redis, cfg.KeyPrefix, cfg.TTL)
	} else {
		c = cache.NewMemory(cfg.MaxEntries, cfg.KeyPrefix, cfg.TTL)
	}
	if a.config.Tracing.Enabled {
		c = cache.WithTracing(c)
	}
	return c
}

// Logger 应用日志
func (a *App) Logger() logger.Logger { return a.logger }

// Manager 实时通道管理器
func (a *App) Manager() *ws.Manager { return a.manager }

// Handler HTTP 路由
func (a *App) Handler() http.Handler { return a.server.Handler() }

// Run 运行后台清理与 HTTP 服务，直到 ctx 结束
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.manager.Run(ctx) })
	g.Go(func() error { return a.server.Run(ctx) })
	return g.Wait()
}

// Watch 配置文件变更时应用新的日志级别
func (a *App) Watch(src *Source) {
	src.OnChange(func() {
		cfg, err := src.Reload()
		if err != nil {
			a.logger.Warn("ignoring invalid config change", zap.Error(err))
			return
		}
		a.applyLogLevel(cfg.Log.Level)
	})
}

func (a *App) applyLogLevel(raw string) {
	level, err := logger.ParseLevel(raw)
	if err != nil {
		a.logger.Warn("invalid log level", zap.String("level", raw), zap.Error(err))
		return
	}
	if level == a.logger.Level() {
		return
	}
	a.logger.SetLevel(level)
	a.logger.Info("log level changed", zap.String("level", level.String()))
}

func (a *App) health(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return err
	}
	if a.redis != nil {
		return a.redis.Ping(ctx).Err()
	}
	return nil
}

// Close 释放存储、缓存与追踪资源
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.tracing != nil {
		errs = append(errs, a.tracing.Shutdown(ctx))
	}
	if a.cache != nil && a.config.Cache.Driver != cache.DriverRedis {
		errs = append(errs, a.cache.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		errs = append(errs, orm.Close(a.db))
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return errors.Join(errs...)
}
