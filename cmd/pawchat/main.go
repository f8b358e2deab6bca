// pawchat 走失宠物平台的实时聊天服务
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tokmz/pawchat/internal/app"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, "pawchat:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, src, err := app.Load(configPath)
	if err != nil {
		return err
	}
	defer src.Close()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	a.Watch(src)

	log := a.Logger()
	log.Info("pawchat starting",
		zap.String("addr", cfg.Server.Addr),
		zap.String("config", src.ConfigFileUsed()),
		zap.String("database", string(cfg.Database.Type)),
		zap.Bool("redis", cfg.Redis.Enabled))

	runErr := a.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		log.Warn("releasing resources", zap.Error(err))
	}
	return runErr
}
