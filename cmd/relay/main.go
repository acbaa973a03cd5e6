// Command relay runs the mailbox event relay.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/mailbox/app/relay"
	"github.com/dmitrymomot/mailbox/core/config"
	"github.com/dmitrymomot/mailbox/core/logger"
)

func main() {
	var cfg relay.Config
	config.MustLoad(&cfg)

	log := logger.New(
		logger.WithEnvironment(cfg.Env, cfg.AppName),
		logger.WithLevelString(cfg.LogLevel),
	)

	if err := run(cfg, log); err != nil {
		log.Error("relay stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg relay.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	app, err := relay.New(ctx, relay.WithConfig(cfg), relay.WithLogger(log))
	if err != nil {
		return err
	}

	log.Info("relay starting", logger.Key("addr", cfg.Server.Addr))
	return app.Run(ctx)
}
