package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"semcode/internal/app"
	"semcode/internal/config"
	"semcode/internal/logger"
)

func main() {
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer deps.DB.Close()
	if deps.NSQProducer != nil {
		defer deps.NSQProducer.Stop()
	}

	application, err := app.New(ctx, cfg, deps, log)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
