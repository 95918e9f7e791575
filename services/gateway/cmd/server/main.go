package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tan-res-space/draft-genie-sub004/pkg/logger"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/app"
	"github.com/tan-res-space/draft-genie-sub004/services/gateway/internal/config"
)

func main() {
	// Load configuration from .env and environment variables.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("gateway", cfg.LogLevel)
	log.Info("starting gateway",
		slog.String("environment", cfg.Environment),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("user_store", cfg.UserStore),
		slog.String("refresh_token_store", cfg.RefreshTokenStore),
	)

	application, err := app.NewApp(cfg, log)
	if err != nil {
		log.Error("failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Create a context that is cancelled on SIGINT or SIGTERM.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := application.Run(ctx); err != nil {
		log.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log.Info("gateway stopped")
}
