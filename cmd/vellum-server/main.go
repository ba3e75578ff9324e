package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/vellum/internal/api"
	"github.com/MikeSquared-Agency/vellum/internal/app"
	"github.com/MikeSquared-Agency/vellum/internal/bus"
	"github.com/MikeSquared-Agency/vellum/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := app.SetupLogging(os.Stdout, cfg.LogLevel)

	logger.Info("vellum server starting", "port", cfg.Port, "provider", cfg.LLMProvider)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer env.Close()

	// Echo game events at debug level.
	if env.Bus != nil {
		if err := env.Bus.SubscribeEvents(bus.SubjectAll, func(gameID string, ev bus.Event) {
			logger.Debug("bus event", "subject", ev.Subject(), "game_id", gameID)
		}); err != nil {
			logger.Warn("failed to subscribe to game events", "error", err)
		}
	}

	srv := api.NewServer(api.Options{
		Port:     cfg.Port,
		APIToken: cfg.APIToken,
		Catalog:  env.Catalog,
		Sounds:   env.Sounds,
		NewGame:  env.GameFactory(),
		Logger:   logger,
	})
	go func() {
		if err := srv.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	if cfg.APIToken == "" {
		logger.Warn("VELLUM_API_TOKEN not set, API is unauthenticated")
	}
	logger.Info("vellum server ready", "port", cfg.Port, "stories", cfg.StoriesDir())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	logger.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 15*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	logger.Info("vellum server stopped")
}
