package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MikeSquared-Agency/vellum/internal/app"
	"github.com/MikeSquared-Agency/vellum/internal/audio"
	"github.com/MikeSquared-Agency/vellum/internal/config"
	"github.com/MikeSquared-Agency/vellum/internal/tui"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "vellum:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	// The screen belongs to the UI; logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	logger := app.SetupLogging(logFile, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	env, err := app.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	player := audio.NewPlayer(ctx, env.Sounds, cfg.AudioPlayer, logger)
	model := tui.New(ctx, tui.Options{
		Catalog:      env.Catalog,
		NewGame:      env.GameFactory(player),
		EndTextDelay: cfg.EndTextDelay,
		Logger:       logger,
	})

	logger.Info("vellum starting", "provider", cfg.LLMProvider, "model", cfg.LLMModel, "stories", cfg.StoriesDir())
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
