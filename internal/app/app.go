// Package app turns configuration into the collaborators both binaries
// share: the LLM backend, the optional journal and bus, the story catalog
// and the sound library.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/MikeSquared-Agency/vellum/internal/audio"
	"github.com/MikeSquared-Agency/vellum/internal/bus"
	"github.com/MikeSquared-Agency/vellum/internal/chat"
	"github.com/MikeSquared-Agency/vellum/internal/config"
	"github.com/MikeSquared-Agency/vellum/internal/game"
	"github.com/MikeSquared-Agency/vellum/internal/llm"
	"github.com/MikeSquared-Agency/vellum/internal/playback"
	"github.com/MikeSquared-Agency/vellum/internal/store"
	"github.com/MikeSquared-Agency/vellum/internal/story"
)

type Env struct {
	Config  config.Config
	Backend chat.Backend
	Journal store.Journal
	Bus     *bus.Client
	Catalog *story.Catalog
	Sounds  *audio.Library
	Logger  *slog.Logger
}

// Open validates cfg and connects everything it names. DATABASE_URL wins
// over SQLITE_PATH; with neither set games are not journaled.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Env, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := llm.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create llm backend: %w", err)
	}

	env := &Env{
		Config:  cfg,
		Backend: backend,
		Catalog: story.NewCatalog(cfg.StoriesDir(), logger),
		Sounds:  audio.NewLibrary(cfg.SoundsDir()),
		Logger:  logger,
	}

	switch {
	case cfg.DatabaseURL != "":
		pg, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		env.Journal = pg
		logger.Info("journal ready", "driver", "postgres")
	case cfg.SQLitePath != "":
		lite, err := store.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		env.Journal = lite
		logger.Info("journal ready", "driver", "sqlite", "path", cfg.SQLitePath)
	default:
		logger.Warn("no journal configured, playthroughs are not recorded")
	}

	if cfg.NatsURL != "" {
		client, err := bus.NewClient(cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.Bus = client
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}
	return env, nil
}

// GameFactory returns a constructor for games that share this
// environment. extra views receive every callback after the caller's view.
func (e *Env) GameFactory(extra ...playback.View) func(s *story.Story, view playback.View) (*game.Game, error) {
	deps := game.Deps{
		Backend:        e.Backend,
		Journal:        e.Journal,
		Tokens:         llm.EstimateTokens,
		TextDelay:      e.Config.TextDelay,
		RequestTimeout: e.Config.LLMRequestTimeout,
		Logger:         e.Logger,
	}
	if e.Bus != nil {
		deps.Bus = e.Bus
	}
	return func(s *story.Story, view playback.View) (*game.Game, error) {
		views := playback.Views{}
		if view != nil {
			views = append(views, view)
		}
		views = append(views, extra...)
		return game.New(s, views, deps)
	}
}

func (e *Env) Close() {
	if e.Bus != nil {
		e.Bus.Close()
	}
	if e.Journal != nil {
		if err := e.Journal.Close(); err != nil {
			e.Logger.Warn("close journal", "error", err)
		}
	}
}

// SetupLogging installs a JSON slog handler writing to w as the default
// logger and returns it.
func SetupLogging(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}
