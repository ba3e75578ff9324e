// Package api serves games over HTTP: a JSON control surface, a websocket
// event stream per game and the sound files cues refer to.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MikeSquared-Agency/vellum/internal/audio"
	"github.com/MikeSquared-Agency/vellum/internal/game"
	"github.com/MikeSquared-Agency/vellum/internal/playback"
	"github.com/MikeSquared-Agency/vellum/internal/story"
)

// GameFactory builds a game whose presentation callbacks go to view.
type GameFactory func(s *story.Story, view playback.View) (*game.Game, error)

type Options struct {
	Port     int
	APIToken string
	Catalog  *story.Catalog
	Sounds   *audio.Library
	NewGame  GameFactory
	Logger   *slog.Logger
}

type Server struct {
	router  *chi.Mux
	port    int
	catalog *story.Catalog
	sounds  *audio.Library
	newGame GameFactory
	logger  *slog.Logger

	games *registry

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	http *http.Server
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		router:  router,
		port:    opts.Port,
		catalog: opts.Catalog,
		sounds:  opts.Sounds,
		newGame: opts.NewGame,
		logger:  opts.Logger,
		games:   newRegistry(),
		ctx:     ctx,
		cancel:  cancel,
	}

	router.Get("/health", s.health)
	router.Handle("/metrics", promhttp.Handler())
	if s.sounds != nil {
		router.Handle("/sounds/*", http.StripPrefix("/sounds/", http.FileServer(http.Dir(s.sounds.Dir()))))
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(BearerAuthMiddleware(opts.APIToken))
		r.Get("/stories", s.listStories)
		r.Post("/games", s.createGame)
		r.Route("/games/{id}", func(r chi.Router) {
			r.Get("/", s.getGame)
			r.Delete("/", s.deleteGame)
			r.Get("/ws", s.serveWS)
			r.Post("/choices/{index}", s.selectChoice)
			r.Post("/{action}", s.gameAction)
		})
	})

	return s
}

// Start blocks serving HTTP until Shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.http = srv
	s.mu.Unlock()

	s.logger.Info("API server starting", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops every game, then the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	for _, e := range s.games.drain() {
		e.stop()
	}
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
