package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/MikeSquared-Agency/vellum/internal/config"
	"github.com/MikeSquared-Agency/vellum/internal/game"
	"github.com/MikeSquared-Agency/vellum/internal/story"
)

// entry is a running game and the hub streaming its events.
type entry struct {
	game   *game.Game
	hub    *Hub
	cancel context.CancelFunc
	done   chan struct{}
}

func (e *entry) stop() {
	e.cancel()
	<-e.done
	e.hub.Close()
}

type registry struct {
	mu    sync.RWMutex
	games map[string]*entry
}

func newRegistry() *registry {
	return &registry{games: make(map[string]*entry)}
}

func (r *registry) add(e *entry) {
	r.mu.Lock()
	r.games[e.game.ID().String()] = e
	r.mu.Unlock()
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.games[id]
	return e, ok
}

func (r *registry) remove(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.games[id]
	delete(r.games, id)
	return e, ok
}

func (r *registry) drain() []*entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*entry, 0, len(r.games))
	for id, e := range r.games {
		out = append(out, e)
		delete(r.games, id)
	}
	return out
}

type storySummary struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	Genre string `json:"genre,omitempty"`
	Error string `json:"error,omitempty"`
}

// listStories handles GET /api/v1/stories. A story that fails to load is
// still listed, with its error.
func (s *Server) listStories(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeJSON(w, http.StatusOK, map[string]any{"stories": []storySummary{}})
		return
	}
	names, err := s.catalog.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]storySummary, 0, len(names))
	for _, name := range names {
		sum := storySummary{Name: name}
		st, err := s.catalog.Find(name)
		if err != nil {
			sum.Error = err.Error()
		} else {
			sum.Title = st.Title
			sum.Genre = st.Genre
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, map[string]any{"stories": out})
}

type createGameRequest struct {
	Story string `json:"story"`
}

// createGame handles POST /api/v1/games.
func (s *Server) createGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Story == "" {
		writeError(w, http.StatusBadRequest, "story is required")
		return
	}
	if s.catalog == nil || s.newGame == nil {
		writeError(w, http.StatusServiceUnavailable, "games are not configured")
		return
	}

	st, err := s.catalog.Find(req.Story)
	if err != nil {
		var missing *config.MissingError
		switch {
		case errors.Is(err, story.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.As(err, &missing):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	hub := NewHub(s.sounds, s.logger)
	g, err := s.newGame(st, hub)
	if err != nil {
		s.logger.Error("create game failed", "story", st.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	e := &entry{game: g, hub: hub, cancel: cancel, done: make(chan struct{})}
	s.games.add(e)
	go func() {
		defer close(e.done)
		if err := g.Run(ctx); err != nil {
			s.logger.Error("game run failed", "game_id", g.ID(), "error", err)
		}
	}()

	writeJSON(w, http.StatusCreated, g.Snapshot())
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	e, ok := s.games.get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
	}
	return e, ok
}

// getGame handles GET /api/v1/games/{id}.
func (s *Server) getGame(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.game.Snapshot())
}

// deleteGame handles DELETE /api/v1/games/{id}.
func (s *Server) deleteGame(w http.ResponseWriter, r *http.Request) {
	e, ok := s.games.remove(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	e.stop()
	w.WriteHeader(http.StatusNoContent)
}

// gameAction handles POST /api/v1/games/{id}/{action}. Input is queued on
// the game's loop; the response only confirms it was accepted.
func (s *Server) gameAction(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	action := chi.URLParam(r, "action")
	if action == "choose" || !applyAction(e.game, action, 0) {
		writeError(w, http.StatusNotFound, "unknown action")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// selectChoice handles POST /api/v1/games/{id}/choices/{index}.
func (s *Server) selectChoice(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid choice index")
		return
	}
	e.game.SelectChoice(index)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// applyAction forwards a named input to g. It reports false for unknown
// names.
func applyAction(g *game.Game, action string, index int) bool {
	switch action {
	case "advance":
		g.Advance()
	case "skip":
		g.Skip()
	case "tap":
		g.Tap()
	case "retry":
		g.Retry()
	case "choose":
		g.SelectChoice(index)
	default:
		return false
	}
	return true
}
