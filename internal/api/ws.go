package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MikeSquared-Agency/vellum/internal/game"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// command is an inbound websocket message, e.g. {"action":"choose","index":1}.
type command struct {
	Action string `json:"action"`
	Index  int    `json:"index"`
}

// serveWS handles GET /api/v1/games/{id}/ws. The first message is a
// snapshot of the game; presentation events follow.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied.
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	logger := s.logger.With("game_id", e.game.ID().String(), "remote", r.RemoteAddr)
	events, unsubscribe := e.hub.Subscribe()
	logger.Info("websocket connected")

	go writePump(conn, e.game, events, logger)
	go readPump(conn, e.game, unsubscribe, logger)
}

func readPump(conn *websocket.Conn, g *game.Game, unsubscribe func(), logger *slog.Logger) {
	defer func() {
		unsubscribe()
		_ = conn.Close()
		logger.Info("websocket disconnected")
	}()
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", "error", err)
			}
			return
		}
		var cmd command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			logger.Warn("invalid websocket command", "error", err)
			continue
		}
		if !applyAction(g, cmd.Action, cmd.Index) {
			logger.Warn("unknown websocket action", "action", cmd.Action)
		}
	}
}

func writePump(conn *websocket.Conn, g *game.Game, events <-chan Event, logger *slog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(Event{Type: EventSnapshot, Snapshot: g.Snapshot()}); err != nil {
		logger.Warn("websocket write failed", "error", err)
		return
	}

	for {
		select {
		case ev, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				logger.Warn("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
