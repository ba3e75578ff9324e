// Package bus publishes game events on NATS.
package bus

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// HeaderGameID carries the game of an event so subscribers can filter
// without decoding the payload.
const HeaderGameID = "Vellum-Game-Id"

// Publisher is the part of Client the game needs.
type Publisher interface {
	PublishEvent(ev Event) error
}

// Handler receives decoded events. gameID comes from the message header.
type Handler func(gameID string, ev Event)

type Client struct {
	conn   *nats.Conn
	subs   []*nats.Subscription
	logger *slog.Logger
}

func NewClient(url, token string, logger *slog.Logger) (*Client, error) {
	opts := []nats.Option{
		nats.Name("vellum"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("event bus disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("event bus reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect event bus: %w", err)
	}

	return &Client{conn: nc, logger: logger}, nil
}

// newMessage encodes ev on its own subject with the game header set.
func newMessage(ev Event) (*nats.Msg, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Subject(), err)
	}
	msg := nats.NewMsg(ev.Subject())
	msg.Data = payload
	msg.Header.Set(HeaderGameID, ev.Game())
	return msg, nil
}

func (c *Client) PublishEvent(ev Event) error {
	msg, err := newMessage(ev)
	if err != nil {
		return err
	}
	if err := c.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

// SubscribeEvents decodes every event on subject, which may be a wildcard
// such as SubjectAll. Messages that do not decode are logged and skipped.
func (c *Client) SubscribeEvents(subject string, handler Handler) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		ev, err := Decode(msg.Subject, msg.Data)
		if err != nil {
			c.logger.Warn("dropping undecodable event", "subject", msg.Subject, "error", err)
			return
		}
		handler(msg.Header.Get(HeaderGameID), ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}
	c.subs = append(c.subs, sub)
	c.logger.Info("subscribed to game events", "subject", subject)
	return nil
}

// Close drains pending publishes before closing the connection.
func (c *Client) Close() {
	for _, sub := range c.subs {
		_ = sub.Unsubscribe()
	}
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
	}
}
