// Package store journals playthroughs. The journal is write-only: games are
// never resumed from it.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Playthrough struct {
	ID        uuid.UUID
	Story     string
	Title     string
	Model     string
	StartedAt time.Time
}

// Turn is one successful exchange: the user prompt and the model reply.
type Turn struct {
	PlaythroughID uuid.UUID
	Seq           int
	Prompt        string
	Reply         string
	CreatedAt     time.Time
}

type AttributeChange struct {
	PlaythroughID uuid.UUID
	Name          string
	Delta         int
	Value         float64
	Reason        string
	// Applied is false when the store rejected the change.
	Applied   bool
	CreatedAt time.Time
}

type Ending struct {
	PlaythroughID uuid.UUID
	EndText       string
	Turns         int
	Attributes    map[string]float64
	EndedAt       time.Time
}

// Journal is implemented by Postgres and SQLite.
type Journal interface {
	StartPlaythrough(ctx context.Context, p Playthrough) error
	RecordTurn(ctx context.Context, t Turn) error
	RecordAttribute(ctx context.Context, a AttributeChange) error
	FinishPlaythrough(ctx context.Context, e Ending) error
	Close() error
}
