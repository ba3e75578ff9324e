package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migratePostgres(pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) StartPlaythrough(ctx context.Context, p Playthrough) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO playthroughs (id, story, title, model, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Story, p.Title, p.Model, p.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert playthrough: %w", err)
	}
	return nil
}

func (s *Postgres) RecordTurn(ctx context.Context, t Turn) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO turns (id, playthrough_id, seq, prompt, reply, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New(), t.PlaythroughID, t.Seq, t.Prompt, t.Reply, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *Postgres) RecordAttribute(ctx context.Context, a AttributeChange) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attribute_changes (id, playthrough_id, name, delta, value, reason, applied, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), a.PlaythroughID, a.Name, a.Delta, a.Value, a.Reason, a.Applied, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert attribute change: %w", err)
	}
	return nil
}

func (s *Postgres) FinishPlaythrough(ctx context.Context, e Ending) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE playthroughs
		SET end_text = $2, turns = $3, attributes = $4, ended_at = $5
		WHERE id = $1`,
		e.PlaythroughID, e.EndText, e.Turns, attrs, e.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("finish playthrough: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish playthrough %s: not found", e.PlaythroughID)
	}
	return nil
}

// Turns returns the journaled exchanges of one playthrough in order.
func (s *Postgres) Turns(ctx context.Context, id uuid.UUID) ([]Turn, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT seq, prompt, reply, created_at FROM turns
		WHERE playthrough_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		t := Turn{PlaythroughID: id}
		if err := rows.Scan(&t.Seq, &t.Prompt, &t.Reply, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
