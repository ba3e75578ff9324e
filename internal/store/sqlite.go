package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite is the journal for local play.
type SQLite struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; the journal worker is serial anyway.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) StartPlaythrough(ctx context.Context, p Playthrough) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playthroughs (id, story, title, model, started_at)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID.String(), p.Story, p.Title, p.Model, toMillis(p.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert playthrough: %w", err)
	}
	return nil
}

func (s *SQLite) RecordTurn(ctx context.Context, t Turn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO turns (playthrough_id, seq, prompt, reply, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.PlaythroughID.String(), t.Seq, t.Prompt, t.Reply, toMillis(t.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

func (s *SQLite) RecordAttribute(ctx context.Context, a AttributeChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attribute_changes (playthrough_id, name, delta, value, reason, applied, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.PlaythroughID.String(), a.Name, a.Delta, a.Value, a.Reason, a.Applied, toMillis(a.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert attribute change: %w", err)
	}
	return nil
}

func (s *SQLite) FinishPlaythrough(ctx context.Context, e Ending) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("marshal attributes: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE playthroughs
		SET end_text = ?, turns = ?, attributes = ?, ended_at = ?
		WHERE id = ?`,
		e.EndText, e.Turns, string(attrs), toMillis(e.EndedAt), e.PlaythroughID.String(),
	)
	if err != nil {
		return fmt.Errorf("finish playthrough: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("finish playthrough %s: not found", e.PlaythroughID)
	}
	return nil
}

// Turns returns the journaled exchanges of one playthrough in order.
func (s *SQLite) Turns(ctx context.Context, id uuid.UUID) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, prompt, reply, created_at FROM turns
		WHERE playthrough_id = ? ORDER BY seq`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		t := Turn{PlaythroughID: id}
		var created int64
		if err := rows.Scan(&t.Seq, &t.Prompt, &t.Reply, &created); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = fromMillis(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Attributes returns the journaled attribute changes of one playthrough.
func (s *SQLite) Attributes(ctx context.Context, id uuid.UUID) ([]AttributeChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, delta, value, reason, applied, created_at FROM attribute_changes
		WHERE playthrough_id = ? ORDER BY id`, id.String())
	if err != nil {
		return nil, fmt.Errorf("query attribute changes: %w", err)
	}
	defer rows.Close()

	var out []AttributeChange
	for rows.Next() {
		a := AttributeChange{PlaythroughID: id}
		var created int64
		if err := rows.Scan(&a.Name, &a.Delta, &a.Value, &a.Reason, &a.Applied, &created); err != nil {
			return nil, fmt.Errorf("scan attribute change: %w", err)
		}
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// EndText returns the recorded ending, empty while the playthrough is open.
func (s *SQLite) EndText(ctx context.Context, id uuid.UUID) (string, error) {
	var end sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT end_text FROM playthroughs WHERE id = ?`, id.String()).Scan(&end)
	if err != nil {
		return "", fmt.Errorf("query playthrough: %w", err)
	}
	return end.String, nil
}
