package results

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const schema = `
	CREATE TABLE IF NOT EXISTS wargame_results (
		id          BIGSERIAL PRIMARY KEY,
		session_id  TEXT NOT NULL UNIQUE,
		generation  BIGINT NOT NULL,
		result      TEXT NOT NULL,
		moves       INTEGER NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		ended_at    TIMESTAMPTZ NOT NULL,
		duration_ms BIGINT NOT NULL
	)`

type pgrepo struct {
	db *sql.DB
}

// NewPostgresRepository opens databaseURL with lib/pq, pings it and ensures the table exists.
func NewPostgresRepository(ctx context.Context, databaseURL string) (Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(pingCtx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &pgrepo{db: db}, nil
}

func (r *pgrepo) Save(ctx context.Context, o Outcome) (int64, error) {
	const query = `
		INSERT INTO wargame_results (session_id, generation, result, moves, started_at, ended_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING id`

	var id sql.NullInt64
	err := r.db.QueryRowContext(ctx, query,
		o.SessionID,
		int64(o.Generation),
		o.Result,
		o.Moves,
		o.StartedAt,
		o.EndedAt,
		o.Duration().Milliseconds(),
	).Scan(&id)
	if err == sql.ErrNoRows || (err == nil && !id.Valid) {
		return 0, ErrDuplicate
	}
	if err != nil {
		return 0, fmt.Errorf("insert result: %w", err)
	}
	return id.Int64, nil
}

func (r *pgrepo) Recent(ctx context.Context, limit int) ([]Outcome, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `
		SELECT id, session_id, generation, result, moves, started_at, ended_at
		FROM wargame_results
		ORDER BY ended_at DESC, id DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o   Outcome
			gen int64
		)
		if err := rows.Scan(&o.ID, &o.SessionID, &gen, &o.Result, &o.Moves, &o.StartedAt, &o.EndedAt); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		o.Generation = uint64(gen)
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *pgrepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
