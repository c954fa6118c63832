package recorder

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresRecorder persists screening runs to PostgreSQL.
type PostgresRecorder struct {
	sqlStore
}

// NewPostgresRecorder connects to dsn, checks the connection and runs migrations.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	r := &PostgresRecorder{sqlStore{db: db, name: "postgres"}}
	if err := r.migrate(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	log.Println("[INFO] postgres recorder connected")
	return r, nil
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS screen_runs (
		id          TEXT PRIMARY KEY,
		strategy    TEXT NOT NULL,
		started_at  BIGINT NOT NULL,
		finished_at BIGINT NOT NULL,
		universe    INTEGER,
		scanned     INTEGER,
		selected    INTEGER,
		halted      SMALLINT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON screen_runs(started_at)`,

	`CREATE TABLE IF NOT EXISTS screen_outcomes (
		run_id   TEXT NOT NULL REFERENCES screen_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		symbol   TEXT NOT NULL,
		outcome  TEXT NOT NULL,
		reason   TEXT,
		failed   TEXT,
		bars     INTEGER,
		snapshot JSONB,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outcomes_symbol ON screen_outcomes(symbol)`,
}
