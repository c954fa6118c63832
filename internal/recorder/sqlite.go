package recorder

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// SQLiteRecorder persists screening runs to a SQLite database.
type SQLiteRecorder struct {
	sqlStore
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode lets the HTTP API read while a pass is being written.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{sqlStore{db: db, name: "sqlite"}}
	if err := r.migrate(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS screen_runs (
		id          TEXT PRIMARY KEY,
		strategy    TEXT NOT NULL,
		started_at  INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		universe    INTEGER,
		scanned     INTEGER,
		selected    INTEGER,
		halted      INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON screen_runs(started_at)`,

	`CREATE TABLE IF NOT EXISTS screen_outcomes (
		run_id   TEXT NOT NULL REFERENCES screen_runs(id),
		position INTEGER NOT NULL,
		symbol   TEXT NOT NULL,
		outcome  TEXT NOT NULL,
		reason   TEXT,
		failed   TEXT,
		bars     INTEGER,
		snapshot TEXT,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_outcomes_symbol ON screen_outcomes(symbol)`,
}
