package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jmoiron/sqlx"

	"MarketScreener/internal/model"
)

// sqlStore is the dialect-independent part of the SQL recorders.
type sqlStore struct {
	db   *sqlx.DB
	name string
	mu   sync.Mutex
}

func (s *sqlStore) migrate(stmts []string) error {
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			n := len(stmt)
			if n > 40 {
				n = 40
			}
			return fmt.Errorf("exec %q: %w", stmt[:n], err)
		}
	}
	return nil
}

// RecordRun stores the run and its outcomes in one transaction.
func (s *sqlStore) RecordRun(ctx context.Context, run *model.Run) error {
	rr, outcomes, err := toRows(run)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, `INSERT INTO screen_runs
		(id, strategy, started_at, finished_at, universe, scanned, selected, halted)
		VALUES (:id, :strategy, :started_at, :finished_at, :universe, :scanned, :selected, :halted)`, rr); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, o := range outcomes {
		if _, err := tx.NamedExecContext(ctx, `INSERT INTO screen_outcomes
			(run_id, position, symbol, outcome, reason, failed, bars, snapshot)
			VALUES (:run_id, :position, :symbol, :outcome, :reason, :failed, :bars, :snapshot)`, o); err != nil {
			return fmt.Errorf("insert outcome %s: %w", o.Symbol, err)
		}
	}
	return tx.Commit()
}

// LatestRun loads the most recently started run.
func (s *sqlStore) LatestRun(ctx context.Context) (*model.Run, error) {
	var rr runRow
	err := s.db.GetContext(ctx, &rr, `SELECT id, strategy, started_at, finished_at, universe, scanned, selected, halted
		FROM screen_runs ORDER BY started_at DESC LIMIT 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, fmt.Errorf("select run: %w", err)
	}

	var rows []outcomeRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(`SELECT run_id, position, symbol, outcome, reason, failed, bars, snapshot
		FROM screen_outcomes WHERE run_id = ? ORDER BY position`), rr.ID); err != nil {
		return nil, fmt.Errorf("select outcomes: %w", err)
	}
	return fromRows(rr, rows)
}

func (s *sqlStore) Close() error {
	log.Printf("[INFO] closing %s recorder", s.name)
	return s.db.Close()
}
