package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"MarketScreener/internal/model"
)

// ErrNoRuns is returned by LatestRun when nothing has been recorded yet.
var ErrNoRuns = errors.New("no screening runs recorded")

// Recorder persists screening passes for later inspection.
type Recorder interface {
	RecordRun(ctx context.Context, run *model.Run) error
	LatestRun(ctx context.Context) (*model.Run, error)
	Close() error
}

type runRow struct {
	ID         string `db:"id"`
	Strategy   string `db:"strategy"`
	StartedAt  int64  `db:"started_at"`
	FinishedAt int64  `db:"finished_at"`
	Universe   int    `db:"universe"`
	Scanned    int    `db:"scanned"`
	Selected   int    `db:"selected"`
	Halted     int    `db:"halted"`
}

type outcomeRow struct {
	RunID    string `db:"run_id"`
	Position int    `db:"position"`
	Symbol   string `db:"symbol"`
	Outcome  string `db:"outcome"`
	Reason   string `db:"reason"`
	Failed   string `db:"failed"`
	Bars     int    `db:"bars"`
	Snapshot string `db:"snapshot"`
}

func toRows(run *model.Run) (runRow, []outcomeRow, error) {
	rr := runRow{
		ID:         run.ID,
		Strategy:   run.Strategy,
		StartedAt:  run.StartedAt.UnixMilli(),
		FinishedAt: run.FinishedAt.UnixMilli(),
		Universe:   run.Universe,
		Scanned:    run.Scanned,
		Selected:   len(run.Selected),
	}
	if run.Halted {
		rr.Halted = 1
	}
	out := make([]outcomeRow, 0, len(run.Outcomes))
	for i, res := range run.Outcomes {
		snap, err := json.Marshal(res.Snapshot)
		if err != nil {
			return rr, nil, fmt.Errorf("marshal snapshot %s: %w", res.Symbol, err)
		}
		out = append(out, outcomeRow{
			RunID:    run.ID,
			Position: i,
			Symbol:   res.Symbol,
			Outcome:  string(res.Outcome),
			Reason:   res.Reason,
			Failed:   strings.Join(res.Failed, ","),
			Bars:     res.Bars,
			Snapshot: string(snap),
		})
	}
	return rr, out, nil
}

func fromRows(rr runRow, rows []outcomeRow) (*model.Run, error) {
	run := &model.Run{
		ID:         rr.ID,
		Strategy:   rr.Strategy,
		StartedAt:  time.UnixMilli(rr.StartedAt).UTC(),
		FinishedAt: time.UnixMilli(rr.FinishedAt).UTC(),
		Universe:   rr.Universe,
		Scanned:    rr.Scanned,
		Halted:     rr.Halted != 0,
		Selected:   []model.SelectionResult{},
	}
	for _, o := range rows {
		res := model.SelectionResult{
			Symbol:  o.Symbol,
			Outcome: model.Outcome(o.Outcome),
			Reason:  o.Reason,
			Bars:    o.Bars,
		}
		res.Matched = res.Outcome == model.OutcomeSelected
		if o.Failed != "" {
			res.Failed = strings.Split(o.Failed, ",")
		}
		if o.Snapshot != "" {
			if err := json.Unmarshal([]byte(o.Snapshot), &res.Snapshot); err != nil {
				return nil, fmt.Errorf("decode snapshot %s: %w", o.Symbol, err)
			}
		}
		run.Outcomes = append(run.Outcomes, res)
		if res.Matched {
			run.Selected = append(run.Selected, res)
		}
	}
	return run, nil
}
