package screener

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"MarketScreener/internal/calculator"
	"MarketScreener/internal/collector"
	"MarketScreener/internal/model"
	"MarketScreener/internal/strategy"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Config is the immutable configuration of a screening pass.
type Config struct {
	Params calculator.Params
	Rules  strategy.Rules
	// MaxSelections caps the selection list; zero means no cap.
	MaxSelections int
	// MinHistory is the minimum series length; it is raised to the longest
	// rolling window when smaller.
	MinHistory int
	// Workers > 1 enables the parallel scan.
	Workers int
	// KeepBars retains the fetched bars on selected results.
	KeepBars bool
}

// Source fetches a validated bar series for one symbol.
type Source interface {
	Fetch(ctx context.Context, symbol string) (*model.BarSeries, error)
}

// Screener runs screening passes over a symbol universe.
type Screener struct {
	cfg        Config
	source     Source
	conditions *strategy.ConditionSet
	minHistory int

	// Trace, when set, observes every per-symbol state transition. It is
	// called from worker goroutines in parallel mode.
	Trace func(symbol string, o model.Outcome)
	now   func() time.Time
}

// New validates cfg and builds the condition set once for every pass.
func New(cfg Config, source Source) (*Screener, error) {
	if source == nil {
		return nil, errors.New("screener: nil source")
	}
	if cfg.MaxSelections < 0 {
		return nil, fmt.Errorf("screener: max selections must not be negative, got %d", cfg.MaxSelections)
	}
	cs, err := strategy.NewConditionSet(cfg.Rules)
	if err != nil {
		return nil, fmt.Errorf("screener: %w", err)
	}
	if cfg.Params.Field == "" {
		cfg.Params.Field = model.FieldClose
	}
	minHistory := cfg.MinHistory
	if l := cfg.Params.Longest(); l > minHistory {
		minHistory = l
	}
	return &Screener{
		cfg:        cfg,
		source:     source,
		conditions: cs,
		minHistory: minHistory,
		now:        time.Now,
	}, nil
}

// Conditions returns the rule set applied to every symbol.
func (s *Screener) Conditions() *strategy.ConditionSet { return s.conditions }

// MinHistory returns the effective minimum series length.
func (s *Screener) MinHistory() int { return s.minHistory }

// Screen evaluates the universe and returns the pass. Per-symbol failures
// become SKIPPED outcomes; only cancellation of ctx aborts the pass, in
// which case the partial run is returned with ctx's error.
func (s *Screener) Screen(ctx context.Context, universe []string) (*model.Run, error) {
	run := &model.Run{
		ID:        uuid.NewString(),
		Strategy:  string(s.cfg.Rules.Variant),
		StartedAt: s.now(),
		Universe:  len(universe),
		Selected:  []model.SelectionResult{},
	}
	log.Printf("[INFO] screening pass %s: %d symbols, strategy %s", run.ID, len(universe), run.Strategy)

	var err error
	if s.cfg.Workers > 1 {
		err = s.screenParallel(ctx, universe, run)
	} else {
		err = s.screenSequential(ctx, universe, run)
	}
	run.Scanned = len(run.Outcomes)
	run.FinishedAt = s.now()

	log.Printf("[INFO] screening pass %s done: scanned %d, selected %d, rejected %d, skipped %d",
		run.ID, run.Scanned, len(run.Selected), run.Count(model.OutcomeRejected), run.Count(model.OutcomeSkipped))
	return run, err
}

func (s *Screener) screenSequential(ctx context.Context, universe []string, run *model.Run) error {
	for _, symbol := range universe {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := s.screenSymbol(ctx, symbol)
		if err != nil {
			return err
		}
		run.Outcomes = append(run.Outcomes, res)
		if res.Matched {
			run.Selected = append(run.Selected, res)
			if s.capped(len(run.Selected)) {
				run.Halted = len(run.Outcomes) < len(universe)
				if run.Halted {
					log.Printf("[INFO] max selections %d reached after %d symbols", s.cfg.MaxSelections, len(run.Outcomes))
				}
				return nil
			}
		}
	}
	return nil
}

// screenParallel processes symbols on a bounded worker pool. Fetches still
// pass through the source's shared gate. Results are merged in universe
// order and cut at MaxSelections exactly as the sequential scan would.
func (s *Screener) screenParallel(ctx context.Context, universe []string, run *model.Run) error {
	results := make([]model.SelectionResult, len(universe))
	done := make([]bool, len(universe))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i, symbol := range universe {
		i, symbol := i, symbol
		g.Go(func() error {
			res, err := s.screenSymbol(gctx, symbol)
			if err != nil {
				return err
			}
			results[i] = res
			done[i] = true
			return nil
		})
	}
	err := g.Wait()

	for i := range universe {
		if !done[i] {
			continue
		}
		run.Outcomes = append(run.Outcomes, results[i])
		if !results[i].Matched {
			continue
		}
		run.Selected = append(run.Selected, results[i])
		if s.capped(len(run.Selected)) {
			run.Halted = i < len(universe)-1
			break
		}
	}
	return err
}

func (s *Screener) capped(n int) bool {
	return s.cfg.MaxSelections > 0 && n >= s.cfg.MaxSelections
}

// screenSymbol drives one symbol from PENDING to a terminal outcome. It
// returns an error only when ctx was cancelled.
func (s *Screener) screenSymbol(ctx context.Context, symbol string) (model.SelectionResult, error) {
	res := model.SelectionResult{Symbol: symbol}
	s.transition(&res, model.OutcomePending)

	series, err := s.source.Fetch(ctx, symbol)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return s.skip(res, err), nil
	}
	res.Bars = series.Len()
	s.transition(&res, model.OutcomeFetched)
	if series.Len() < s.minHistory {
		return s.skip(res, &collector.FetchError{
			Symbol: symbol,
			Kind:   collector.ErrInsufficientHistory,
			Err:    fmt.Errorf("got %d bars, need %d", series.Len(), s.minHistory),
		}), nil
	}

	frame, err := calculator.Enrich(series, s.cfg.Params)
	if err != nil {
		return s.skip(res, fmt.Errorf("enrich: %w", err)), nil
	}
	s.transition(&res, model.OutcomeEnriched)

	row, matched, failed := strategy.EvaluateLatest(frame, s.conditions)
	res.Snapshot = row
	s.transition(&res, model.OutcomeEvaluated)

	if !matched {
		res.Failed = failed
		res.Reason = fmt.Sprintf("failed %v", failed)
		s.transition(&res, model.OutcomeRejected)
		return res, nil
	}
	res.Matched = true
	if s.cfg.KeepBars {
		res.History = frame.Bars
	}
	s.transition(&res, model.OutcomeSelected)
	log.Printf("[INFO] selected %s: price %.4f", symbol, row.Price.V)
	return res, nil
}

func (s *Screener) skip(res model.SelectionResult, err error) model.SelectionResult {
	res.Reason = err.Error()
	res.Err = err
	s.transition(&res, model.OutcomeSkipped)
	log.Printf("[WARN] skip %s: %v", res.Symbol, err)
	return res
}

func (s *Screener) transition(res *model.SelectionResult, o model.Outcome) {
	res.Outcome = o
	if s.Trace != nil {
		s.Trace(res.Symbol, o)
	}
}
