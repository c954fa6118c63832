package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"MarketScreener/internal/exporter"
	"MarketScreener/internal/model"
	"MarketScreener/internal/notifier"
	"MarketScreener/internal/recorder"

	"github.com/robfig/cron/v3"
)

// ErrPassRunning is returned when a pass is requested while one is in progress.
var ErrPassRunning = errors.New("a screening pass is already running")

// Screener runs one screening pass over a universe.
type Screener interface {
	Screen(ctx context.Context, universe []string) (*model.Run, error)
}

// UniverseFunc loads the symbols for a pass.
type UniverseFunc func(ctx context.Context) ([]string, error)

// Sender delivers a text report.
type Sender interface {
	SendWithRetry(ctx context.Context, text string, maxRetries int) error
}

// Export configures writing selections after each pass.
type Export struct {
	Saver       exporter.Saver
	Dir         string
	IncludeBars bool
}

// Scheduler manages recurring screening passes and their side effects.
type Scheduler struct {
	Cron     *cron.Cron
	Screener Screener
	Universe UniverseFunc
	Recorder recorder.Recorder
	Notifier Sender // optional
	Export   *Export
	Ctx      context.Context

	running sync.Mutex
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, s Screener, universe UniverseFunc, rec recorder.Recorder, n Sender) *Scheduler {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Scheduler{
		Cron:     cron.New(cron.WithSeconds()),
		Screener: s,
		Universe: universe,
		Recorder: rec,
		Notifier: n,
		Ctx:      ctx,
	}
}

// Register schedules the recurring screening pass.
func (s *Scheduler) Register(screenCron string) error {
	if _, err := s.Cron.AddFunc(screenCron, s.screenTask); err != nil {
		return fmt.Errorf("register screen task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for a running pass to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

func (s *Scheduler) screenTask() {
	if _, err := s.RunPass(s.Ctx); err != nil && !errors.Is(err, ErrPassRunning) {
		log.Printf("[ERROR] scheduled screening pass: %v", err)
	}
}

// RunPass loads the universe, screens it, then records, exports and
// reports the run. Only one pass runs at a time.
func (s *Scheduler) RunPass(ctx context.Context) (*model.Run, error) {
	if !s.running.TryLock() {
		return nil, ErrPassRunning
	}
	defer s.running.Unlock()
	return s.runPass(ctx)
}

// StartPass starts a pass in the background and returns at once, or
// returns ErrPassRunning when one is already in progress.
func (s *Scheduler) StartPass(ctx context.Context) error {
	if !s.running.TryLock() {
		return ErrPassRunning
	}
	go func() {
		defer s.running.Unlock()
		if _, err := s.runPass(ctx); err != nil {
			log.Printf("[ERROR] manual screening pass: %v", err)
		}
	}()
	return nil
}

func (s *Scheduler) runPass(ctx context.Context) (*model.Run, error) {
	log.Println("[INFO] running screening pass")
	symbols, err := s.Universe(ctx)
	if err != nil {
		err = fmt.Errorf("load universe: %w", err)
		s.trySend(ctx, notifier.FormatError(err))
		return nil, err
	}
	if len(symbols) == 0 {
		err = errors.New("universe is empty")
		s.trySend(ctx, notifier.FormatError(err))
		return nil, err
	}

	run, err := s.Screener.Screen(ctx, symbols)
	if err != nil {
		// A cancelled pass is not recorded; its run is partial.
		return run, fmt.Errorf("screen: %w", err)
	}

	if err := s.Recorder.RecordRun(ctx, run); err != nil {
		log.Printf("[ERROR] record run: %v", err)
	}
	if s.Export != nil && s.Export.Saver != nil {
		if _, err := exporter.ExportRun(s.Export.Saver, s.Export.Dir, run, s.Export.IncludeBars); err != nil {
			log.Printf("[ERROR] export run: %v", err)
		}
	}
	s.trySend(ctx, notifier.FormatRun(run))
	return run, nil
}

// LatestRun returns the most recent recorded pass.
func (s *Scheduler) LatestRun(ctx context.Context) (*model.Run, error) {
	return s.Recorder.LatestRun(ctx)
}

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	cmd := strings.Fields(command)
	if len(cmd) == 0 {
		return notifier.FormatHelp()
	}
	// Commands may be addressed as /screen@BotName in groups.
	name, _, _ := strings.Cut(cmd[0], "@")
	switch name {
	case "/screen":
		if err := s.StartPass(s.Ctx); err != nil {
			return "⏳ " + err.Error()
		}
		return "🔎 Screening pass started"
	case "/last":
		run, err := s.LatestRun(ctx)
		if errors.Is(err, recorder.ErrNoRuns) {
			return "No screening pass recorded yet"
		}
		if err != nil {
			return notifier.FormatError(err)
		}
		return notifier.FormatRun(run)
	default:
		return notifier.FormatHelp()
	}
}

func (s *Scheduler) trySend(ctx context.Context, text string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.SendWithRetry(ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
