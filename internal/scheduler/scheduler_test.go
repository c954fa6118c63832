package scheduler

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"MarketScreener/internal/exporter"
	"MarketScreener/internal/model"
	"MarketScreener/internal/recorder"
)

type fakeScreener struct {
	block chan struct{}
	got   []string
}

func (f *fakeScreener) Screen(ctx context.Context, universe []string) (*model.Run, error) {
	if f.block != nil {
		<-f.block
	}
	f.got = universe
	sel := model.SelectionResult{Symbol: universe[0], Matched: true, Outcome: model.OutcomeSelected}
	return &model.Run{
		ID:        "run-1",
		Strategy:  "trend_template",
		StartedAt: time.Date(2024, 3, 1, 21, 0, 0, 0, time.UTC),
		Universe:  len(universe),
		Scanned:   1,
		Selected:  []model.SelectionResult{sel},
		Outcomes:  []model.SelectionResult{sel},
	}, nil
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []string
}

func (f *fakeSender) SendWithRetry(_ context.Context, text string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, text)
	return nil
}

func (f *fakeSender) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.msgs...)
}

func staticUniverse(symbols ...string) UniverseFunc {
	return func(context.Context) ([]string, error) { return symbols, nil }
}

func TestRunPass_RecordsExportsAndReports(t *testing.T) {
	fs := &fakeScreener{}
	sender := &fakeSender{}
	rec := recorder.NewNoopRecorder()
	s := NewScheduler(context.Background(), fs, staticUniverse("AAA", "BBB"), rec, sender)
	dir := t.TempDir()
	s.Export = &Export{Saver: exporter.CSVSaver{}, Dir: dir}

	run, err := s.RunPass(context.Background())
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}
	if len(fs.got) != 2 {
		t.Errorf("screener got %v", fs.got)
	}
	latest, err := s.LatestRun(context.Background())
	if err != nil || latest != run {
		t.Errorf("run not recorded: %v %v", latest, err)
	}
	files, _ := os.ReadDir(dir)
	if len(files) != 1 {
		t.Errorf("expected one export file, got %d", len(files))
	}
	msgs := sender.messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0], "AAA") {
		t.Errorf("unexpected notifications %v", msgs)
	}
}

func TestRunPass_UniverseError(t *testing.T) {
	sender := &fakeSender{}
	failing := func(context.Context) ([]string, error) { return nil, errors.New("404 list") }
	s := NewScheduler(context.Background(), &fakeScreener{}, failing, nil, sender)

	if _, err := s.RunPass(context.Background()); err == nil || !strings.Contains(err.Error(), "404 list") {
		t.Fatalf("expected universe error, got %v", err)
	}
	if msgs := sender.messages(); len(msgs) != 1 || !strings.Contains(msgs[0], "Screening failed") {
		t.Errorf("expected failure notification, got %v", msgs)
	}

	empty := NewScheduler(context.Background(), &fakeScreener{}, staticUniverse(), nil, nil)
	if _, err := empty.RunPass(context.Background()); err == nil {
		t.Error("expected error for empty universe")
	}
}

func TestRunPass_NoOverlap(t *testing.T) {
	fs := &fakeScreener{block: make(chan struct{})}
	s := NewScheduler(context.Background(), fs, staticUniverse("AAA"), nil, nil)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunPass(context.Background())
		done <- err
	}()

	deadline := time.Now().Add(time.Second)
	var err error
	for time.Now().Before(deadline) {
		if _, err = s.RunPass(context.Background()); errors.Is(err, ErrPassRunning) {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !errors.Is(err, ErrPassRunning) {
		t.Fatalf("expected ErrPassRunning, got %v", err)
	}
	if err := s.StartPass(context.Background()); !errors.Is(err, ErrPassRunning) {
		t.Errorf("StartPass during a pass: expected ErrPassRunning, got %v", err)
	}
	if got := s.HandleCommand(context.Background(), "/screen"); !strings.Contains(got, "already running") {
		t.Errorf("unexpected /screen reply during a pass: %q", got)
	}
	close(fs.block)
	if err := <-done; err != nil {
		t.Errorf("first pass: %v", err)
	}
}

func TestHandleCommand(t *testing.T) {
	sender := &fakeSender{}
	s := NewScheduler(context.Background(), &fakeScreener{}, staticUniverse("AAA"), nil, sender)
	ctx := context.Background()

	if got := s.HandleCommand(ctx, "/last"); got != "No screening pass recorded yet" {
		t.Errorf("unexpected /last reply %q", got)
	}
	if got := s.HandleCommand(ctx, "/screen@ScreenerBot"); !strings.Contains(got, "started") {
		t.Errorf("unexpected /screen reply %q", got)
	}

	deadline := time.Now().Add(time.Second)
	for len(sender.messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := s.HandleCommand(ctx, "/last"); !strings.Contains(got, "AAA") {
		t.Errorf("expected latest run in /last reply, got %q", got)
	}
	if got := s.HandleCommand(ctx, "hello"); !strings.Contains(got, "/screen") {
		t.Errorf("expected help, got %q", got)
	}
}

func TestRegister(t *testing.T) {
	s := NewScheduler(context.Background(), &fakeScreener{}, staticUniverse("AAA"), nil, nil)
	if err := s.Register("0 30 16 * * 1-5"); err != nil {
		t.Errorf("valid cron rejected: %v", err)
	}
	if err := s.Register("every day"); err == nil {
		t.Error("expected error for invalid cron spec")
	}
}
