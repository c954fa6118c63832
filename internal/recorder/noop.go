package recorder

import (
	"context"
	"sync"

	"MarketScreener/internal/model"
)

// NoopRecorder keeps only the latest run in memory. It is used when no
// database is configured.
type NoopRecorder struct {
	mu   sync.Mutex
	last *model.Run
}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ context.Context, run *model.Run) error {
	n.mu.Lock()
	n.last = run
	n.mu.Unlock()
	return nil
}

func (n *NoopRecorder) LatestRun(context.Context) (*model.Run, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.last == nil {
		return nil, ErrNoRuns
	}
	return n.last, nil
}

func (n *NoopRecorder) Close() error { return nil }
