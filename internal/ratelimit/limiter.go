package ratelimit

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Limiter spaces calls to an external source by at least Delay, plus an
// optional random Jitter. It is safe for concurrent use: parallel callers
// reserve consecutive slots, so the spacing holds across workers.
type Limiter struct {
	Delay  time.Duration
	Jitter time.Duration

	mu   sync.Mutex
	next time.Time
	now  func() time.Time
}

// New creates a limiter. A zero delay and jitter never blocks.
func New(delay, jitter time.Duration) *Limiter {
	return &Limiter{Delay: delay, Jitter: jitter, now: time.Now}
}

// Wait blocks until the caller's slot opens or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := l.reserve()
	d := slot.Sub(l.clock())
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (l *Limiter) reserve() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	slot := now
	if l.next.After(now) {
		slot = l.next
	}
	gap := l.Delay
	if l.Jitter > 0 {
		gap += rand.N(l.Jitter)
	}
	l.next = slot.Add(gap)
	return slot
}

func (l *Limiter) clock() time.Time {
	if l.now != nil {
		return l.now()
	}
	return time.Now()
}

// Waiter is anything that gates a call.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Chain waits on each gate in order, e.g. a local jittered limiter
// followed by a RedisGate shared with other processes.
type Chain []Waiter

func (c Chain) Wait(ctx context.Context) error {
	for _, w := range c {
		if err := w.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}
