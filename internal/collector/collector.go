package collector

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"MarketScreener/internal/model"
)

// Throttler gates calls to the external data source.
type Throttler interface {
	Wait(ctx context.Context) error
}

// Options configures a Collector.
type Options struct {
	Lookback   int
	MinHistory int
	Timeout    time.Duration
	Retries    int
	Backoff    time.Duration
}

// Collector wraps a Fetcher with throttling, a per-fetch timeout, retry of
// unavailable data and series validation.
type Collector struct {
	Fetcher   Fetcher
	Throttler Throttler
	Opts      Options
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, throttler Throttler, opts Options) *Collector {
	return &Collector{Fetcher: fetcher, Throttler: throttler, Opts: opts}
}

// Fetch returns a validated series of at least MinHistory bars. Errors are
// *FetchError values matching ErrDataUnavailable or ErrInsufficientHistory.
// A cancelled parent context is returned as-is.
func (c *Collector) Fetch(ctx context.Context, symbol string) (*model.BarSeries, error) {
	var lastErr error
	for attempt := 0; attempt <= c.Opts.Retries; attempt++ {
		if attempt > 0 {
			backoff := c.Opts.Backoff * time.Duration(1<<uint(attempt-1))
			log.Printf("[WARN] fetch %s failed (attempt %d/%d): %v, retrying in %v",
				symbol, attempt, c.Opts.Retries+1, lastErr, backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		series, err := c.fetchOnce(ctx, symbol)
		if err == nil {
			return c.check(symbol, series)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	return nil, lastErr
}

func (c *Collector) fetchOnce(ctx context.Context, symbol string) (*model.BarSeries, error) {
	if c.Throttler != nil {
		if err := c.Throttler.Wait(ctx); err != nil {
			return nil, fmt.Errorf("throttle: %w", err)
		}
	}
	fctx := ctx
	if c.Opts.Timeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, c.Opts.Timeout)
		defer cancel()
	}
	series, err := c.Fetcher.FetchBars(fctx, symbol, c.Opts.Lookback)
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, unavailable(symbol, err)
	}
	if series.Len() == 0 {
		return nil, unavailable(symbol, errors.New("empty response"))
	}
	return series, nil
}

func (c *Collector) check(symbol string, series *model.BarSeries) (*model.BarSeries, error) {
	if series.Symbol == "" {
		series.Symbol = symbol
	}
	if err := series.Validate(); err != nil {
		return nil, unavailable(symbol, fmt.Errorf("invalid series: %w", err))
	}
	if series.Len() < c.Opts.MinHistory {
		return nil, &FetchError{
			Symbol: symbol,
			Kind:   ErrInsufficientHistory,
			Err:    fmt.Errorf("got %d bars, need %d", series.Len(), c.Opts.MinHistory),
		}
	}
	return series, nil
}
