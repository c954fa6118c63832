package collector

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"MarketScreener/internal/model"
)

// Fetcher retrieves ordered historical bars for one symbol. lookback is the
// number of bars wanted; providers may return fewer.
type Fetcher interface {
	FetchBars(ctx context.Context, symbol string, lookback int) (*model.BarSeries, error)
	Name() string
}

var (
	// ErrDataUnavailable covers network failures, unknown symbols, empty
	// responses and fetch timeouts.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrInsufficientHistory means the series is shorter than the longest
	// window the screen needs.
	ErrInsufficientHistory = errors.New("insufficient history")
)

// FetchError carries the symbol and underlying cause of a failed fetch.
type FetchError struct {
	Symbol string
	Kind   error
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Symbol, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Symbol, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func unavailable(symbol string, err error) error {
	return &FetchError{Symbol: symbol, Kind: ErrDataUnavailable, Err: err}
}

// normalize sorts bars chronologically, keeps the last bar for duplicate
// timestamps and trims to the most recent lookback bars.
func normalize(bars []model.Bar, lookback int) []model.Bar {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	out := bars[:0]
	for _, b := range bars {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	if lookback > 0 && len(out) > lookback {
		out = out[len(out)-lookback:]
	}
	return out
}
