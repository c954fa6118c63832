package collector

import (
	"context"
	"sync"
	"time"

	"MarketScreener/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price  float64
	Series map[string][]model.Bar
	Errors map[string]error
	// Delay simulates provider latency; it honors ctx cancellation.
	Delay time.Duration

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(ctx context.Context, symbol string, lookback int) (*model.BarSeries, error) {
	m.mu.Lock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[symbol]++
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if err := m.Errors[symbol]; err != nil {
		return nil, err
	}
	bars, ok := m.Series[symbol]
	if !ok {
		bars = generateMockBars(m.Price, lookback)
	}
	cp := make([]model.Bar, len(bars))
	copy(cp, bars)
	return &model.BarSeries{Symbol: symbol, Bars: normalize(cp, lookback), FetchedAt: time.Now()}, nil
}

// Calls returns how many times symbol was fetched.
func (m *MockFetcher) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[symbol]
}

// TotalCalls returns the number of fetches across all symbols.
func (m *MockFetcher) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		n += c
	}
	return n
}

func generateMockBars(basePrice float64, count int) []model.Bar {
	bars := make([]model.Bar, count)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.Bar{
			Time:     start.AddDate(0, 0, i),
			Open:     p * 0.999,
			High:     p * 1.005,
			Low:      p * 0.995,
			Close:    p,
			AdjClose: p,
			Volume:   1000000,
		}
	}
	return bars
}

// TrendBars builds count daily bars moving linearly from start by step per
// bar. Useful for engineering series that pass or fail the trend rules.
func TrendBars(start, step float64, count int) []model.Bar {
	bars := make([]model.Bar, count)
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < count; i++ {
		p := start + step*float64(i)
		bars[i] = model.Bar{
			Time:     t0.AddDate(0, 0, i),
			Open:     p,
			High:     p,
			Low:      p,
			Close:    p,
			AdjClose: p,
			Volume:   1000,
		}
	}
	return bars
}
