package calculator

import (
	"errors"
	"fmt"
	"sort"

	"MarketScreener/internal/model"
)

// Params configures Enrich.
type Params struct {
	Field            model.PriceField
	Windows          []int
	OscillatorLength int
	LookbackOffsets  []int
	RangeWindow      int
	MarginLow        float64
	MarginHigh       float64
}

// Longest returns the longest rolling window required by p.
func (p Params) Longest() int {
	n := p.OscillatorLength + 1
	for _, w := range p.Windows {
		if w > n {
			n = w
		}
	}
	return n
}

// Lag shifts col back by offset rows: out[i] = col[i-offset].
func Lag(col []model.Value, offset int) []model.Value {
	out := make([]model.Value, len(col))
	if offset < 0 {
		return out
	}
	for i := offset; i < len(col); i++ {
		out[i] = col[i-offset]
	}
	return out
}

// Enrich computes moving averages, the oscillator, lagged copies of every
// derived column and the trailing range metrics for series. It never
// mutates series.
func Enrich(series *model.BarSeries, p Params) (*model.Frame, error) {
	if series.Len() == 0 {
		return nil, errors.New("empty series")
	}
	if len(p.Windows) == 0 {
		return nil, errors.New("no moving average windows configured")
	}
	field := p.Field
	if field == "" {
		field = model.FieldClose
	}

	prices := series.Prices(field)
	bars := make([]model.Bar, len(series.Bars))
	copy(bars, series.Bars)

	f := &model.Frame{
		Symbol: series.Symbol,
		Bars:   bars,
		Field:  field,
		Price:  prices,
		MA:     make(map[int][]model.Value, len(p.Windows)),
		Lag:    make(map[string]map[int][]model.Value),
	}

	windows := append([]int(nil), p.Windows...)
	sort.Ints(windows)
	for _, w := range windows {
		col, err := SMA(prices, w)
		if err != nil {
			return nil, fmt.Errorf("sma %d: %w", w, err)
		}
		f.MA[w] = col
	}

	if p.OscillatorLength > 0 {
		col, err := RSI(prices, p.OscillatorLength)
		if err != nil {
			return nil, fmt.Errorf("rsi %d: %w", p.OscillatorLength, err)
		}
		f.Oscillator = col
	} else {
		f.Oscillator = make([]model.Value, len(prices))
	}

	priceCol := make([]model.Value, len(prices))
	for i, v := range prices {
		priceCol[i] = model.Defined(v)
	}
	sources := map[string][]model.Value{
		model.ColPrice:      priceCol,
		model.ColOscillator: f.Oscillator,
	}
	for w, col := range f.MA {
		sources[model.MAColumn(w)] = col
	}
	for name, col := range sources {
		byOffset := make(map[int][]model.Value, len(p.LookbackOffsets))
		for _, k := range p.LookbackOffsets {
			byOffset[k] = Lag(col, k)
		}
		f.Lag[name] = byOffset
	}

	rm, err := Range(prices, p.RangeWindow, p.MarginLow, p.MarginHigh)
	if err != nil {
		return nil, fmt.Errorf("range: %w", err)
	}
	if pos, err := Position(prices[len(prices)-1], rm.Max, rm.Min); err == nil {
		rm.Position = pos
	}
	f.Range = rm

	return f, nil
}
