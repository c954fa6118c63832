package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Bar represents a single OHLCV bar. AdjClose equals Close when the
// provider does not report adjusted prices.
type Bar struct {
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	AdjClose float64   `json:"adj_close"`
	Volume   float64   `json:"volume"`
}

// PriceField selects which close is used for indicator computation.
type PriceField string

const (
	FieldClose    PriceField = "close"
	FieldAdjClose PriceField = "adjusted_close"
)

// Price returns the bar's value for the given field.
func (b Bar) Price(f PriceField) float64 {
	if f == FieldAdjClose {
		return b.AdjClose
	}
	return b.Close
}

// BarSeries holds the ordered bars fetched for one symbol.
type BarSeries struct {
	Symbol    string
	Bars      []Bar
	FetchedAt time.Time
}

// Len returns the number of bars.
func (s *BarSeries) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Bars)
}

// Last returns the most recent bar.
func (s *BarSeries) Last() (Bar, bool) {
	if s.Len() == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// Prices extracts the given price field in series order.
func (s *BarSeries) Prices(f PriceField) []float64 {
	out := make([]float64, s.Len())
	for i, b := range s.Bars {
		out[i] = b.Price(f)
	}
	return out
}

// Validate checks ordering and numeric sanity of the series.
func (s *BarSeries) Validate() error {
	if s.Len() == 0 {
		return errors.New("empty series")
	}
	for i, b := range s.Bars {
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("bar %d (%s): non-finite value", i, b.Time.Format(time.RFC3339))
			}
		}
		if b.Volume < 0 {
			return fmt.Errorf("bar %d (%s): negative volume", i, b.Time.Format(time.RFC3339))
		}
		if i > 0 && !b.Time.After(s.Bars[i-1].Time) {
			return fmt.Errorf("bar %d (%s): timestamp not after previous", i, b.Time.Format(time.RFC3339))
		}
	}
	return nil
}
