package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// Value is an indicator reading that may be undefined, e.g. while a
// rolling window is still filling.
type Value struct {
	V     float64
	Valid bool
}

// Defined wraps a computed number.
func Defined(v float64) Value { return Value{V: v, Valid: true} }

// Undefined is the missing value.
func Undefined() Value { return Value{} }

// GreaterThan is false whenever either side is undefined.
func (a Value) GreaterThan(b Value) bool { return a.Valid && b.Valid && a.V > b.V }

// LessThan is false whenever either side is undefined.
func (a Value) LessThan(b Value) bool { return a.Valid && b.Valid && a.V < b.V }

// AtLeast is false whenever either side is undefined.
func (a Value) AtLeast(b Value) bool { return a.Valid && b.Valid && a.V >= b.V }

// MarshalJSON encodes an undefined value as null.
func (a Value) MarshalJSON() ([]byte, error) {
	if !a.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(a.V)
}

// UnmarshalJSON accepts a number or null.
func (a *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*a = Value{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*a = Defined(v)
	return nil
}

// RangeMetrics summarizes the trailing window as of the latest bar.
type RangeMetrics struct {
	Window        int
	Min           float64
	Max           float64
	LowThreshold  float64
	HighThreshold float64
	// Position of the latest price within [Min, Max], 0..1.
	Position float64
}

// Frame is a bar series enriched with derived columns. Column slices are
// aligned with Bars.
type Frame struct {
	Symbol     string
	Bars       []Bar
	Field      PriceField
	Price      []float64
	MA         map[int][]Value
	Oscillator []Value
	// Lag maps a source column name to offset to lagged values.
	Lag   map[string]map[int][]Value
	Range RangeMetrics
}

// Column names addressable through Frame.Column and Frame.Lag.
const (
	ColPrice      = "price"
	ColOscillator = "oscillator"
)

// MAColumn returns the column name for a moving average window.
func MAColumn(window int) string {
	return "ma_" + strconv.Itoa(window)
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Bars) }

// Lagged returns the value of column name, offset bars before row i.
func (f *Frame) Lagged(name string, offset, i int) Value {
	byOffset, ok := f.Lag[name]
	if !ok {
		return Undefined()
	}
	col, ok := byOffset[offset]
	if !ok || i < 0 || i >= len(col) {
		return Undefined()
	}
	return col[i]
}

// MAAt returns the moving average for window at row i.
func (f *Frame) MAAt(window, i int) Value {
	col, ok := f.MA[window]
	if !ok || i < 0 || i >= len(col) {
		return Undefined()
	}
	return col[i]
}

// OscillatorAt returns the oscillator at row i.
func (f *Frame) OscillatorAt(i int) Value {
	if i < 0 || i >= len(f.Oscillator) {
		return Undefined()
	}
	return f.Oscillator[i]
}

// Row is the typed per-bar view that screening predicates read.
type Row struct {
	Index         int       `json:"index"`
	Time          time.Time `json:"time"`
	Price         Value     `json:"price"`
	ShortMA       Value     `json:"short_ma"`
	MediumMA      Value     `json:"medium_ma"`
	LongMA        Value     `json:"long_ma"`
	LongMALag     Value     `json:"long_ma_lag"`
	Oscillator    Value     `json:"oscillator"`
	OscillatorLag Value     `json:"oscillator_lag"`
	LowThreshold  Value     `json:"low_threshold"`
	HighThreshold Value     `json:"high_threshold"`
}

// RowLayout names the frame columns a Row is assembled from.
type RowLayout struct {
	Short, Medium, Long int
	TrendOffset         int
}

// Row assembles the typed view of row i.
func (f *Frame) Row(i int, l RowLayout) Row {
	r := Row{Index: i}
	if i < 0 || i >= f.Len() {
		return r
	}
	r.Time = f.Bars[i].Time
	r.Price = Defined(f.Price[i])
	r.ShortMA = f.MAAt(l.Short, i)
	r.MediumMA = f.MAAt(l.Medium, i)
	r.LongMA = f.MAAt(l.Long, i)
	r.LongMALag = f.Lagged(MAColumn(l.Long), l.TrendOffset, i)
	r.Oscillator = f.OscillatorAt(i)
	r.OscillatorLag = f.Lagged(ColOscillator, l.TrendOffset, i)
	if f.Range.Window > 0 {
		r.LowThreshold = Defined(f.Range.LowThreshold)
		r.HighThreshold = Defined(f.Range.HighThreshold)
	}
	return r
}
