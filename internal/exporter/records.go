package exporter

import (
	"strconv"
	"strings"

	"MarketScreener/internal/model"
)

// ResultRecord is the flat, file-friendly form of a SelectionResult.
// Undefined indicator values are nil.
type ResultRecord struct {
	Symbol        string   `json:"symbol" parquet:"symbol"`
	Outcome       string   `json:"outcome" parquet:"outcome"`
	Time          int64    `json:"t" parquet:"t"` // unix ms of the evaluated bar
	Bars          int64    `json:"bars" parquet:"bars"`
	Price         *float64 `json:"price" parquet:"price,optional"`
	ShortMA       *float64 `json:"short_ma" parquet:"short_ma,optional"`
	MediumMA      *float64 `json:"medium_ma" parquet:"medium_ma,optional"`
	LongMA        *float64 `json:"long_ma" parquet:"long_ma,optional"`
	LongMALag     *float64 `json:"long_ma_lag" parquet:"long_ma_lag,optional"`
	Oscillator    *float64 `json:"oscillator" parquet:"oscillator,optional"`
	OscillatorLag *float64 `json:"oscillator_lag" parquet:"oscillator_lag,optional"`
	LowThreshold  *float64 `json:"low_threshold" parquet:"low_threshold,optional"`
	HighThreshold *float64 `json:"high_threshold" parquet:"high_threshold,optional"`
	Failed        string   `json:"failed,omitempty" parquet:"failed,optional"`
}

// BarRecord is one OHLCV bar.
type BarRecord struct {
	Timestamp int64   `json:"t" parquet:"t"`
	Open      float64 `json:"o" parquet:"o"`
	High      float64 `json:"h" parquet:"h"`
	Low       float64 `json:"l" parquet:"l"`
	Close     float64 `json:"c" parquet:"c"`
	AdjClose  float64 `json:"ac" parquet:"ac"`
	Volume    float64 `json:"v" parquet:"v"`
}

func ptr(v model.Value) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.V
	return &f
}

// Results converts selection results to records.
func Results(results []model.SelectionResult) []ResultRecord {
	out := make([]ResultRecord, len(results))
	for i, r := range results {
		s := r.Snapshot
		rec := ResultRecord{
			Symbol:        r.Symbol,
			Outcome:       string(r.Outcome),
			Bars:          int64(r.Bars),
			Price:         ptr(s.Price),
			ShortMA:       ptr(s.ShortMA),
			MediumMA:      ptr(s.MediumMA),
			LongMA:        ptr(s.LongMA),
			LongMALag:     ptr(s.LongMALag),
			Oscillator:    ptr(s.Oscillator),
			OscillatorLag: ptr(s.OscillatorLag),
			LowThreshold:  ptr(s.LowThreshold),
			HighThreshold: ptr(s.HighThreshold),
			Failed:        strings.Join(r.Failed, ";"),
		}
		if !s.Time.IsZero() {
			rec.Time = s.Time.UnixMilli()
		}
		out[i] = rec
	}
	return out
}

// Bars converts model bars to records.
func Bars(bars []model.Bar) []BarRecord {
	out := make([]BarRecord, len(bars))
	for i, b := range bars {
		out[i] = BarRecord{
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			AdjClose:  b.AdjClose,
			Volume:    b.Volume,
		}
	}
	return out
}

func (ResultRecord) header() []string {
	return []string{"symbol", "outcome", "t", "bars", "price", "short_ma", "medium_ma", "long_ma",
		"long_ma_lag", "oscillator", "oscillator_lag", "low_threshold", "high_threshold", "failed"}
}

func (r ResultRecord) row() []string {
	return []string{
		r.Symbol, r.Outcome, strconv.FormatInt(r.Time, 10), strconv.FormatInt(r.Bars, 10),
		fmtPtr(r.Price), fmtPtr(r.ShortMA), fmtPtr(r.MediumMA), fmtPtr(r.LongMA),
		fmtPtr(r.LongMALag), fmtPtr(r.Oscillator), fmtPtr(r.OscillatorLag),
		fmtPtr(r.LowThreshold), fmtPtr(r.HighThreshold), r.Failed,
	}
}

func (BarRecord) header() []string {
	return []string{"t", "o", "h", "l", "c", "ac", "v"}
}

func (b BarRecord) row() []string {
	return []string{
		strconv.FormatInt(b.Timestamp, 10), fmtFloat(b.Open), fmtFloat(b.High), fmtFloat(b.Low),
		fmtFloat(b.Close), fmtFloat(b.AdjClose), fmtFloat(b.Volume),
	}
}

func fmtFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func fmtPtr(f *float64) string {
	if f == nil {
		return ""
	}
	return fmtFloat(*f)
}
