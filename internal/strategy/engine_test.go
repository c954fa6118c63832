package strategy

import (
	"reflect"
	"testing"
	"time"

	"MarketScreener/internal/calculator"
	"MarketScreener/internal/model"
)

var v = model.Defined

func superMomentumRules() Rules {
	return Rules{Variant: SuperMomentum, Short: 5, Medium: 10, Long: 20, TrendOffset: 5, OscillatorThreshold: 80}
}

// matchingFrame is a single-row frame engineered to pass every
// super_momentum predicate: close 110, MAs 105/100/95, long MA five bars
// ago 90, oscillator five bars ago 85, trailing min 85 (low threshold 110.5).
func matchingFrame() *model.Frame {
	return &model.Frame{
		Symbol:     "SYN",
		Bars:       []model.Bar{{Time: time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), Close: 110, AdjClose: 110}},
		Field:      model.FieldClose,
		Price:      []float64{110},
		MA:         map[int][]model.Value{5: {v(105)}, 10: {v(100)}, 20: {v(95)}},
		Oscillator: []model.Value{v(60)},
		Lag: map[string]map[int][]model.Value{
			model.MAColumn(20):  {5: {v(90)}},
			model.ColOscillator: {5: {v(85)}},
		},
		Range: model.RangeMetrics{Window: 30, Min: 85, Max: 120, LowThreshold: 110.5, HighThreshold: 108},
	}
}

func mustSet(t *testing.T, r Rules) *ConditionSet {
	t.Helper()
	cs, err := NewConditionSet(r)
	if err != nil {
		t.Fatalf("new condition set: %v", err)
	}
	return cs
}

func TestEvaluateLatest_AllPredicatesPass(t *testing.T) {
	cs := mustSet(t, superMomentumRules())
	row, matched, failed := EvaluateLatest(matchingFrame(), cs)
	if !matched {
		t.Fatalf("expected match, failed predicates: %v", failed)
	}
	if row.Price.V != 110 || row.LongMALag.V != 90 || row.OscillatorLag.V != 85 {
		t.Errorf("unexpected snapshot: %+v", row)
	}
}

func TestEvaluateLatest_SingleValueFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(f *model.Frame)
		want   []string
	}{
		{"long MA flat vs lookback", func(f *model.Frame) {
			f.Lag[model.MAColumn(20)][5][0] = v(96)
		}, []string{LongTrendingUp}},
		{"price below short MA", func(f *model.Frame) {
			f.MA[5][0] = v(111)
		}, []string{PriceAboveShort}},
		{"price left the low zone", func(f *model.Frame) {
			f.Range.LowThreshold = 100
		}, []string{PriceBelowLowThreshold}},
		{"oscillator below threshold", func(f *model.Frame) {
			f.Lag[model.ColOscillator][5][0] = v(79.9)
		}, []string{OscillatorConfirmed}},
		{"medium below long", func(f *model.Frame) {
			f.MA[10][0] = v(94)
		}, []string{MediumAboveLong, MAStackAligned}},
		{"undefined lookback", func(f *model.Frame) {
			f.Lag[model.MAColumn(20)][5][0] = model.Undefined()
		}, []string{LongTrendingUp}},
		{"undefined oscillator lag", func(f *model.Frame) {
			f.Lag[model.ColOscillator][5][0] = model.Undefined()
		}, []string{OscillatorConfirmed}},
	}
	cs := mustSet(t, superMomentumRules())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := matchingFrame()
			tt.mutate(f)
			_, matched, failed := EvaluateLatest(f, cs)
			if matched {
				t.Fatal("expected rejection")
			}
			if !reflect.DeepEqual(failed, tt.want) {
				t.Errorf("expected failed %v, got %v", tt.want, failed)
			}
		})
	}
}

func TestEvaluateLatest_EachPredicateIsRequired(t *testing.T) {
	base := mustSet(t, superMomentumRules())
	for _, name := range base.Names() {
		cs, err := base.Replace(name, func(model.Row) bool { return false })
		if err != nil {
			t.Fatalf("replace %s: %v", name, err)
		}
		_, matched, failed := EvaluateLatest(matchingFrame(), cs)
		if matched {
			t.Errorf("%s forced false: expected rejection", name)
		}
		if len(failed) != 1 || failed[0] != name {
			t.Errorf("%s forced false: expected only it to fail, got %v", name, failed)
		}
	}
	if _, err := base.Replace("nope", nil); err == nil {
		t.Error("expected error for unknown predicate")
	}
}

func TestVariants_OppositeLowProximity(t *testing.T) {
	f := matchingFrame()
	tt := superMomentumRules()
	tt.Variant = TrendTemplate
	trend := mustSet(t, tt)

	// Close 110 is below the 110.5 low threshold, which the trend template rejects.
	_, matched, failed := EvaluateLatest(f, trend)
	if matched {
		t.Fatal("expected trend_template to reject a price still near its low")
	}
	if !reflect.DeepEqual(failed, []string{PriceAboveLowThreshold}) {
		t.Errorf("expected only %s to fail, got %v", PriceAboveLowThreshold, failed)
	}

	f.Range.LowThreshold = 104
	if _, matched, failed := EvaluateLatest(f, trend); !matched {
		t.Errorf("expected trend_template match once price clears the low zone, failed: %v", failed)
	}
	if _, matched, _ := EvaluateLatest(f, mustSet(t, superMomentumRules())); matched {
		t.Error("expected super_momentum to reject the same row")
	}
}

func TestNewConditionSet_Validation(t *testing.T) {
	tests := []struct {
		name string
		r    Rules
	}{
		{"unknown variant", Rules{Variant: "mean_reversion", Short: 1, Medium: 2, Long: 3, TrendOffset: 1}},
		{"unordered windows", Rules{Variant: TrendTemplate, Short: 50, Medium: 200, Long: 150, TrendOffset: 20}},
		{"zero window", Rules{Variant: TrendTemplate, Short: 0, Medium: 150, Long: 200, TrendOffset: 20}},
		{"zero offset", Rules{Variant: TrendTemplate, Short: 50, Medium: 150, Long: 200}},
	}
	for _, tt := range tests {
		if _, err := NewConditionSet(tt.r); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func risingFrame(t *testing.T, n int) *model.Frame {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := &model.BarSeries{Symbol: "UP"}
	for i := 0; i < n; i++ {
		p := 100 + float64(i)
		s.Bars = append(s.Bars, model.Bar{Time: start.AddDate(0, 0, i), Open: p, High: p, Low: p, Close: p, AdjClose: p, Volume: 1})
	}
	f, err := calculator.Enrich(s, calculator.Params{
		Field:            model.FieldAdjClose,
		Windows:          []int{5, 10, 20},
		OscillatorLength: 14,
		LookbackOffsets:  []int{5},
		MarginLow:        0.30,
		MarginHigh:       0.25,
	})
	if err != nil {
		t.Fatalf("enrich: %v", err)
	}
	return f
}

func TestEvaluate_FullFrame(t *testing.T) {
	f := risingFrame(t, 60)
	cs := mustSet(t, Rules{Variant: TrendTemplate, Short: 5, Medium: 10, Long: 20, TrendOffset: 5})

	rows := Evaluate(f, cs)
	if len(rows) == 0 {
		t.Fatal("expected matching rows in a steady uptrend")
	}
	// Long MA defined from row 19, its 5-bar lag from row 24; the low
	// threshold (100*1.3) is first exceeded at row 31.
	if rows[0] != 31 {
		t.Errorf("expected first matching row 31, got %d", rows[0])
	}
	if rows[len(rows)-1] != f.Len()-1 {
		t.Errorf("expected latest row to match, got last match %d", rows[len(rows)-1])
	}

	again := Evaluate(f, cs)
	if !reflect.DeepEqual(rows, again) {
		t.Error("expected Evaluate to be idempotent")
	}
}
