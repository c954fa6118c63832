package strategy

import (
	"fmt"

	"MarketScreener/internal/model"
)

// Variant names a rule set. The variants differ only in predicates 6 and 7.
type Variant string

const (
	// TrendTemplate is the momentum-continuation screen: price well above
	// its trailing low and close to its trailing high.
	TrendTemplate Variant = "trend_template"
	// SuperMomentum is the "still cheap" screen: an aligned uptrend whose
	// price has not yet left the zone just above its trailing low, with a
	// strong oscillator reading K1 bars ago.
	SuperMomentum Variant = "super_momentum"
)

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	return v == TrendTemplate || v == SuperMomentum
}

// Predicate is a named pure test over one row.
type Predicate struct {
	Name string
	Test func(r model.Row) bool
}

// Rules holds the constants a condition set is built from.
type Rules struct {
	Variant             Variant
	Short               int
	Medium              int
	Long                int
	TrendOffset         int // K1, in bars
	OscillatorThreshold float64
}

// ConditionSet is an ordered list of predicates combined with AND.
type ConditionSet struct {
	Variant    Variant
	Layout     model.RowLayout
	Predicates []Predicate
}

// Predicate names, in evaluation order.
const (
	PriceAboveMediumAndLong = "price_above_medium_and_long"
	MediumAboveLong         = "medium_above_long"
	LongTrendingUp          = "long_trending_up"
	MAStackAligned          = "ma_stack_aligned"
	PriceAboveShort         = "price_above_short"
	PriceAboveLowThreshold  = "price_above_low_threshold"
	PriceBelowLowThreshold  = "price_below_low_threshold"
	PriceAboveHighThreshold = "price_above_high_threshold"
	OscillatorConfirmed     = "oscillator_confirmed"
)

// NewConditionSet builds the standard seven-predicate rule set.
func NewConditionSet(r Rules) (*ConditionSet, error) {
	if !r.Variant.Valid() {
		return nil, fmt.Errorf("unknown strategy variant %q", r.Variant)
	}
	if r.Short <= 0 || r.Medium <= 0 || r.Long <= 0 {
		return nil, fmt.Errorf("moving average windows must be positive: %d/%d/%d", r.Short, r.Medium, r.Long)
	}
	if !(r.Short < r.Medium && r.Medium < r.Long) {
		return nil, fmt.Errorf("moving average windows must be short < medium < long: %d/%d/%d", r.Short, r.Medium, r.Long)
	}
	if r.TrendOffset <= 0 {
		return nil, fmt.Errorf("trend offset must be positive, got %d", r.TrendOffset)
	}

	preds := []Predicate{
		{PriceAboveMediumAndLong, func(x model.Row) bool {
			return x.Price.GreaterThan(x.MediumMA) && x.Price.GreaterThan(x.LongMA)
		}},
		{MediumAboveLong, func(x model.Row) bool {
			return x.MediumMA.GreaterThan(x.LongMA)
		}},
		{LongTrendingUp, func(x model.Row) bool {
			return x.LongMA.GreaterThan(x.LongMALag)
		}},
		{MAStackAligned, func(x model.Row) bool {
			return x.ShortMA.GreaterThan(x.MediumMA) && x.MediumMA.GreaterThan(x.LongMA)
		}},
		{PriceAboveShort, func(x model.Row) bool {
			return x.Price.GreaterThan(x.ShortMA)
		}},
	}

	switch r.Variant {
	case TrendTemplate:
		preds = append(preds,
			Predicate{PriceAboveLowThreshold, func(x model.Row) bool {
				return x.Price.GreaterThan(x.LowThreshold)
			}},
			Predicate{PriceAboveHighThreshold, func(x model.Row) bool {
				return x.Price.GreaterThan(x.HighThreshold)
			}},
		)
	case SuperMomentum:
		threshold := model.Defined(r.OscillatorThreshold)
		preds = append(preds,
			Predicate{PriceBelowLowThreshold, func(x model.Row) bool {
				return x.Price.LessThan(x.LowThreshold)
			}},
			Predicate{OscillatorConfirmed, func(x model.Row) bool {
				return x.OscillatorLag.AtLeast(threshold)
			}},
		)
	}

	return &ConditionSet{
		Variant: r.Variant,
		Layout: model.RowLayout{
			Short:       r.Short,
			Medium:      r.Medium,
			Long:        r.Long,
			TrendOffset: r.TrendOffset,
		},
		Predicates: preds,
	}, nil
}

// Names returns predicate names in order.
func (cs *ConditionSet) Names() []string {
	names := make([]string, len(cs.Predicates))
	for i, p := range cs.Predicates {
		names[i] = p.Name
	}
	return names
}

// Replace returns a copy of cs with the named predicate swapped for test.
func (cs *ConditionSet) Replace(name string, test func(model.Row) bool) (*ConditionSet, error) {
	out := &ConditionSet{Variant: cs.Variant, Layout: cs.Layout}
	found := false
	for _, p := range cs.Predicates {
		if p.Name == name {
			p.Test = test
			found = true
		}
		out.Predicates = append(out.Predicates, p)
	}
	if !found {
		return nil, fmt.Errorf("no predicate named %q", name)
	}
	return out, nil
}
