package calculator

import (
	"errors"
	"math"

	"MarketScreener/internal/model"
)

// Range scans the last window prices (the whole slice when window is zero
// or exceeds its length) and derives the proximity thresholds:
//
//	low  = min * (1 + marginLow)
//	high = max * (1 - marginHigh)
func Range(prices []float64, window int, marginLow, marginHigh float64) (model.RangeMetrics, error) {
	if len(prices) == 0 {
		return model.RangeMetrics{}, errors.New("no prices provided")
	}
	if window < 0 {
		return model.RangeMetrics{}, errors.New("window must not be negative")
	}
	n := len(prices)
	if window == 0 || window > n {
		window = n
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := n - window; i < n; i++ {
		if prices[i] > hi {
			hi = prices[i]
		}
		if prices[i] < lo {
			lo = prices[i]
		}
	}
	return model.RangeMetrics{
		Window:        window,
		Min:           lo,
		Max:           hi,
		LowThreshold:  lo * (1 + marginLow),
		HighThreshold: hi * (1 - marginHigh),
	}, nil
}

// Position returns where current sits within [low, high], clamped to 0..1.
func Position(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
