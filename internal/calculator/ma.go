package calculator

import (
	"errors"

	"MarketScreener/internal/model"

	"github.com/markcheno/go-talib"
)

// SMA returns the rolling simple moving average for every row. Rows
// before the window fills are undefined.
func SMA(prices []float64, period int) ([]model.Value, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	out := make([]model.Value, len(prices))
	if len(prices) < period {
		return out, nil
	}
	raw := talib.Sma(prices, period)
	for i := period - 1; i < len(prices); i++ {
		out[i] = model.Defined(raw[i])
	}
	return out, nil
}
