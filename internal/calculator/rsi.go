package calculator

import (
	"errors"

	"MarketScreener/internal/model"
)

// RSI computes the Wilder-smoothed relative strength index for every row.
// The first defined row is index period; a window with no movement at all
// is undefined.
func RSI(prices []float64, period int) ([]model.Value, error) {
	if period <= 0 {
		return nil, errors.New("period must be positive")
	}
	out := make([]model.Value, len(prices))
	if len(prices) < period+1 {
		return out, nil
	}

	// Initial average gain/loss over the first `period` changes
	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) model.Value {
	if avgLoss == 0 {
		if avgGain == 0 {
			return model.Undefined()
		}
		return model.Defined(100)
	}
	rs := avgGain / avgLoss
	return model.Defined(100.0 - 100.0/(1.0+rs))
}
