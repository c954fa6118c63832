package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"MarketScreener/internal/calendar"
	"MarketScreener/internal/model"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
)

// AlpacaFetcher implements Fetcher using the Alpaca market data API.
// Symbols containing "/" (e.g. BTC/USD) are fetched as crypto bars at
// CryptoTimeFrame; everything else as split/dividend adjusted stock bars.
type AlpacaFetcher struct {
	Client          *marketdata.Client
	StockTimeFrame  marketdata.TimeFrame
	CryptoTimeFrame marketdata.TimeFrame
	// BarsPerDay converts a crypto lookback in bars to a calendar window.
	BarsPerDay int
	Now        func() time.Time
}

// NewAlpacaFetcher creates a fetcher authenticated with the given keys.
func NewAlpacaFetcher(apiKey, apiSecret string, barsPerDay int) *AlpacaFetcher {
	if barsPerDay <= 0 {
		barsPerDay = 6
	}
	return &AlpacaFetcher{
		Client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    apiKey,
			APISecret: apiSecret,
		}),
		StockTimeFrame:  marketdata.OneDay,
		CryptoTimeFrame: marketdata.NewTimeFrame(24/barsPerDay, marketdata.Hour),
		BarsPerDay:      barsPerDay,
		Now:             time.Now,
	}
}

func (f *AlpacaFetcher) Name() string { return "alpaca" }

// FetchBars fetches bars for symbol. The SDK has no context support, so
// cancellation is checked before the call only.
func (f *AlpacaFetcher) FetchBars(ctx context.Context, symbol string, lookback int) (*model.BarSeries, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(symbol, err)
	}
	now := f.Now()
	var bars []model.Bar
	if strings.Contains(symbol, "/") {
		days := lookback/f.BarsPerDay + 1
		raw, err := f.Client.GetCryptoBars(symbol, marketdata.GetCryptoBarsRequest{
			TimeFrame: f.CryptoTimeFrame,
			Start:     now.AddDate(0, 0, -days),
			End:       now,
		})
		if err != nil {
			return nil, unavailable(symbol, fmt.Errorf("alpaca crypto bars: %w", err))
		}
		bars = make([]model.Bar, len(raw))
		for i, b := range raw {
			bars[i] = model.Bar{
				Time: b.Timestamp.UTC(), Open: b.Open, High: b.High, Low: b.Low,
				Close: b.Close, AdjClose: b.Close, Volume: float64(b.Volume),
			}
		}
	} else {
		raw, err := f.Client.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame:  f.StockTimeFrame,
			Adjustment: marketdata.Adjustment("all"),
			Start:      calendar.AddBusinessDays(now, -lookback),
			End:        now,
		})
		if err != nil {
			return nil, unavailable(symbol, fmt.Errorf("alpaca bars: %w", err))
		}
		bars = make([]model.Bar, len(raw))
		for i, b := range raw {
			// Adjusted request: Close already reflects splits and dividends.
			bars[i] = model.Bar{
				Time: b.Timestamp.UTC(), Open: b.Open, High: b.High, Low: b.Low,
				Close: b.Close, AdjClose: b.Close, Volume: float64(b.Volume),
			}
		}
	}

	bars = normalize(bars, lookback)
	if len(bars) == 0 {
		return nil, unavailable(symbol, fmt.Errorf("alpaca: no bars"))
	}
	return &model.BarSeries{Symbol: symbol, Bars: bars, FetchedAt: now}, nil
}
