package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"MarketScreener/internal/model"
)

const coinGeckoBaseURL = "https://api.coingecko.com"

// CoinGeckoFetcher implements Fetcher using the CoinGecko OHLC endpoint.
// For a 3..30 day window CoinGecko returns 4-hour candles.
type CoinGeckoFetcher struct {
	BaseURL    string
	APIKey     string
	VsCurrency string
	Days       int
	Client     *http.Client
}

// NewCoinGeckoFetcher creates a new fetcher with optional proxy support.
func NewCoinGeckoFetcher(apiKey, vsCurrency string, days int, proxyURL string) *CoinGeckoFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if vsCurrency == "" {
		vsCurrency = "usd"
	}
	if days <= 0 {
		days = 30
	}
	return &CoinGeckoFetcher{
		BaseURL:    coinGeckoBaseURL,
		APIKey:     apiKey,
		VsCurrency: vsCurrency,
		Days:       days,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *CoinGeckoFetcher) Name() string { return "coingecko" }

// FetchBars fetches OHLC candles for a CoinGecko coin id. CoinGecko does
// not report volume or adjusted prices on this endpoint.
func (f *CoinGeckoFetcher) FetchBars(ctx context.Context, symbol string, lookback int) (*model.BarSeries, error) {
	endpoint := fmt.Sprintf("%s/api/v3/coins/%s/ohlc?vs_currency=%s&days=%d",
		f.BaseURL, url.PathEscape(symbol), url.QueryEscape(f.VsCurrency), f.Days)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, unavailable(symbol, err)
	}
	if f.APIKey != "" {
		req.Header.Set("x-cg-demo-api-key", f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, unavailable(symbol, fmt.Errorf("fetch ohlc: %w", err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, unavailable(symbol, fmt.Errorf("fetch ohlc: status %d, body: %s", resp.StatusCode, string(body)))
	}

	// Each candle is [epoch_ms, open, high, low, close].
	var rows [][]float64
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, unavailable(symbol, fmt.Errorf("decode ohlc: %w", err))
	}
	bars := make([]model.Bar, 0, len(rows))
	for _, r := range rows {
		if len(r) < 5 {
			continue
		}
		bars = append(bars, model.Bar{
			Time:     time.UnixMilli(int64(r[0])).UTC(),
			Open:     r[1],
			High:     r[2],
			Low:      r[3],
			Close:    r[4],
			AdjClose: r[4],
		})
	}
	bars = normalize(bars, lookback)
	if len(bars) == 0 {
		return nil, unavailable(symbol, fmt.Errorf("coingecko: no candles"))
	}
	return &model.BarSeries{Symbol: symbol, Bars: bars, FetchedAt: time.Now()}, nil
}
