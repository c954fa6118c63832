package collector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"MarketScreener/internal/model"
)

type flakyFetcher struct {
	failures int32
	calls    int32
	bars     []model.Bar
}

func (f *flakyFetcher) Name() string { return "flaky" }

func (f *flakyFetcher) FetchBars(_ context.Context, symbol string, _ int) (*model.BarSeries, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= f.failures {
		return nil, errors.New("connection reset")
	}
	return &model.BarSeries{Symbol: symbol, Bars: f.bars}, nil
}

type countingThrottler struct{ waits int32 }

func (c *countingThrottler) Wait(context.Context) error {
	atomic.AddInt32(&c.waits, 1)
	return nil
}

func TestCollector_RetriesUnavailable(t *testing.T) {
	f := &flakyFetcher{failures: 2, bars: TrendBars(100, 1, 30)}
	th := &countingThrottler{}
	c := NewCollector(f, th, Options{Lookback: 30, MinHistory: 20, Retries: 2, Backoff: time.Millisecond})

	series, err := c.Fetch(context.Background(), "AAA")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if series.Len() != 30 {
		t.Errorf("expected 30 bars, got %d", series.Len())
	}
	if f.calls != 3 || th.waits != 3 {
		t.Errorf("expected 3 fetches and 3 throttle waits, got %d/%d", f.calls, th.waits)
	}
}

func TestCollector_GivesUpAfterRetries(t *testing.T) {
	f := &flakyFetcher{failures: 10}
	c := NewCollector(f, nil, Options{Retries: 1, Backoff: time.Millisecond})

	_, err := c.Fetch(context.Background(), "AAA")
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Symbol != "AAA" {
		t.Errorf("expected FetchError for AAA, got %#v", err)
	}
	if !strings.Contains(err.Error(), "connection reset") {
		t.Errorf("expected cause preserved, got %q", err.Error())
	}
	if f.calls != 2 {
		t.Errorf("expected 2 attempts, got %d", f.calls)
	}
}

func TestCollector_InsufficientHistory(t *testing.T) {
	m := &MockFetcher{Series: map[string][]model.Bar{"SHORT": TrendBars(10, 1, 5)}}
	c := NewCollector(m, nil, Options{Lookback: 50, MinHistory: 20})

	_, err := c.Fetch(context.Background(), "SHORT")
	if !errors.Is(err, ErrInsufficientHistory) {
		t.Fatalf("expected ErrInsufficientHistory, got %v", err)
	}
	if m.Calls("SHORT") != 1 {
		t.Errorf("insufficient history must not be retried, got %d calls", m.Calls("SHORT"))
	}
}

func TestCollector_TimeoutBecomesUnavailable(t *testing.T) {
	m := &MockFetcher{Price: 100, Delay: 200 * time.Millisecond}
	c := NewCollector(m, nil, Options{Lookback: 10, Timeout: 10 * time.Millisecond})

	_, err := c.Fetch(context.Background(), "SLOW")
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable on timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline cause to be preserved, got %v", err)
	}
}

func TestCollector_RejectsInvalidSeries(t *testing.T) {
	bars := TrendBars(10, 1, 3)
	bars[2].Volume = -1
	f := &flakyFetcher{bars: bars}
	c := NewCollector(f, nil, Options{})

	if _, err := c.Fetch(context.Background(), "BAD"); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable for invalid series, got %v", err)
	}
}

func TestNormalize_SortsDedupesAndTrims(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := []model.Bar{
		{Time: t0.AddDate(0, 0, 2), Close: 3},
		{Time: t0, Close: 1},
		{Time: t0.AddDate(0, 0, 1), Close: 2},
		{Time: t0.AddDate(0, 0, 2), Close: 4},
	}
	got := normalize(bars, 2)
	if len(got) != 2 || got[0].Close != 2 || got[1].Close != 4 {
		t.Errorf("unexpected normalized bars: %+v", got)
	}
}

const yahooBody = `{"chart":{"result":[{"timestamp":[1704240000,1704326400,1704412800],
"indicators":{"quote":[{"open":[10,11,null],"high":[10.5,11.5,null],"low":[9.5,10.5,null],"close":[10.2,11.2,null],"volume":[100,200,null]}],
"adjclose":[{"adjclose":[10.1,11.1,null]}]}}],"error":null}}`

func TestYahooFetcher_ParsesChart(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(yahooBody))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	f.Now = func() time.Time { return time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC) }

	series, err := f.FetchBars(context.Background(), "SPX", 10)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/v8/finance/chart/^GSPC" {
		t.Errorf("expected mapped symbol in path, got %q", gotPath)
	}
	if series.Len() != 2 {
		t.Fatalf("expected null bar skipped, got %d bars", series.Len())
	}
	b := series.Bars[1]
	if b.Close != 11.2 || b.AdjClose != 11.1 || b.Volume != 200 {
		t.Errorf("unexpected bar: %+v", b)
	}
	if err := series.Validate(); err != nil {
		t.Errorf("expected valid series: %v", err)
	}
}

func TestYahooFetcher_NullCloseDropsBar(t *testing.T) {
	body := `{"chart":{"result":[{"timestamp":[1704240000,1704326400,1704412800],
"indicators":{"quote":[{"open":[10,11,12],"high":[10.5,11.5,12.5],"low":[9.5,10.5,11.5],"close":[10.2,11.2,null],"volume":[100,200,300]}],
"adjclose":[{"adjclose":[null,11.1,12.1]}]}}],"error":null}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	f.Now = func() time.Time { return time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC) }
	c := NewCollector(f, nil, Options{Lookback: 10, MinHistory: 1})

	series, err := c.Fetch(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if series.Len() != 2 {
		t.Fatalf("expected bar with null close dropped, got %d bars", series.Len())
	}
	for i, b := range series.Bars {
		if b.Close == 0 || b.AdjClose == 0 {
			t.Errorf("bar %d carries a zero price: %+v", i, b)
		}
	}
	if series.Bars[0].AdjClose != 10.2 {
		t.Errorf("expected null adjclose to fall back to close, got %.2f", series.Bars[0].AdjClose)
	}
	if series.Bars[1].AdjClose != 11.1 {
		t.Errorf("expected adjclose kept, got %.2f", series.Bars[1].AdjClose)
	}
}

func TestYahooFetcher_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found, symbol may be delisted"}}}`))
	}))
	defer srv.Close()

	f := NewYahooFetcher("")
	f.BaseURL = srv.URL
	_, err := f.FetchBars(context.Background(), "ZZZZ", 10)
	if !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
	if !strings.Contains(err.Error(), "delisted") {
		t.Errorf("expected provider message in error, got %q", err.Error())
	}
}

func TestCoinGeckoFetcher_ParsesOHLC(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.URL.Path != "/api/v3/coins/bitcoin/ohlc" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`[[1704067200000,42000,42500,41800,42300],[1704081600000,42300,42800,42100,42600]]`))
	}))
	defer srv.Close()

	f := NewCoinGeckoFetcher("", "usd", 30, "")
	f.BaseURL = srv.URL
	series, err := f.FetchBars(context.Background(), "bitcoin", 180)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotQuery != "vs_currency=usd&days=30" {
		t.Errorf("unexpected query %q", gotQuery)
	}
	if series.Len() != 2 || series.Bars[1].Close != 42600 || series.Bars[1].AdjClose != 42600 {
		t.Errorf("unexpected series: %+v", series.Bars)
	}

	if _, err := f.FetchBars(context.Background(), "unknown-coin", 180); !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("expected ErrDataUnavailable for 404, got %v", err)
	}
}
