package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"MarketScreener/internal/collector"
	"MarketScreener/internal/config"
	"MarketScreener/internal/exporter"
	"MarketScreener/internal/notifier"
	"MarketScreener/internal/ratelimit"
	"MarketScreener/internal/recorder"
	"MarketScreener/internal/scheduler"
	"MarketScreener/internal/screener"
	"MarketScreener/internal/server"
	"MarketScreener/internal/universe"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfgPath := flag.String("config", "configs/config.yaml", "path to the YAML config")
	once := flag.Bool("once", false, "run a single screening pass and exit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[WARN] load .env: %v", err)
	}
	log.Println("[INFO] MarketScreener starting...")

	// Load config
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		*cfgPath = v
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Init fetcher and rate limiting
	fetcher := newFetcher(cfg)
	log.Printf("[INFO] data source: %s, strategy: %s", fetcher.Name(), cfg.Strategy.Variant)

	gate := ratelimit.Chain{ratelimit.New(cfg.Screen.RateLimitDelay.D(), cfg.Screen.RateLimitJitter.D())}
	if cfg.Redis.Addr != "" {
		rg := ratelimit.NewRedisGate(redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}), cfg.Redis.Prefix, cfg.Screen.RateLimitDelay.D())
		defer rg.Close()
		gate = append(gate, rg)
		log.Printf("[INFO] shared rate limit gate on redis %s", cfg.Redis.Addr)
	}

	col := collector.NewCollector(fetcher, gate, collector.Options{
		Lookback:   cfg.Fetch.Lookback,
		MinHistory: cfg.Screen.MinHistoryLength,
		Timeout:    cfg.Fetch.Timeout.D(),
		Retries:    cfg.RetryCount(),
		Backoff:    cfg.Fetch.Backoff.D(),
	})

	sc, err := screener.New(screener.Config{
		Params:        cfg.Params(),
		Rules:         cfg.Rules(),
		MaxSelections: cfg.Screen.MaxSelections,
		MinHistory:    cfg.Screen.MinHistoryLength,
		Workers:       cfg.Screen.Workers,
		KeepBars:      cfg.Export.IncludeBars,
	}, col)
	if err != nil {
		log.Fatalf("[FATAL] init screener: %v", err)
	}

	// Init recorder
	rec := newRecorder(ctx, cfg)
	defer rec.Close()

	// Init Telegram notifier
	var tn *notifier.TelegramNotifier
	var sender scheduler.Sender
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		sender = tn
	}

	src := universe.Source{
		Location:           cfg.Universe.Source,
		Format:             cfg.Universe.Format,
		Column:             cfg.Universe.Column,
		Symbols:            cfg.Universe.Symbols,
		ExcludeSymbolChars: cfg.Universe.ExcludeChars,
		ExcludeNames:       cfg.Universe.ExcludeNames,
		Limit:              cfg.Universe.Limit,
	}
	loadUniverse := func(ctx context.Context) ([]string, error) {
		entries, err := universe.Load(ctx, src, proxyClient(cfg.Proxy))
		if err != nil {
			return nil, err
		}
		log.Printf("[INFO] universe loaded: %d symbols", len(entries))
		return universe.Keys(entries), nil
	}

	sched := scheduler.NewScheduler(ctx, sc, loadUniverse, rec, sender)
	if cfg.Export.Format != "none" {
		saver, err := exporter.New(cfg.Export.Format)
		if err != nil {
			log.Fatalf("[FATAL] init exporter: %v", err)
		}
		sched.Export = &scheduler.Export{Saver: saver, Dir: cfg.Export.Dir, IncludeBars: cfg.Export.IncludeBars}
	}

	if *once {
		run, err := sched.RunPass(ctx)
		if err != nil {
			log.Fatalf("[FATAL] screening pass: %v", err)
		}
		for i, res := range run.Selected {
			log.Printf("[INFO] %d. %s price=%.4f", i+1, res.Symbol, res.Snapshot.Price.V)
		}
		return
	}

	if err := sched.Register(cfg.Schedule.ScreenCron); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	var api *server.Server
	if cfg.Server.Addr != "" {
		api = server.New(ctx, cfg.Server.Addr, sched)
		go func() {
			if err := api.ListenAndServe(); err != nil {
				log.Printf("[ERROR] HTTP API: %v", err)
			}
		}()
	}

	// Optional: run immediately on start
	if cfg.Schedule.RunOnStart {
		log.Println("[INFO] run_on_start enabled, executing screening pass now")
		if err := sched.StartPass(ctx); err != nil {
			log.Printf("[WARN] start pass: %v", err)
		}
	}

	log.Println("[INFO] MarketScreener is running. Press Ctrl+C to stop.")
	<-ctx.Done()

	log.Println("[INFO] shutdown signal received, stopping...")
	if api != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		if err := api.Shutdown(sctx); err != nil {
			log.Printf("[WARN] HTTP shutdown: %v", err)
		}
	}
	log.Println("[INFO] MarketScreener stopped")
}

func newFetcher(cfg *config.Config) collector.Fetcher {
	switch cfg.Fetch.Provider {
	case "alpaca":
		return collector.NewAlpacaFetcher(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BarsPerDay)
	case "coingecko":
		return collector.NewCoinGeckoFetcher(cfg.CoinGecko.APIKey, cfg.CoinGecko.VsCurrency, cfg.CoinGecko.Days, cfg.Proxy)
	case "mock":
		return &collector.MockFetcher{Price: 100}
	default:
		return collector.NewYahooFetcher(cfg.Proxy)
	}
}

func newRecorder(ctx context.Context, cfg *config.Config) recorder.Recorder {
	switch cfg.Database.Driver {
	case "postgres":
		pr, err := recorder.NewPostgresRecorder(ctx, cfg.Database.URL)
		if err != nil {
			log.Printf("[WARN] init postgres recorder failed, using noop: %v", err)
			return recorder.NewNoopRecorder()
		}
		return pr
	case "sqlite":
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed, using noop: %v", err)
			return recorder.NewNoopRecorder()
		}
		return sr
	default:
		return recorder.NewNoopRecorder()
	}
}

func proxyClient(proxy string) *http.Client {
	transport := &http.Transport{}
	if proxy != "" {
		if u, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Timeout: 60 * time.Second, Transport: transport}
}
