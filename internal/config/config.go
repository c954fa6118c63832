package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"MarketScreener/internal/calculator"
	"MarketScreener/internal/model"
	"MarketScreener/internal/strategy"
)

// Duration is a time.Duration that unmarshals from "1.5s" style strings.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", n.Value, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) D() time.Duration { return time.Duration(d) }

// Config holds all application configuration.
type Config struct {
	Strategy struct {
		Variant             string  `yaml:"variant"`
		PriceField          string  `yaml:"price_field"`
		WindowLengths       []int   `yaml:"window_lengths"`
		OscillatorLength    int     `yaml:"oscillator_length"`
		OscillatorThreshold float64 `yaml:"oscillator_threshold"`
		// LookbackOffsets are bar counts; the first one is the trend offset.
		LookbackOffsets []int `yaml:"lookback_offsets"`
		// LookbackDays is converted with BarsPerDay when LookbackOffsets is empty.
		LookbackDays []int    `yaml:"lookback_days"`
		BarsPerDay   int      `yaml:"bars_per_day"`
		RangeWindow  int      `yaml:"range_window"`
		MarginLow    *float64 `yaml:"margin_low"`
		MarginHigh   *float64 `yaml:"margin_high"`
	} `yaml:"strategy"`
	Screen struct {
		MaxSelections    int      `yaml:"max_selections"`
		MinHistoryLength int      `yaml:"min_history_length"`
		RateLimitDelay   Duration `yaml:"rate_limit_delay"`
		RateLimitJitter  Duration `yaml:"rate_limit_jitter"`
		Workers          int      `yaml:"workers"`
	} `yaml:"screen"`
	Fetch struct {
		Provider string   `yaml:"provider"`
		Lookback int      `yaml:"lookback"`
		Timeout  Duration `yaml:"timeout"`
		Retries  *int     `yaml:"retries"`
		Backoff  Duration `yaml:"backoff"`
	} `yaml:"fetch"`
	Universe struct {
		Source       string   `yaml:"source"`
		Format       string   `yaml:"format"`
		Column       string   `yaml:"column"`
		Symbols      []string `yaml:"symbols"`
		ExcludeChars string   `yaml:"exclude_chars"`
		ExcludeNames []string `yaml:"exclude_names"`
		Limit        int      `yaml:"limit"`
	} `yaml:"universe"`
	Schedule struct {
		ScreenCron string `yaml:"screen_cron"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Database struct {
		Driver     string `yaml:"driver"`
		SQLitePath string `yaml:"sqlite_path"`
		URL        string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
	Alpaca struct {
		APIKey     string `yaml:"api_key"`
		APISecret  string `yaml:"api_secret"`
		BarsPerDay int    `yaml:"bars_per_day"`
	} `yaml:"alpaca"`
	CoinGecko struct {
		APIKey     string `yaml:"api_key"`
		VsCurrency string `yaml:"vs_currency"`
		Days       int    `yaml:"days"`
	} `yaml:"coingecko"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Export struct {
		Format      string `yaml:"format"`
		Dir         string `yaml:"dir"`
		IncludeBars bool   `yaml:"include_bars"`
	} `yaml:"export"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and the defaults of the selected strategy variant.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	str := map[string]*string{
		"SCREENER_VARIANT":   &c.Strategy.Variant,
		"SCREENER_PROVIDER":  &c.Fetch.Provider,
		"SCREENER_UNIVERSE":  &c.Universe.Source,
		"SCREENER_CRON":      &c.Schedule.ScreenCron,
		"SCREENER_ADDR":      &c.Server.Addr,
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_CHAT_ID":   &c.Telegram.ChatID,
		"ALPACA_API_KEY":     &c.Alpaca.APIKey,
		"ALPACA_API_SECRET":  &c.Alpaca.APISecret,
		"COINGECKO_API_KEY":  &c.CoinGecko.APIKey,
		"REDIS_ADDR":         &c.Redis.Addr,
		"REDIS_PASSWORD":     &c.Redis.Password,
		"DATABASE_URL":       &c.Database.URL,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"HTTPS_PROXY":        &c.Proxy,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("SCREENER_MAX_SELECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Screen.MaxSelections = n
		}
	}
	if v := os.Getenv("SCREENER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Screen.Workers = n
		}
	}
	if v := os.Getenv("SCREENER_RATE_LIMIT_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Screen.RateLimitDelay = Duration(d)
		}
	}
	if os.Getenv("RUN_ON_START") == "true" {
		c.Schedule.RunOnStart = true
	}
	if c.Database.URL != "" && c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
}

// preset holds the per-variant defaults.
type preset struct {
	field        model.PriceField
	windows      []int
	oscLength    int
	oscThreshold float64
	offsets      []int
	barsPerDay   int
	rangeWindow  int
	marginLow    float64
	marginHigh   float64
	lookback     int
	minHistory   int
	maxSel       int
	delay        time.Duration
	jitter       time.Duration
	provider     string
}

var presets = map[strategy.Variant]preset{
	strategy.TrendTemplate: {
		field:        model.FieldAdjClose,
		windows:      []int{50, 150, 200},
		oscLength:    14,
		oscThreshold: 70,
		offsets:      []int{20},
		barsPerDay:   1,
		rangeWindow:  261,
		marginLow:    0.30,
		marginHigh:   0.25,
		lookback:     522,
		minHistory:   261,
		jitter:       time.Second,
		provider:     "yahoo",
	},
	strategy.SuperMomentum: {
		field:        model.FieldClose,
		windows:      []int{15, 40, 60},
		oscLength:    14,
		oscThreshold: 80,
		offsets:      []int{12, 30},
		barsPerDay:   6,
		marginLow:    0.30,
		marginHigh:   0.10,
		lookback:     180,
		minHistory:   30,
		maxSel:       3,
		delay:        1300 * time.Millisecond,
		provider:     "coingecko",
	},
}

func (c *Config) applyDefaults() {
	if c.Strategy.Variant == "" {
		c.Strategy.Variant = string(strategy.TrendTemplate)
	}
	p, ok := presets[strategy.Variant(c.Strategy.Variant)]
	if !ok {
		return // reported by Validate
	}

	s := &c.Strategy
	if s.PriceField == "" {
		s.PriceField = string(p.field)
	}
	if len(s.WindowLengths) == 0 {
		s.WindowLengths = append([]int(nil), p.windows...)
	}
	if s.OscillatorLength == 0 {
		s.OscillatorLength = p.oscLength
	}
	if s.OscillatorThreshold == 0 {
		s.OscillatorThreshold = p.oscThreshold
	}
	if s.BarsPerDay == 0 {
		s.BarsPerDay = p.barsPerDay
	}
	if len(s.LookbackOffsets) == 0 {
		if len(s.LookbackDays) > 0 {
			for _, d := range s.LookbackDays {
				s.LookbackOffsets = append(s.LookbackOffsets, d*s.BarsPerDay)
			}
		} else {
			s.LookbackOffsets = append([]int(nil), p.offsets...)
		}
	}
	if s.RangeWindow == 0 {
		s.RangeWindow = p.rangeWindow
	}
	if s.MarginLow == nil {
		v := p.marginLow
		s.MarginLow = &v
	}
	if s.MarginHigh == nil {
		v := p.marginHigh
		s.MarginHigh = &v
	}

	if c.Screen.MaxSelections == 0 {
		c.Screen.MaxSelections = p.maxSel
	}
	if c.Screen.MinHistoryLength == 0 {
		c.Screen.MinHistoryLength = p.minHistory
	}
	if c.Screen.RateLimitDelay == 0 {
		c.Screen.RateLimitDelay = Duration(p.delay)
	}
	if c.Screen.RateLimitJitter == 0 {
		c.Screen.RateLimitJitter = Duration(p.jitter)
	}
	if c.Screen.Workers == 0 {
		c.Screen.Workers = 1
	}

	if c.Fetch.Provider == "" {
		c.Fetch.Provider = p.provider
	}
	if c.Fetch.Lookback == 0 {
		c.Fetch.Lookback = p.lookback
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = Duration(30 * time.Second)
	}
	if c.Fetch.Retries == nil {
		n := 2
		c.Fetch.Retries = &n
	}
	if c.Fetch.Backoff == 0 {
		c.Fetch.Backoff = Duration(time.Second)
	}

	if c.Universe.Source == "" && len(c.Universe.Symbols) == 0 {
		if strategy.Variant(c.Strategy.Variant) == strategy.SuperMomentum {
			c.Universe.Source = "https://raw.githubusercontent.com/justmobiledev/python-algorithmic-trading/main/data/coingecko-list.json"
			c.Universe.ExcludeNames = append(c.Universe.ExcludeNames, "RealT")
		} else {
			c.Universe.Source = "https://raw.githubusercontent.com/justmobiledev/python-algorithmic-trading/main/data/nasdaq.csv"
		}
	}
	if c.Universe.ExcludeChars == "" {
		c.Universe.ExcludeChars = "^"
	}

	if c.Schedule.ScreenCron == "" {
		c.Schedule.ScreenCron = "0 30 16 * * 1-5"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/market_screener.db"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "screener"
	}
	if c.Alpaca.BarsPerDay == 0 {
		c.Alpaca.BarsPerDay = c.Strategy.BarsPerDay
	}
	if c.CoinGecko.VsCurrency == "" {
		c.CoinGecko.VsCurrency = "usd"
	}
	if c.CoinGecko.Days == 0 {
		c.CoinGecko.Days = 30
	}
	if c.Export.Format == "" {
		c.Export.Format = "csv"
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "data/exports"
	}
}

// Validate checks that all required fields are set and consistent.
func (c *Config) Validate() error {
	v := strategy.Variant(c.Strategy.Variant)
	if !v.Valid() {
		return fmt.Errorf("strategy.variant must be %q or %q, got %q", strategy.TrendTemplate, strategy.SuperMomentum, c.Strategy.Variant)
	}
	switch model.PriceField(c.Strategy.PriceField) {
	case model.FieldClose, model.FieldAdjClose:
	default:
		return fmt.Errorf("strategy.price_field must be close or adjusted_close, got %q", c.Strategy.PriceField)
	}
	if len(c.Strategy.WindowLengths) != 3 {
		return fmt.Errorf("strategy.window_lengths needs short, medium and long windows, got %v", c.Strategy.WindowLengths)
	}
	if len(c.Strategy.LookbackOffsets) == 0 || c.Strategy.LookbackOffsets[0] <= 0 {
		return fmt.Errorf("strategy.lookback_offsets must start with a positive bar count, got %v", c.Strategy.LookbackOffsets)
	}
	if c.Strategy.OscillatorLength < 1 {
		return fmt.Errorf("strategy.oscillator_length must be positive")
	}
	if c.Strategy.RangeWindow < 0 {
		return fmt.Errorf("strategy.range_window must not be negative")
	}
	lo, hi := deref(c.Strategy.MarginLow), deref(c.Strategy.MarginHigh)
	if lo < 0 || hi < 0 || hi >= 1 {
		return fmt.Errorf("strategy margins out of range: low %.2f high %.2f", lo, hi)
	}
	if c.Screen.MaxSelections < 0 {
		return fmt.Errorf("screen.max_selections must not be negative")
	}
	if c.Screen.Workers < 1 {
		return fmt.Errorf("screen.workers must be at least 1")
	}
	if c.Fetch.Retries != nil && *c.Fetch.Retries < 0 {
		return fmt.Errorf("fetch.retries must not be negative")
	}
	switch c.Fetch.Provider {
	case "yahoo", "coingecko", "mock":
	case "alpaca":
		if c.Alpaca.APIKey == "" || c.Alpaca.APISecret == "" {
			return fmt.Errorf("alpaca.api_key and alpaca.api_secret are required for the alpaca provider")
		}
	default:
		return fmt.Errorf("fetch.provider must be yahoo, alpaca, coingecko or mock, got %q", c.Fetch.Provider)
	}
	switch c.Database.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite, postgres or none, got %q", c.Database.Driver)
	}
	switch strings.ToLower(c.Export.Format) {
	case "csv", "json", "parquet", "none":
	default:
		return fmt.Errorf("export.format must be csv, json, parquet or none, got %q", c.Export.Format)
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// Params returns the indicator engine parameters.
func (c *Config) Params() calculator.Params {
	return calculator.Params{
		Field:            model.PriceField(c.Strategy.PriceField),
		Windows:          append([]int(nil), c.Strategy.WindowLengths...),
		OscillatorLength: c.Strategy.OscillatorLength,
		LookbackOffsets:  append([]int(nil), c.Strategy.LookbackOffsets...),
		RangeWindow:      c.Strategy.RangeWindow,
		MarginLow:        deref(c.Strategy.MarginLow),
		MarginHigh:       deref(c.Strategy.MarginHigh),
	}
}

// Rules returns the condition set constants. Windows are taken in
// ascending order; the first lookback offset is the trend offset.
func (c *Config) Rules() strategy.Rules {
	w := append([]int(nil), c.Strategy.WindowLengths...)
	sort.Ints(w)
	r := strategy.Rules{
		Variant:             strategy.Variant(c.Strategy.Variant),
		OscillatorThreshold: c.Strategy.OscillatorThreshold,
	}
	if len(w) == 3 {
		r.Short, r.Medium, r.Long = w[0], w[1], w[2]
	}
	if len(c.Strategy.LookbackOffsets) > 0 {
		r.TrendOffset = c.Strategy.LookbackOffsets[0]
	}
	return r
}

// RetryCount returns fetch.retries with the default applied.
func (c *Config) RetryCount() int {
	if c.Fetch.Retries == nil {
		return 2
	}
	return *c.Fetch.Retries
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
