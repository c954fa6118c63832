package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"MarketScreener/internal/model"
	"MarketScreener/internal/strategy"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_TrendTemplateDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	p := cfg.Params()
	if p.Field != model.FieldAdjClose || !reflect.DeepEqual(p.Windows, []int{50, 150, 200}) {
		t.Errorf("unexpected params %+v", p)
	}
	if p.RangeWindow != 261 || p.MarginLow != 0.30 || p.MarginHigh != 0.25 {
		t.Errorf("unexpected range params %+v", p)
	}
	r := cfg.Rules()
	if r.Variant != strategy.TrendTemplate || r.TrendOffset != 20 || r.Long != 200 {
		t.Errorf("unexpected rules %+v", r)
	}
	if cfg.Fetch.Provider != "yahoo" || cfg.Fetch.Lookback != 522 || cfg.RetryCount() != 2 {
		t.Errorf("unexpected fetch defaults %+v", cfg.Fetch)
	}
	if cfg.Fetch.Timeout.D() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Fetch.Timeout.D())
	}
	if cfg.Universe.ExcludeChars != "^" || !strings.HasSuffix(cfg.Universe.Source, "nasdaq.csv") {
		t.Errorf("unexpected universe defaults %+v", cfg.Universe)
	}
}

func TestLoad_SuperMomentumFromYAML(t *testing.T) {
	path := writeConfig(t, `
strategy:
  variant: super_momentum
  lookback_days: [2, 5]
screen:
  rate_limit_delay: 500ms
  workers: 4
fetch:
  retries: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !reflect.DeepEqual(cfg.Strategy.LookbackOffsets, []int{12, 30}) {
		t.Errorf("expected days converted with 6 bars/day, got %v", cfg.Strategy.LookbackOffsets)
	}
	r := cfg.Rules()
	if r.TrendOffset != 12 || r.OscillatorThreshold != 80 || r.Short != 15 {
		t.Errorf("unexpected rules %+v", r)
	}
	if cfg.Params().RangeWindow != 0 || cfg.Params().MarginHigh != 0.10 {
		t.Errorf("unexpected params %+v", cfg.Params())
	}
	if cfg.Screen.RateLimitDelay.D() != 500*time.Millisecond || cfg.Screen.Workers != 4 {
		t.Errorf("unexpected screen settings %+v", cfg.Screen)
	}
	if cfg.Screen.MaxSelections != 3 {
		t.Errorf("expected preset max selections 3, got %d", cfg.Screen.MaxSelections)
	}
	if cfg.RetryCount() != 0 {
		t.Errorf("explicit zero retries must be kept, got %d", cfg.RetryCount())
	}
	if cfg.Fetch.Provider != "coingecko" || len(cfg.Universe.ExcludeNames) != 1 {
		t.Errorf("unexpected crypto defaults %+v %+v", cfg.Fetch, cfg.Universe)
	}
}

func TestLoad_ZeroMarginsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "strategy:\n  margin_low: 0\n  margin_high: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	p := cfg.Params()
	if p.MarginLow != 0 || p.MarginHigh != 0 {
		t.Errorf("explicit zero margins must be kept, got low %.2f high %.2f", p.MarginLow, p.MarginHigh)
	}

	cfg, err = Load(writeConfig(t, "strategy:\n  margin_high: 0.05\n"))
	if err != nil {
		t.Fatal(err)
	}
	if p := cfg.Params(); p.MarginLow != 0.30 || p.MarginHigh != 0.05 {
		t.Errorf("expected preset low and configured high, got %+v", p)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCREENER_VARIANT", "super_momentum")
	t.Setenv("SCREENER_MAX_SELECTIONS", "7")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/screener?sslmode=disable")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load(writeConfig(t, "strategy:\n  variant: trend_template\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Strategy.Variant != "super_momentum" || cfg.Screen.MaxSelections != 7 {
		t.Errorf("env overrides not applied: %+v %+v", cfg.Strategy.Variant, cfg.Screen)
	}
	if cfg.Database.Driver != "postgres" || cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("unexpected database/redis %+v %+v", cfg.Database, cfg.Redis)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "screen:\n  rate_limit_delay: soon\n")); err == nil {
		t.Error("expected duration parse error")
	}
	if _, err := Load(writeConfig(t, "strategy: [")); err == nil {
		t.Error("expected yaml error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errSub string
	}{
		{"unknown variant", func(c *Config) { c.Strategy.Variant = "mean_reversion" }, "strategy.variant"},
		{"price field", func(c *Config) { c.Strategy.PriceField = "open" }, "price_field"},
		{"two windows", func(c *Config) { c.Strategy.WindowLengths = []int{10, 20} }, "window_lengths"},
		{"zero offset", func(c *Config) { c.Strategy.LookbackOffsets = []int{0} }, "lookback_offsets"},
		{"margin", func(c *Config) { v := 1.5; c.Strategy.MarginHigh = &v }, "margins"},
		{"workers", func(c *Config) { c.Screen.Workers = 0 }, "workers"},
		{"provider", func(c *Config) { c.Fetch.Provider = "bloomberg" }, "fetch.provider"},
		{"alpaca keys", func(c *Config) { c.Fetch.Provider = "alpaca" }, "alpaca.api_key"},
		{"postgres url", func(c *Config) { c.Database.Driver = "postgres"; c.Database.URL = "" }, "database.url"},
		{"export", func(c *Config) { c.Export.Format = "xlsx" }, "export.format"},
		{"telegram pair", func(c *Config) { c.Telegram.BotToken = "x" }, "telegram"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(filepath.Join(t.TempDir(), "none.yaml"))
			if err != nil {
				t.Fatal(err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("expected error containing %q, got %v", tt.errSub, err)
			}
		})
	}
}
