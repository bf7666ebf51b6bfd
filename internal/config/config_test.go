package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"example.com/binance-pattern-signals/internal/pattern"
)

func TestLoad(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "config.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "pattern-test" || cfg.App.LogLevel != "debug" {
		t.Fatalf("unexpected app: %+v", cfg.App)
	}
	if cfg.Server.Addr != ":9090" {
		t.Fatalf("unexpected Server.Addr: %s", cfg.Server.Addr)
	}
	if len(cfg.Scan.Symbols) != 2 || cfg.Scan.Symbols[1] != (Symbol{Symbol: "ETHUSDT", Interval: "1h"}) {
		t.Fatalf("unexpected symbols: %+v", cfg.Scan.Symbols)
	}
	if cfg.Scan.Limit != 200 || cfg.Scan.Every != time.Hour || cfg.Scan.Delay != 10*time.Second {
		t.Fatalf("unexpected schedule: %+v", cfg.Scan)
	}
	if len(cfg.Scan.Shapes) != 2 || cfg.Scan.Shapes[1] != "doji_star" {
		t.Fatalf("unexpected shapes: %+v", cfg.Scan.Shapes)
	}
	if cfg.Detector.Length != 7 || cfg.Detector.TPMult != 2 || cfg.Detector.Mode != pattern.ModeLong {
		t.Fatalf("unexpected detector: %+v", cfg.Detector)
	}
	// Omitted keys keep their defaults.
	if cfg.Detector.RSIPeriod != 14 || cfg.Detector.PricePrecision != 8 {
		t.Fatalf("detector defaults lost: %+v", cfg.Detector)
	}
	if cfg.Binance.BaseURL != "https://api.binance.com" {
		t.Fatalf("unexpected Binance.BaseURL: %s", cfg.Binance.BaseURL)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.CacheTTL != 30*time.Second {
		t.Fatalf("unexpected redis: %+v", cfg.Redis)
	}
	if !cfg.Review.UseSiliconFlow || cfg.Review.OpenAIModel != "gpt-4o-mini" {
		t.Fatalf("unexpected review: %+v", cfg.Review)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join("testdata", "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDefaultValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Scan.Symbols) != 5 || cfg.Scan.Symbols[0].Interval != "15m" {
		t.Fatalf("unexpected default symbols: %+v", cfg.Scan.Symbols)
	}
	if cfg.Scan.MinSignalDistance != 10 || cfg.Detector.MinSignalDistance != 5 {
		t.Errorf("cooldowns = %d/%d, want 10 for the latest-breakout check and 5 for full scans",
			cfg.Scan.MinSignalDistance, cfg.Detector.MinSignalDistance)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		target error
	}{
		{"no symbols", func(c *Config) { c.Scan.Symbols = nil }, ErrInvalid},
		{"blank interval", func(c *Config) { c.Scan.Symbols[0].Interval = "" }, ErrInvalid},
		{"short limit", func(c *Config) { c.Scan.Limit = 1 }, ErrInvalid},
		{"delay past boundary", func(c *Config) { c.Scan.Delay = c.Scan.Every }, ErrInvalid},
		{"unknown shape", func(c *Config) { c.Scan.Shapes = []string{"rocket"} }, pattern.ErrUnknownPattern},
		{"bad detector", func(c *Config) { c.Detector.Length = 0 }, pattern.ErrInvalidConfig},
		{"no breakout cooldown", func(c *Config) { c.Scan.MinSignalDistance = 0 }, ErrInvalid},
		{"monthly stream", func(c *Config) { c.Stream.Enabled = true; c.Stream.Interval = "1M" }, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.target) {
				t.Fatalf("Validate() = %v, want %v", err, tt.target)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("CHAT_ID", "42")
	t.Setenv("USE_SILICONFLOW", "yes")
	t.Setenv("SCAN_EVERY", "5")
	t.Setenv("KLINE_LIMIT", "not-a-number")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.Notify.Telegram.BotToken != "123:abc" || cfg.Notify.Telegram.ChatID != "42" {
		t.Fatalf("unexpected telegram: %+v", cfg.Notify.Telegram)
	}
	if !cfg.Review.UseSiliconFlow {
		t.Fatal("expected USE_SILICONFLOW to enable siliconflow")
	}
	if cfg.Scan.Every != 5*time.Minute {
		t.Fatalf("SCAN_EVERY = %v, want 5m", cfg.Scan.Every)
	}
	if cfg.Scan.Limit != 120 {
		t.Fatalf("invalid KLINE_LIMIT changed limit to %d", cfg.Scan.Limit)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := LoadDotEnv(filepath.Join(dir, ".env")); err != nil {
		t.Fatalf("missing .env should be ignored, got %v", err)
	}

	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("PATTERN_DOTENV_TEST=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATTERN_DOTENV_TEST", "")
	os.Unsetenv("PATTERN_DOTENV_TEST")
	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("PATTERN_DOTENV_TEST"); got != "loaded" {
		t.Fatalf("PATTERN_DOTENV_TEST = %q, want loaded", got)
	}
}
