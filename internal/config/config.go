// Package config loads the YAML configuration, the optional .env file and the
// environment overrides used for secrets.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"example.com/binance-pattern-signals/internal/binance"
	"example.com/binance-pattern-signals/internal/pattern"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("config: invalid")

// App holds process-wide settings.
type App struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// Server configures the HTTP API.
type Server struct {
	Addr           string `yaml:"addr"`
	AllowedOrigins string `yaml:"allowed_origins"` // comma separated, "*" allows all
}

// Binance configures market data access.
type Binance struct {
	BaseURL   string        `yaml:"base_url"`
	StreamURL string        `yaml:"stream_url"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Symbol is one monitored market.
type Symbol struct {
	Symbol   string `yaml:"symbol"`
	Interval string `yaml:"interval"`
}

// Scan configures the scheduled scan pipeline.
type Scan struct {
	Symbols  []Symbol      `yaml:"symbols"`
	Limit    int           `yaml:"limit"`
	Every    time.Duration `yaml:"every"`
	Delay    time.Duration `yaml:"delay"` // wait after each boundary so the candle is final
	Workers  int           `yaml:"workers"`
	Shapes   []string      `yaml:"shapes"`
	Breakout bool          `yaml:"breakout"`
	Confirm  bool          `yaml:"confirm"` // run the filter pipeline on breakouts
	Review   bool          `yaml:"review"`

	MinSignalDistance int `yaml:"min_signal_distance"` // cooldown of the latest-breakout check
}

// Redis configures the optional cache and alert de-duplication.
type Redis struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
	DedupTTL  time.Duration `yaml:"dedup_ttl"`
	Namespace string        `yaml:"namespace"`
}

// Telegram configures the Telegram bot notifier.
type Telegram struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

// Discord configures the Discord webhook notifier.
type Discord struct {
	WebhookURL string `yaml:"webhook_url"`
}

// Notify groups the notifier settings.
type Notify struct {
	Telegram Telegram      `yaml:"telegram"`
	Discord  Discord       `yaml:"discord"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Review configures the LLM reviewers. Providers are tried in the order
// siliconflow (when enabled), openai, gemini.
type Review struct {
	UseSiliconFlow   bool          `yaml:"use_siliconflow"`
	SiliconFlowKey   string        `yaml:"siliconflow_api_key"`
	SiliconFlowModel string        `yaml:"siliconflow_model"`
	OpenAIKey        string        `yaml:"openai_api_key"`
	OpenAIModel      string        `yaml:"openai_model"`
	GeminiKey        string        `yaml:"gemini_api_key"`
	GeminiModel      string        `yaml:"gemini_model"`
	Candles          int           `yaml:"candles"`
	Timeout          time.Duration `yaml:"timeout"`
}

// Stream configures the websocket kline stream mode.
type Stream struct {
	Enabled  bool   `yaml:"enabled"`
	Interval string `yaml:"interval"`
	History  int    `yaml:"history"`
}

// Config collects every configuration leaf.
type Config struct {
	App      App                    `yaml:"app"`
	Server   Server                 `yaml:"server"`
	Binance  Binance                `yaml:"binance"`
	Scan     Scan                   `yaml:"scan"`
	Detector pattern.DetectorConfig `yaml:"detector"`
	Redis    Redis                  `yaml:"redis"`
	Notify   Notify                 `yaml:"notify"`
	Review   Review                 `yaml:"review"`
	Stream   Stream                 `yaml:"stream"`
}

// DefaultSymbols are the markets monitored out of the box.
var DefaultSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOGEUSDT", "XRPUSDT"}

// Default returns the built-in configuration.
func Default() *Config {
	symbols := make([]Symbol, len(DefaultSymbols))
	for i, s := range DefaultSymbols {
		symbols[i] = Symbol{Symbol: s, Interval: "15m"}
	}
	return &Config{
		App:    App{Name: "binance-pattern-signals", LogLevel: "info"},
		Server: Server{Addr: ":8080", AllowedOrigins: "*"},
		Binance: Binance{
			BaseURL:   "https://api.binance.com",
			StreamURL: "wss://stream.binance.com:9443/stream",
			Timeout:   10 * time.Second,
		},
		Scan: Scan{
			Symbols:  symbols,
			Limit:    120,
			Every:    15 * time.Minute,
			Delay:    5 * time.Second,
			Workers:  4,
			Shapes:   []string{"hammer", "inverted_hammer", "bearish_engulfing", "bullish_engulfing"},
			Breakout: true,
			Confirm:  false,
			Review:   true,

			MinSignalDistance: 10,
		},
		Detector: pattern.DefaultDetectorConfig(),
		Redis: Redis{
			CacheTTL:  time.Minute,
			DedupTTL:  24 * time.Hour,
			Namespace: "patterns",
		},
		Notify: Notify{Timeout: 10 * time.Second},
		Review: Review{
			SiliconFlowModel: "Qwen/Qwen2.5-72B-Instruct",
			OpenAIModel:      "gpt-4o-mini",
			GeminiModel:      "gemini-2.5-flash",
			Candles:          120,
			Timeout:          60 * time.Second,
		},
		Stream: Stream{Interval: "15m", History: 120},
	}
}

// Load reads a YAML file from disk over the defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := Default()
	if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file into the process environment. A missing file
// is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load dotenv: %w", err)
	}
	return nil
}

// ApplyEnv overrides secrets and a few operational knobs from the environment.
func (c *Config) ApplyEnv() {
	c.App.LogLevel = getEnvString("LOG_LEVEL", c.App.LogLevel)
	c.Server.Addr = getEnvString("HTTP_ADDR", c.Server.Addr)
	c.Binance.BaseURL = getEnvString("BINANCE_REST", c.Binance.BaseURL)

	c.Redis.Addr = getEnvString("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnvString("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.CacheTTL = getEnvDuration("REDIS_CACHE_TTL", c.Redis.CacheTTL)

	c.Notify.Telegram.BotToken = getEnvString("BOT_TOKEN", c.Notify.Telegram.BotToken)
	c.Notify.Telegram.ChatID = getEnvString("CHAT_ID", c.Notify.Telegram.ChatID)
	c.Notify.Discord.WebhookURL = getEnvString("DISCORD_WEBHOOK_URL", c.Notify.Discord.WebhookURL)

	c.Review.UseSiliconFlow = getEnvBool("USE_SILICONFLOW", c.Review.UseSiliconFlow)
	c.Review.SiliconFlowKey = getEnvString("SILICONFLOW_API_KEY", c.Review.SiliconFlowKey)
	c.Review.OpenAIKey = getEnvString("OPENAI_API_KEY", c.Review.OpenAIKey)
	c.Review.GeminiKey = getEnvString("GEMINI_API_KEY", c.Review.GeminiKey)

	c.Scan.Limit = getEnvInt("KLINE_LIMIT", c.Scan.Limit)
	c.Scan.Every = getEnvDuration("SCAN_EVERY", c.Scan.Every)
	c.Stream.Enabled = getEnvBool("STREAM_ENABLED", c.Stream.Enabled)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.Scan.Symbols) == 0 {
		return fmt.Errorf("%w: scan.symbols is empty", ErrInvalid)
	}
	for i, s := range c.Scan.Symbols {
		if s.Symbol == "" || s.Interval == "" {
			return fmt.Errorf("%w: scan.symbols[%d] needs symbol and interval", ErrInvalid, i)
		}
	}
	if c.Scan.Limit < 2 {
		return fmt.Errorf("%w: scan.limit must be >= 2, got %d", ErrInvalid, c.Scan.Limit)
	}
	if c.Scan.Every <= 0 {
		return fmt.Errorf("%w: scan.every must be positive", ErrInvalid)
	}
	if c.Scan.MinSignalDistance < 1 {
		return fmt.Errorf("%w: scan.min_signal_distance must be >= 1", ErrInvalid)
	}
	if c.Scan.Delay < 0 || c.Scan.Delay >= c.Scan.Every {
		return fmt.Errorf("%w: scan.delay must be in [0, every)", ErrInvalid)
	}
	names := make(map[string]bool)
	for _, n := range pattern.ShapeNames() {
		names[n] = true
	}
	for _, s := range c.Scan.Shapes {
		if !names[s] {
			return fmt.Errorf("%w: scan.shapes: %w: %q", ErrInvalid, pattern.ErrUnknownPattern, s)
		}
	}
	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector: %w", err)
	}
	if c.Stream.Enabled && c.Stream.History < 2 {
		return fmt.Errorf("%w: stream.history must be >= 2", ErrInvalid)
	}
	if c.Stream.Enabled {
		if _, err := binance.IntervalDuration(c.Stream.Interval); err != nil {
			return fmt.Errorf("%w: stream.interval: %v", ErrInvalid, err)
		}
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvBool reads a boolean from environment variable.
func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	v = strings.ToLower(v)
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

// getEnvInt reads an integer from environment variable.
func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if i, err := strconv.Atoi(v); err == nil {
		return i
	}
	return defaultVal
}

// getEnvDuration reads a duration from environment variable.
// Supports both "5m" format and plain number "5" (interpreted as minutes).
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if mins, err := strconv.Atoi(v); err == nil && mins > 0 {
		return time.Duration(mins) * time.Minute
	}
	return defaultVal
}
