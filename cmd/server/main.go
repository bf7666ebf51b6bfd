package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"example.com/binance-pattern-signals/internal/binance"
	"example.com/binance-pattern-signals/internal/config"
	"example.com/binance-pattern-signals/internal/httpapi"
	"example.com/binance-pattern-signals/internal/kline"
	"example.com/binance-pattern-signals/internal/logging"
	"example.com/binance-pattern-signals/internal/market"
	"example.com/binance-pattern-signals/internal/monitor"
	"example.com/binance-pattern-signals/internal/notify"
	"example.com/binance-pattern-signals/internal/pattern"
	"example.com/binance-pattern-signals/internal/review"
	"example.com/binance-pattern-signals/internal/scanner"
	signalpkg "example.com/binance-pattern-signals/internal/signal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config, optional")
	envPath := flag.String("env", ".env", "path to the .env file, optional")
	once := flag.Bool("once", false, "run one scan round and exit")
	heartbeat := flag.Duration("monitor-heartbeat", 0, "stream heartbeat log interval, 0 disables")
	flag.Parse()

	bootLog := logging.NewLogger("info")
	if err := config.LoadDotEnv(*envPath); err != nil {
		bootLog.Fatal().Err(err).Msg("load .env")
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		bootLog.Fatal().Err(err).Str("path", *configPath).Msg("load config")
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		bootLog.Fatal().Err(err).Msg("invalid config")
	}

	logger := logging.NewLogger(cfg.App.LogLevel).With().Str("app", cfg.App.Name).Logger()
	logger.Info().
		Str("addr", cfg.Server.Addr).
		Int("symbols", len(cfg.Scan.Symbols)).
		Dur("every", cfg.Scan.Every).
		Strs("shapes", cfg.Scan.Shapes).
		Bool("breakout", cfg.Scan.Breakout).
		Bool("confirm", cfg.Scan.Confirm).
		Bool("review", cfg.Scan.Review).
		Bool("stream", cfg.Stream.Enabled).
		Msg("config loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb := newRedis(ctx, cfg.Redis, logger)
	if rdb != nil {
		defer rdb.Close()
	}

	rest := binance.NewRESTClient(cfg.Binance.BaseURL, cfg.Binance.Timeout)
	fetcher := market.NewCachingFetcher(rdb, cfg.Redis.CacheTTL, rest, cfg.Redis.Namespace+":klines")

	var deduper signalpkg.Deduper = signalpkg.NewMemoryDeduper(cfg.Redis.DedupTTL)
	if rdb != nil {
		deduper = signalpkg.NewRedisDeduper(rdb, cfg.Redis.DedupTTL, cfg.Redis.Namespace+":alerts")
	}

	notifier := notify.NewManager(cfg.Notify.Timeout, logging.Component(logger, "notify"))
	notifier.AddNotifier(notify.NewTelegramNotifier(notify.TelegramConfig{
		BotToken: cfg.Notify.Telegram.BotToken,
		ChatID:   cfg.Notify.Telegram.ChatID,
	}))
	notifier.AddNotifier(notify.NewDiscordNotifier(cfg.Notify.Discord.WebhookURL))
	if !notifier.Enabled() {
		logger.Warn().Msg("no notifier configured, alerts are only logged")
	}

	targets := make([]scanner.Target, len(cfg.Scan.Symbols))
	for i, s := range cfg.Scan.Symbols {
		targets[i] = scanner.Target{Symbol: s.Symbol, Interval: s.Interval}
	}
	history := signalpkg.NewHistory(signalpkg.DefaultHistoryMax)
	scan := scanner.New(scanner.Options{
		Targets:  targets,
		Limit:    cfg.Scan.Limit,
		Workers:  cfg.Scan.Workers,
		Every:    cfg.Scan.Every,
		Delay:    cfg.Scan.Delay,
		Shapes:   cfg.Scan.Shapes,
		Breakout: cfg.Scan.Breakout,
		Confirm:  cfg.Scan.Confirm,
		Review:   cfg.Scan.Review,

		MinSignalDistance: cfg.Scan.MinSignalDistance,
	}, scanner.Deps{
		Detector: pattern.NewDetector(cfg.Detector),
		Fetcher:  fetcher,
		Deduper:  deduper,
		Reviewer: newReviewer(ctx, cfg.Review, logger),
		Alerter:  notifier,
		History:  history,
		Logger:   logger,
	})

	if *once {
		for _, res := range scan.ScanAll(ctx) {
			if res.Error != "" {
				logger.Error().Str("symbol", res.Symbol).Str("error", res.Error).Msg("scan failed")
			}
		}
		return
	}

	var klineStore *kline.Store
	if cfg.Stream.Enabled {
		klineStore, err = startStream(ctx, cfg, fetcher, scan, *heartbeat, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("start stream")
		}
	} else {
		go scan.Run(ctx)
	}

	api := &httpapi.Server{
		History:         history,
		Scanner:         scan,
		KlineStore:      klineStore,
		Notifier:        notifier,
		AllowedOrigins:  httpapi.ParseAllowedOrigins(cfg.Server.AllowedOrigins),
		DefaultInterval: cfg.Stream.Interval,
		Logger:          logging.Component(logger, "httpapi"),
	}
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	logger.Info().Str("addr", cfg.Server.Addr).Msg("http listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("http server error")
	}
}

// loadConfig reads path over the defaults; a missing file yields the defaults.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return config.Load(path)
}

// newRedis connects when an address is configured. A failed ping disables
// Redis instead of aborting startup.
func newRedis(ctx context.Context, cfg config.Redis, logger zerolog.Logger) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctxPing).Err(); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis connection failed, using in-memory dedup and no cache")
		_ = rdb.Close()
		return nil
	}
	logger.Info().Str("addr", cfg.Addr).Msg("redis connected")
	return rdb
}

// newReviewer chains the configured providers: SiliconFlow when enabled,
// then OpenAI, then Gemini. It returns nil when none has a key.
func newReviewer(ctx context.Context, cfg config.Review, logger zerolog.Logger) review.Reviewer {
	var chain []review.Reviewer
	if cfg.UseSiliconFlow && cfg.SiliconFlowKey != "" {
		chain = append(chain, review.NewSiliconFlowReviewer(cfg.SiliconFlowKey, cfg.SiliconFlowModel, cfg.Candles, cfg.Timeout))
	}
	if cfg.OpenAIKey != "" {
		chain = append(chain, review.NewOpenAIReviewer(cfg.OpenAIKey, cfg.OpenAIModel, cfg.Candles, cfg.Timeout))
	}
	if cfg.GeminiKey != "" {
		g, err := review.NewGeminiReviewer(ctx, cfg.GeminiKey, cfg.GeminiModel, cfg.Candles)
		if err != nil {
			logger.Warn().Err(err).Msg("gemini reviewer disabled")
		} else {
			chain = append(chain, g)
		}
	}
	if len(chain) == 0 {
		logger.Info().Msg("no LLM key configured, review disabled")
		return nil
	}
	return review.NewFallbackReviewer(logging.Component(logger, "review"), chain...)
}

// startStream seeds the kline store from REST and keeps it current from the
// websocket stream; every closed kline runs the scan pipeline.
func startStream(ctx context.Context, cfg *config.Config, fetcher market.Fetcher, scan *scanner.Scanner, heartbeat time.Duration, logger zerolog.Logger) (*kline.Store, error) {
	interval, err := binance.IntervalDuration(cfg.Stream.Interval)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(cfg.Scan.Symbols))
	for _, s := range cfg.Scan.Symbols {
		symbols = append(symbols, s.Symbol)
	}

	store := kline.NewStore(interval, cfg.Stream.History, logger)
	mon := monitor.New(monitor.Config{
		StreamURL:      cfg.Binance.StreamURL,
		Symbols:        symbols,
		Interval:       cfg.Stream.Interval,
		Store:          store,
		HeartbeatEvery: heartbeat,
		Logger:         logger,
	})
	mon.Seed(ctx, fetcher, cfg.Stream.History+1)

	store.SetOnClose(func(symbol string, klines []kline.Kline) {
		scan.HandleKlines(ctx, symbol, cfg.Stream.Interval, klines)
	})
	go mon.Run(ctx)

	go func() {
		t := time.NewTicker(time.Hour)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := store.CleanupStale(24 * time.Hour); n > 0 {
					logger.Info().Int("removed", n).Msg("stale kline symbols removed")
				}
			}
		}
	}()
	return store, nil
}
