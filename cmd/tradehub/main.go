package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/scr1ptjunk13/paradex-trade-hub/params"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/api"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/exchange"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/market"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/session"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/storage"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/telemetry"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/util"
	"github.com/scr1ptjunk13/paradex-trade-hub/pkg/wallet"
)

func main() {
	configPath := flag.String("config", "", "YAML config file (env vars still override)")
	envPath := flag.String("env", "", ".env file, empty means ./.env")
	flag.Parse()

	// Load config from file or .env and environment variables
	var cfg params.Config
	if *configPath != "" {
		var err error
		cfg, err = params.LoadFile(*configPath, *envPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
	} else {
		cfg = params.LoadFromEnv(*envPath)
	}

	// Setup logging (write to both console and file)
	logFile := cfg.Log.File
	if logFile == "" {
		logFile = "data/tradehub.log"
	}
	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile, "environment", cfg.Exchange.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Telemetry ----
	mp, shutdownMetrics, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		sugar.Fatalw("telemetry_init_failed", "err", err)
	}
	defer shutdownMetrics(context.Background())
	metrics, err := telemetry.NewMetrics(mp)
	if err != nil {
		sugar.Fatalw("metrics_init_failed", "err", err)
	}

	// ---- Storage: market cache and onboarded accounts ----
	store, err := storage.NewPebbleStore(cfg.Market.CachePath)
	if err != nil {
		sugar.Fatalw("store_open_failed", "path", cfg.Market.CachePath, "err", err)
	}
	defer store.Close()

	// ---- Exchange client ----
	client := exchange.NewClient(cfg.Exchange.APIBaseURL,
		exchange.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		exchange.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.Burst),
		exchange.WithLogger(sugar.Named("exchange")),
	)

	// ---- Markets ----
	registry := market.NewRegistry(client, store, cfg.Market.CacheTTL, util.RealClock{}, sugar.Named("markets"))
	if err := registry.Warm(); err != nil {
		sugar.Warnw("market_cache_warm_failed", "err", err)
	}
	if n, err := registry.Refresh(ctx); err != nil {
		// Cached rules still serve; unknown symbols are fetched on demand.
		sugar.Warnw("market_refresh_failed", "err", err)
	} else {
		sugar.Infow("markets_loaded", "count", n)
	}

	// ---- Session ----
	sess := session.New(cfg, session.Deps{
		Exchange: client,
		Markets:  registry,
		Accounts: store,
		Clock:    util.RealClock{},
		Logger:   sugar.Named("session"),
		Metrics:  metrics,
	})
	defer sess.Close()

	// Headless mode: connect with a local key instead of waiting for a
	// browser wallet. Only for dedicated trading keys.
	if key := os.Getenv("WALLET_PRIVATE_KEY"); key != "" {
		w, err := wallet.FromPrivateKeyHex(key)
		if err != nil {
			sugar.Fatalw("wallet_key_invalid", "err", err)
		}
		if err := sess.Connect(ctx, w, w.Address().Hex()); err != nil {
			sugar.Fatalw("session_connect_failed", "owner", w.Address().Hex(), "err", err)
		}
		if os.Getenv("ENABLE_TRADING") == "true" {
			if err := sess.EnableTrading(); err != nil {
				sugar.Fatalw("enable_trading_failed", "err", err)
			}
		}
	}

	// ---- API Server ----
	// HTTP/WebSocket surface for the local UI
	apiServer := api.NewServer(sess, registry, cfg, sugar.Named("api"))
	if err := apiServer.Run(ctx, cfg.API.Addr); err != nil && err != http.ErrServerClosed {
		sugar.Errorw("api_server_failed", "err", err)
	}
	sugar.Info("shutting_down")
}
