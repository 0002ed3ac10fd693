package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tradeloop/fx-confluence-bot/internal/engine"
	"github.com/tradeloop/fx-confluence-bot/internal/exchange/bybit"
	"github.com/tradeloop/fx-confluence-bot/internal/logger"
	"github.com/tradeloop/fx-confluence-bot/internal/monitoring"
	"github.com/tradeloop/fx-confluence-bot/internal/orchestrator"
	"github.com/tradeloop/fx-confluence-bot/internal/telemetry"
	"github.com/tradeloop/fx-confluence-bot/pkg/config"
	"github.com/tradeloop/fx-confluence-bot/pkg/types"
)

func main() {
	configPath := flag.String("config", "configs/engine.yaml", "path to engine configuration")
	envFile := flag.String("env", ".env", "path to environment file")
	flag.Parse()

	// Optional env file; real environments set variables directly
	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load env file %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	if err := logger.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	// Malformed configuration is fatal before anything starts
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.ErrorWithErr(ctx, "invalid configuration, refusing to start", err, "path", *configPath)
		os.Exit(1)
	}

	if err := run(ctx, cfg); err != nil {
		logger.ErrorWithErr(ctx, "engine terminated", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.EngineConfig) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := telemetry.NewHub(logger.Logger())
	go hub.Run()
	defer hub.Stop()

	health := monitoring.NewHealthChecker()

	client := bybit.NewClient(bybit.Config{
		APIKey:    os.Getenv("BYBIT_API_KEY"),
		APISecret: os.Getenv("BYBIT_API_SECRET"),
		Category:  os.Getenv("BYBIT_CATEGORY"),
		Testnet:   os.Getenv("BYBIT_TESTNET") == "true",
		Demo:      os.Getenv("BYBIT_DEMO") == "true",
	})
	logger.Info(ctx, "broker client ready", "environment", client.GetEnvironment())

	var eng *engine.Engine
	router := orchestrator.NewRouter(logger.Logger(),
		orchestrator.WithResultHandler(func(res orchestrator.RoutingResult) {
			eng.HandleResult(res)
		}))
	defer router.Close()

	executor := bybit.NewExecutor(client)
	for _, acct := range cfg.Accounts {
		if err := router.Register(acct.AccountID, executor); err != nil {
			return err
		}
	}
	router.SetDefaultManager(executor)

	eng, err := engine.New(cfg, router, hub, health)
	if err != nil {
		return err
	}
	if err := eng.Ledger().LoadSnapshot(cfg.SnapshotPath); err != nil {
		logger.Warn(ctx, "could not restore ledger snapshot", "error", err)
	}

	if err := backfill(ctx, client, eng, cfg); err != nil {
		return err
	}
	health.SetConnected(true)

	go serveHTTP(ctx, cfg.ListenAddr, health, hub)

	logger.Info(ctx, "engine started",
		"instruments", cfg.Instruments,
		"accounts", len(cfg.Accounts),
		"poll_interval", cfg.PollInterval().String())

	ticker := time.NewTicker(cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return shutdown(eng, cfg)
		case <-ticker.C:
			tick(ctx, client, eng, cfg)
		}
	}
}

// backfill seeds the history store with recent bars for every
// instrument.
func backfill(ctx context.Context, client *bybit.Client, eng *engine.Engine, cfg *config.EngineConfig) error {
	for _, instrument := range cfg.Instruments {
		bars, err := client.GetKlines(ctx, bybit.KlineParams{
			Instrument: instrument,
			Interval:   "60",
			Limit:      cfg.MaxBars,
		})
		if err != nil {
			return fmt.Errorf("backfill %s: %w", instrument, err)
		}
		if err := eng.Store().Backfill(instrument, bars); err != nil {
			return err
		}
		logger.Info(ctx, "history backfilled", "instrument", instrument, "bars", len(bars))
	}
	return nil
}

// tick runs one evaluation pass across all instruments. Data failures on
// one instrument never stop the loop.
func tick(ctx context.Context, client *bybit.Client, eng *engine.Engine, cfg *config.EngineConfig) {
	for _, instrument := range cfg.Instruments {
		bars, err := client.GetKlines(ctx, bybit.KlineParams{
			Instrument: instrument,
			Interval:   "60",
			Limit:      2,
		})
		if err != nil {
			logger.ErrorWithErr(ctx, "market data fetch failed", err, "instrument", instrument)
			continue
		}
		// The last candle is still forming; ingest only closed bars
		for _, bar := range closedBars(bars, eng, instrument) {
			if err := eng.OnBar(ctx, instrument, bar); err != nil {
				break
			}
		}

		snapshot, err := client.GetSnapshot(ctx, instrument)
		if err != nil {
			logger.ErrorWithErr(ctx, "snapshot fetch failed", err, "instrument", instrument)
			continue
		}
		if err := eng.EvaluateTick(ctx, *snapshot); err != nil {
			logger.ErrorWithErr(ctx, "evaluation failed", err, "instrument", instrument)
		}
	}
}

func closedBars(bars []types.PriceBar, eng *engine.Engine, instrument string) []types.PriceBar {
	if len(bars) == 0 {
		return nil
	}
	closed := bars[:len(bars)-1]
	existing := eng.Store().Bars(instrument)
	if len(existing) == 0 {
		return closed
	}
	last := existing[len(existing)-1].Timestamp
	fresh := make([]types.PriceBar, 0, len(closed))
	for _, bar := range closed {
		if bar.Timestamp.After(last) {
			fresh = append(fresh, bar)
		}
	}
	return fresh
}

func serveHTTP(ctx context.Context, addr string, health *monitoring.HealthChecker, hub *telemetry.Hub) {
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	mux.Handle("/metrics", monitoring.NewMetricsHandler())
	mux.Handle("/ws", hub)

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.ErrorWithErr(ctx, "http server failed", err, "addr", addr)
	}
}

func shutdown(eng *engine.Engine, cfg *config.EngineConfig) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info(ctx, "shutting down")
	if err := eng.Ledger().SaveSnapshot(cfg.SnapshotPath); err != nil {
		logger.Warn(ctx, "could not save ledger snapshot", "error", err)
	}
	eng.Ledger().WriteReport(os.Stdout)
	return logger.Shutdown(ctx)
}
