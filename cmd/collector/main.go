package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/kiwoom-data/internal/api"
	"github.com/rickgao/kiwoom-data/internal/auth"
	"github.com/rickgao/kiwoom-data/internal/collect"
	"github.com/rickgao/kiwoom-data/internal/config"
	"github.com/rickgao/kiwoom-data/internal/database"
	"github.com/rickgao/kiwoom-data/internal/model"
	"github.com/rickgao/kiwoom-data/internal/output"
	"github.com/rickgao/kiwoom-data/internal/store"
	"github.com/rickgao/kiwoom-data/internal/version"
	"github.com/rickgao/kiwoom-data/internal/writer"
)

// sampleInstruments seeds a run when neither the config nor the reference
// store supplies codes: Samsung Electronics, SK Hynix, NAVER, LG Chem,
// Samsung SDI.
var sampleInstruments = []string{"005930", "000660", "035420", "051910", "006400"}

func main() {
	configPath := flag.String("config", "configs/collector.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	// Pull credentials referenced by ${VAR} config fields from .env if present.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	logger.Info("starting collector",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"api_url", cfg.Kiwoom.BaseURL,
		"market", cfg.Collection.Market,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to databases when persistence is enabled
	var pools *database.Pools
	if cfg.Database.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Timescale.Host,
			"port", cfg.Database.Timescale.Port,
			"database", cfg.Database.Timescale.Name,
		)
		pools, err = database.NewPools(ctx, cfg.Database)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pools.Close()
		logger.Info("database connected")
	} else {
		logger.Info("database disabled, writing CSV only")
	}

	// Create API client with global request pacing
	apiClient := api.NewClient(
		cfg.Kiwoom.BaseURL,
		cfg.Kiwoom.AppKey,
		cfg.Kiwoom.SecretKey,
		api.WithLogger(logger),
		api.WithTimeout(cfg.Kiwoom.Timeout),
		api.WithRetries(cfg.Kiwoom.MaxRetries, cfg.Kiwoom.RetryBackoff),
		api.WithPacer(api.NewPacer(cfg.Kiwoom.RateLimitDelay)),
	)

	tokens := auth.NewProvider(cfg.Kiwoom.BaseURL, auth.Credentials{
		AppKey:    cfg.Kiwoom.AppKey,
		SecretKey: cfg.Kiwoom.SecretKey,
	}, auth.WithLogger(logger))

	var sink collect.BarSink
	if pools != nil {
		sink = writer.NewBarWriter(writer.DefaultWriterConfig(), pools.Timescale, logger)
	}

	market, err := model.ParseMarket(cfg.Collection.Market)
	if err != nil {
		logger.Error("invalid market", "error", err)
		os.Exit(1)
	}

	startDate, endDate, err := cfg.Collection.Window(time.Now())
	if err != nil {
		logger.Error("invalid date window", "error", err)
		os.Exit(1)
	}

	instruments, err := resolveInstruments(ctx, cfg, pools, market, logger)
	if err != nil {
		logger.Error("failed to resolve instruments", "error", err)
		os.Exit(1)
	}

	logger.Info("collection plan",
		"instruments", len(instruments),
		"start_date", startDate.Format("2006-01-02"),
		"end_date", endDate.Format("2006-01-02"),
		"estimated", time.Duration(len(instruments))*cfg.Kiwoom.RateLimitDelay,
	)

	collector := collect.New(apiClient, tokens, sink, logger)

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Health.Port),
		Handler: createHealthHandler(pools, instruments, time.Now()),
	}

	var result *model.RunResult
	var runErr error

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		result, runErr = collector.Run(gctx, instruments, startDate, endDate)
		// Collection is done either way; release the other goroutines.
		cancel()
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			return runErr
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("starting health server", "port", cfg.Health.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		healthServer.Shutdown(shutdownCtx)
		return nil
	})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("collector aborted", "error", err)
		os.Exit(1)
	}

	if result == nil {
		logger.Error("collection produced no result")
		os.Exit(1)
	}

	// Write datasets and report, even for a cancelled partial run.
	aggregator := output.NewAggregator(cfg.Output.Dir, logger)
	summary, err := aggregator.Finalize(result)
	if err != nil {
		logger.Error("failed to finalize run output", "error", err)
		os.Exit(1)
	}

	fmt.Print(summary)

	logger.Info("collector finished",
		"run_id", summary.RunID,
		"succeeded", summary.Succeeded,
		"failed", len(summary.Failed),
		"records", summary.TotalRecords,
	)

	if runErr != nil || len(summary.Failed) > 0 {
		os.Exit(1)
	}
}

// resolveInstruments picks the run's universe: explicit config codes win,
// then the reference store, then the built-in sample set.
func resolveInstruments(ctx context.Context, cfg *config.CollectorConfig, pools *database.Pools, market model.Market, logger *slog.Logger) ([]model.Instrument, error) {
	if len(cfg.Collection.Instruments) > 0 {
		logger.Info("using configured instruments", "count", len(cfg.Collection.Instruments))
		return codesToInstruments(cfg.Collection.Instruments, market), nil
	}

	if pools != nil {
		instruments, err := store.NewInstrumentStore(pools.Postgres, logger).
			ListInstruments(ctx, market, cfg.Collection.OnlyActive())
		if err != nil {
			return nil, err
		}
		if len(instruments) > 0 {
			logger.Info("using reference store instruments", "count", len(instruments))
			return instruments, nil
		}
		logger.Warn("reference store has no instruments, falling back to sample set")
	}

	logger.Info("using sample instruments", "count", len(sampleInstruments))
	return codesToInstruments(sampleInstruments, market), nil
}

func codesToInstruments(codes []string, market model.Market) []model.Instrument {
	instruments := make([]model.Instrument, 0, len(codes))
	for _, code := range codes {
		instruments = append(instruments, model.Instrument{
			Code:     code,
			Market:   market,
			IsActive: true,
		})
	}
	return instruments
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(pools *database.Pools, instruments []model.Instrument, startedAt time.Time) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]interface{}),
		}

		// Check database
		if pools == nil {
			health.Components["database"] = "disabled"
		} else if err := pools.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		health.Components["collector"] = map[string]interface{}{
			"instruments": len(instruments),
			"uptime":      time.Since(startedAt).String(),
		}

		// Set response
		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	mux.HandleFunc("/debug/instruments", func(w http.ResponseWriter, r *http.Request) {
		codes := make([]string, 0, len(instruments))
		for _, ins := range instruments {
			codes = append(codes, ins.Code)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"count":       len(codes),
			"instruments": codes,
		})
	})

	return mux
}
