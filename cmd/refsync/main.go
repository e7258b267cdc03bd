package main

import (
	"context"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/kiwoom-data/internal/config"
	"github.com/rickgao/kiwoom-data/internal/database"
	"github.com/rickgao/kiwoom-data/internal/model"
	"github.com/rickgao/kiwoom-data/internal/store"
	"github.com/rickgao/kiwoom-data/internal/version"
)

// refsync loads a listing file into the instruments table so collector runs
// can resolve their universe from the reference store.
func main() {
	configPath := flag.String("config", "configs/collector.yaml", "path to config file")
	seedPath := flag.String("seed", "", "listing CSV (code,market,ipo_date,delisting_date)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	logger.Info("starting refsync",
		"version", version.Version,
		"config", *configPath,
		"seed", *seedPath,
	)

	if *seedPath == "" {
		logger.Error("missing required -seed flag")
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if !cfg.Database.Enabled {
		logger.Error("database.enabled must be true to sync the reference store")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	instruments, err := readSeedFile(*seedPath)
	if err != nil {
		logger.Error("failed to read seed file", "error", err)
		os.Exit(1)
	}
	logger.Info("seed file parsed", "instruments", len(instruments))

	pool, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := store.NewInstrumentStore(pool, logger).UpsertInstruments(ctx, instruments); err != nil {
		logger.Error("failed to upsert instruments", "error", err)
		os.Exit(1)
	}

	logger.Info("reference sync complete", "instruments", len(instruments))
}

// readSeedFile parses a listing CSV. Required columns are code and market;
// ipo_date and delisting_date are optional YYYY-MM-DD values. A row with a
// delisting date is recorded as inactive.
func readSeedFile(path string) ([]model.Instrument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		// Strip the BOM spreadsheet exports put before the first column.
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF")))] = i
	}
	for _, required := range []string{"code", "market"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("seed file missing %q column", required)
		}
	}

	var instruments []model.Instrument
	line := 1
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		field := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		market, err := model.ParseMarket(field("market"))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		ins := model.Instrument{
			Code:     field("code"),
			Market:   market,
			IsActive: true,
		}
		if ins.Code == "" {
			return nil, fmt.Errorf("line %d: empty code", line)
		}
		if v := field("ipo_date"); v != "" {
			d, err := time.Parse("2006-01-02", v)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse ipo_date: %w", line, err)
			}
			ins.IPODate = &d
		}
		if v := field("delisting_date"); v != "" {
			d, err := time.Parse("2006-01-02", v)
			if err != nil {
				return nil, fmt.Errorf("line %d: parse delisting_date: %w", line, err)
			}
			ins.DelistingDate = &d
			ins.IsActive = false
		}

		instruments = append(instruments, ins)
	}

	if len(instruments) == 0 {
		return nil, errors.New("seed file has no instruments")
	}
	return instruments, nil
}
