package writer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/kiwoom-data/internal/model"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows queued per database round trip.
	BatchSize int
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize: 500,
	}
}

// WriterMetrics holds metrics for a writer.
type WriterMetrics struct {
	Upserts int64
	Batches int64
	Errors  int64
}

// BarWriter upserts daily bars into the daily_bars table.
type BarWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	// Database
	db *pgxpool.Pool

	// Metrics
	mu      sync.Mutex
	metrics WriterMetrics
}

// NewBarWriter creates a new BarWriter.
func NewBarWriter(cfg WriterConfig, db *pgxpool.Pool, logger *slog.Logger) *BarWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	return &BarWriter{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
}

// UpsertBars writes records in database round trips of at most BatchSize rows.
// Rows are keyed on (stock_code, trade_date); writing the same key again
// replaces the stored values.
func (w *BarWriter) UpsertBars(ctx context.Context, records []model.BarRecord) error {
	if len(records) == 0 {
		return nil
	}

	start := time.Now()

	for _, chunk := range chunkRecords(records, w.cfg.BatchSize) {
		if err := w.sendChunk(ctx, chunk); err != nil {
			w.logger.Error("bar upsert failed", "error", err, "count", len(chunk))
			w.mu.Lock()
			w.metrics.Errors++
			w.mu.Unlock()
			return err
		}

		w.mu.Lock()
		w.metrics.Upserts += int64(len(chunk))
		w.metrics.Batches++
		w.mu.Unlock()
	}

	w.logger.Debug("upserted bars",
		"count", len(records),
		"duration", time.Since(start),
	)
	return nil
}

// Stats returns current metrics.
func (w *BarWriter) Stats() WriterMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// sendChunk executes one queued batch against the database.
func (w *BarWriter) sendChunk(ctx context.Context, records []model.BarRecord) error {
	results := w.db.SendBatch(ctx, buildBatch(records))
	defer results.Close()

	for i := range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert bar %s/%s: %w",
				records[i].StockCode, records[i].Date.Format("2006-01-02"), err)
		}
	}
	return nil
}

// buildBatch queues one upsert per record.
func buildBatch(records []model.BarRecord) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(`
			INSERT INTO daily_bars (stock_code, trade_date, open_price, high_price, low_price, close_price, price_change, fluctuation_rate, volume, amount, credit_rate, foreign_rate, foreign_possession, foreign_weight)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (stock_code, trade_date) DO UPDATE SET
				open_price = EXCLUDED.open_price,
				high_price = EXCLUDED.high_price,
				low_price = EXCLUDED.low_price,
				close_price = EXCLUDED.close_price,
				price_change = EXCLUDED.price_change,
				fluctuation_rate = EXCLUDED.fluctuation_rate,
				volume = EXCLUDED.volume,
				amount = EXCLUDED.amount,
				credit_rate = EXCLUDED.credit_rate,
				foreign_rate = EXCLUDED.foreign_rate,
				foreign_possession = EXCLUDED.foreign_possession,
				foreign_weight = EXCLUDED.foreign_weight
		`, r.StockCode, r.Date, r.OpenPrice, r.HighPrice, r.LowPrice, r.ClosePrice,
			r.PriceChange, r.FluctuationRate, r.Volume, r.Amount,
			r.CreditRate, r.ForeignRate, r.ForeignPossession, r.ForeignWeight)
	}
	return batch
}

// chunkRecords splits records into slices of at most size rows.
func chunkRecords(records []model.BarRecord, size int) [][]model.BarRecord {
	var chunks [][]model.BarRecord
	for len(records) > size {
		chunks = append(chunks, records[:size])
		records = records[size:]
	}
	return append(chunks, records)
}
