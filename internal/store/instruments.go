package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/kiwoom-data/internal/model"
)

// InstrumentStore reads and writes the instruments table.
type InstrumentStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewInstrumentStore creates an InstrumentStore backed by the given pool.
func NewInstrumentStore(db *pgxpool.Pool, logger *slog.Logger) *InstrumentStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &InstrumentStore{
		db:     db,
		logger: logger,
	}
}

// ListInstruments returns instruments for a market ordered by code.
// With activeOnly set, delisted instruments are excluded.
func (s *InstrumentStore) ListInstruments(ctx context.Context, market model.Market, activeOnly bool) ([]model.Instrument, error) {
	query, args := listInstrumentsQuery(market, activeOnly)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []model.Instrument
	for rows.Next() {
		var ins model.Instrument
		var marketName string
		if err := rows.Scan(&ins.Code, &marketName, &ins.IPODate, &ins.DelistingDate,
			&ins.IsActive, &ins.CreatedAt, &ins.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan instrument: %w", err)
		}
		m, err := model.ParseMarket(marketName)
		if err != nil {
			return nil, fmt.Errorf("instrument %s: %w", ins.Code, err)
		}
		ins.Market = m
		instruments = append(instruments, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}

	return instruments, nil
}

// UpsertInstruments writes instruments keyed on code. Existing rows keep
// their created_at; market, dates, and the active flag are refreshed.
func (s *InstrumentStore) UpsertInstruments(ctx context.Context, instruments []model.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	start := time.Now()

	results := s.db.SendBatch(ctx, buildInstrumentBatch(instruments, time.Now()))
	defer results.Close()

	for i := range instruments {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert instrument %s: %w", instruments[i].Code, err)
		}
	}

	s.logger.Debug("upserted instruments",
		"count", len(instruments),
		"duration", time.Since(start),
	)
	return nil
}

// listInstrumentsQuery builds the SELECT for ListInstruments.
func listInstrumentsQuery(market model.Market, activeOnly bool) (string, []any) {
	query := `
		SELECT code, market, ipo_date, delisting_date, is_active, created_at, updated_at
		FROM instruments
		WHERE market = $1`
	if activeOnly {
		query += `
		AND is_active`
	}
	query += `
		ORDER BY code`

	return query, []any{string(market)}
}

// buildInstrumentBatch queues one upsert per instrument.
func buildInstrumentBatch(instruments []model.Instrument, now time.Time) *pgx.Batch {
	batch := &pgx.Batch{}
	for _, ins := range instruments {
		batch.Queue(`
			INSERT INTO instruments (code, market, ipo_date, delisting_date, is_active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (code) DO UPDATE SET
				market = EXCLUDED.market,
				ipo_date = EXCLUDED.ipo_date,
				delisting_date = EXCLUDED.delisting_date,
				is_active = EXCLUDED.is_active,
				updated_at = EXCLUDED.updated_at
		`, ins.Code, string(ins.Market), ins.IPODate, ins.DelistingDate, ins.IsActive, now)
	}
	return batch
}
