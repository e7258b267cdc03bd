package output

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rickgao/kiwoom-data/internal/model"
)

// utf8BOM marks dataset files as UTF-8 for spreadsheet tools.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// datasetHeader is the canonical column order of every dataset file.
var datasetHeader = []string{
	"stock_code", "date",
	"open_price", "high_price", "low_price", "close_price",
	"price_change", "fluctuation_rate", "volume", "amount",
	"credit_rate", "foreign_rate", "foreign_possession", "foreign_weight",
}

// Aggregator persists run output under a single directory.
type Aggregator struct {
	dir    string
	logger *slog.Logger
}

// NewAggregator creates an Aggregator writing into dir.
func NewAggregator(dir string, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		dir:    dir,
		logger: logger,
	}
}

// Finalize writes one dataset per instrument and one combined dataset, then
// reports the run summary. Instruments that produced no records get no file.
// Finalizing the same result again rewrites identical files.
func (a *Aggregator) Finalize(result *model.RunResult) (*model.RunSummary, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	var files []string

	for _, code := range recordCodes(result.Records) {
		name := code + "_kiwoom_data.csv"
		if err := a.writeDataset(name, selectCode(result.Records, code)); err != nil {
			return nil, err
		}
		files = append(files, name)
	}

	if len(result.Records) > 0 {
		name := fmt.Sprintf("combined_kiwoom_data_%s.csv", result.StartedAt.Format("20060102_150405"))
		if err := a.writeDataset(name, result.Records); err != nil {
			return nil, err
		}
		files = append(files, name)
	}

	sort.Strings(files)

	summary := buildSummary(result)
	summary.OutputDir = a.dir
	summary.Files = files

	a.logger.Info("run output finalized",
		"run_id", result.RunID,
		"files", len(files),
		"records", len(result.Records),
	)
	return summary, nil
}

// writeDataset writes one CSV file with BOM and header.
func (a *Aggregator) writeDataset(name string, records []model.BarRecord) error {
	path := filepath.Join(a.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create dataset %s: %w", name, err)
	}

	if _, err := f.Write(utf8BOM); err != nil {
		f.Close()
		return fmt.Errorf("write dataset %s: %w", name, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(datasetHeader); err != nil {
		f.Close()
		return fmt.Errorf("write dataset %s: %w", name, err)
	}
	for _, rec := range records {
		if err := w.Write(datasetRow(rec)); err != nil {
			f.Close()
			return fmt.Errorf("write dataset %s: %w", name, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write dataset %s: %w", name, err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close dataset %s: %w", name, err)
	}

	a.logger.Debug("wrote dataset", "file", name, "records", len(records))
	return nil
}

// datasetRow renders one record in datasetHeader order.
func datasetRow(rec model.BarRecord) []string {
	return []string{
		rec.StockCode,
		rec.Date.Format("2006-01-02"),
		strconv.FormatInt(rec.OpenPrice, 10),
		strconv.FormatInt(rec.HighPrice, 10),
		strconv.FormatInt(rec.LowPrice, 10),
		strconv.FormatInt(rec.ClosePrice, 10),
		strconv.FormatInt(rec.PriceChange, 10),
		strconv.FormatFloat(rec.FluctuationRate, 'f', -1, 64),
		strconv.FormatInt(rec.Volume, 10),
		strconv.FormatInt(rec.Amount, 10),
		strconv.FormatFloat(rec.CreditRate, 'f', -1, 64),
		strconv.FormatFloat(rec.ForeignRate, 'f', -1, 64),
		strconv.FormatFloat(rec.ForeignPossession, 'f', -1, 64),
		strconv.FormatFloat(rec.ForeignWeight, 'f', -1, 64),
	}
}

// recordCodes returns the distinct instrument codes in sorted order.
func recordCodes(records []model.BarRecord) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, rec := range records {
		if !seen[rec.StockCode] {
			seen[rec.StockCode] = true
			codes = append(codes, rec.StockCode)
		}
	}
	sort.Strings(codes)
	return codes
}

// selectCode returns the records for one instrument in fetch order.
func selectCode(records []model.BarRecord, code string) []model.BarRecord {
	var out []model.BarRecord
	for _, rec := range records {
		if rec.StockCode == code {
			out = append(out, rec)
		}
	}
	return out
}

// buildSummary derives the summary counts and date coverage from a result.
func buildSummary(result *model.RunResult) *model.RunSummary {
	summary := &model.RunSummary{
		RunID:        result.RunID,
		StartedAt:    result.StartedAt,
		FinishedAt:   result.FinishedAt,
		StartDate:    result.StartDate,
		EndDate:      result.EndDate,
		Attempted:    result.Attempted(),
		Succeeded:    result.Succeeded(),
		TotalRecords: result.TotalRecords(),
	}

	for _, o := range result.FailedOutcomes() {
		summary.Failed = append(summary.Failed, model.FailedInstrument{
			Code:   o.Code,
			Kind:   o.Kind,
			Reason: o.Reason,
		})
	}

	for _, rec := range result.Records {
		if summary.FirstDate.IsZero() || rec.Date.Before(summary.FirstDate) {
			summary.FirstDate = rec.Date
		}
		if rec.Date.After(summary.LastDate) {
			summary.LastDate = rec.Date
		}
	}

	return summary
}
