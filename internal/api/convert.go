package api

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rickgao/kiwoom-data/internal/model"
)

// ParsePrice converts a provider numeric string to int64.
// "+36600" -> 36600, "-1,200" -> -1200, "" -> 0.
// Sign prefixes are kept and thousands separators stripped.
func ParsePrice(s string) (int64, error) {
	s = cleanNumeric(s)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", s, err)
	}
	return v, nil
}

// ParseRate converts a provider decimal string to float64.
// "+0.55" -> 0.55, "" -> 0.
func ParseRate(s string) (float64, error) {
	s = cleanNumeric(s)
	if s == "" {
		return 0, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse rate %q: %w", s, err)
	}
	return v, nil
}

// ParseTradeDate parses the provider's YYYYMMDD trading date as UTC midnight.
func ParseTradeDate(s string) (time.Time, error) {
	t, err := time.Parse("20060102", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse trade date %q: %w", s, err)
	}
	return t, nil
}

func cleanNumeric(s string) string {
	s = strings.TrimSpace(s)
	return strings.ReplaceAll(s, ",", "")
}

// ToBar converts one raw daily row into a canonical bar record.
func ToBar(code string, raw DailyPrice) (model.BarRecord, error) {
	date, err := ParseTradeDate(raw.Date)
	if err != nil {
		return model.BarRecord{}, err
	}

	rec := model.BarRecord{
		StockCode: code,
		Date:      date,
	}

	intFields := []struct {
		name string
		src  string
		dst  *int64
	}{
		{"open_pric", raw.OpenPrice, &rec.OpenPrice},
		{"high_pric", raw.HighPrice, &rec.HighPrice},
		{"low_pric", raw.LowPrice, &rec.LowPrice},
		{"close_pric", raw.ClosePrice, &rec.ClosePrice},
		{"pred_rt", raw.PriceChange, &rec.PriceChange},
		{"trde_qty", raw.Volume, &rec.Volume},
		{"amt_mn", raw.Amount, &rec.Amount},
	}
	for _, f := range intFields {
		v, err := ParsePrice(f.src)
		if err != nil {
			return model.BarRecord{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}

	rateFields := []struct {
		name string
		src  string
		dst  *float64
	}{
		{"flu_rt", raw.FluctuationRate, &rec.FluctuationRate},
		{"crd_rt", raw.CreditRate, &rec.CreditRate},
		{"for_rt", raw.ForeignRate, &rec.ForeignRate},
		{"for_poss", raw.ForeignPossession, &rec.ForeignPossession},
		{"for_wght", raw.ForeignWeight, &rec.ForeignWeight},
	}
	for _, f := range rateFields {
		v, err := ParseRate(f.src)
		if err != nil {
			return model.BarRecord{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}

	return rec, nil
}

// NormalizeDailyPrices converts raw rows for one instrument into bar
// records. A row that fails to parse becomes an entry in the returned
// drop list rather than aborting the batch.
func NormalizeDailyPrices(code string, rows []DailyPrice) ([]model.BarRecord, []error) {
	records := make([]model.BarRecord, 0, len(rows))
	var dropped []error

	for i, raw := range rows {
		rec, err := ToBar(code, raw)
		if err != nil {
			dropped = append(dropped, fmt.Errorf("row %d: %w", i, err))
			continue
		}
		records = append(records, rec)
	}

	return records, dropped
}
