package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Reference Types
// -----------------------------------------------------------------------------

// Market is the exchange tier an instrument is listed on.
type Market string

const (
	MarketKOSPI  Market = "KOSPI"
	MarketKOSDAQ Market = "KOSDAQ"
	MarketKONEX  Market = "KONEX"
)

// Code returns the provider's market division code for price inquiries.
func (m Market) Code() string {
	switch m {
	case MarketKOSDAQ:
		return "K"
	case MarketKONEX:
		return "N"
	default:
		return "J"
	}
}

// ParseMarket converts a config/db string into a Market.
func ParseMarket(s string) (Market, error) {
	switch Market(strings.ToUpper(s)) {
	case MarketKOSPI:
		return MarketKOSPI, nil
	case MarketKOSDAQ:
		return MarketKOSDAQ, nil
	case MarketKONEX:
		return MarketKONEX, nil
	}
	return "", fmt.Errorf("unknown market %q", s)
}

// Instrument is a listed Korean equity tracked by the reference store.
// Records are never deleted; delisted instruments are retired via IsActive.
type Instrument struct {
	Code          string     // Market-assigned code (e.g., "005930"), unique
	Market        Market     // Listing market
	IPODate       *time.Time // Listing date, nil if unknown
	DelistingDate *time.Time // Set when the instrument is delisted
	IsActive      bool       // False once delisted
	CreatedAt     time.Time  // First seen by a reference sync
	UpdatedAt     time.Time  // Last touched by a reference sync
}

// -----------------------------------------------------------------------------
// Bar Types
// -----------------------------------------------------------------------------

// BarRecord is one trading day's observation for one instrument.
// Uniquely identified by (StockCode, Date).
type BarRecord struct {
	StockCode string    // Instrument code
	Date      time.Time // Trading date (midnight UTC)

	// Prices in KRW
	OpenPrice   int64
	HighPrice   int64
	LowPrice    int64
	ClosePrice  int64
	PriceChange int64 // Signed change vs previous close

	FluctuationRate float64 // Percent change vs previous close

	Volume int64 // Shares traded
	Amount int64 // Turnover in millions of KRW

	// Ownership/credit metadata
	CreditRate        float64 // Percent
	ForeignRate       float64 // Percent
	ForeignPossession float64 // Shares held by foreign investors
	ForeignWeight     float64 // Percent
}

// BarKey identifies a bar within a run's combined output.
type BarKey struct {
	Code string
	Date time.Time
}

// Key returns the (instrument, date) identity of the record.
func (b BarRecord) Key() BarKey {
	return BarKey{Code: b.StockCode, Date: b.Date}
}

// -----------------------------------------------------------------------------
// Run Types
// -----------------------------------------------------------------------------

// InstrumentState tracks an instrument through a collection run.
type InstrumentState string

const (
	StatePending     InstrumentState = "pending"
	StateFetching    InstrumentState = "fetching"
	StateNormalizing InstrumentState = "normalizing"
	StateDone        InstrumentState = "done"
	StateFailed      InstrumentState = "failed"
)

// FailureKind classifies why an instrument failed.
type FailureKind string

const (
	FailureAuthentication FailureKind = "authentication_error"
	FailureTransient      FailureKind = "transient_network_error"
	FailureData           FailureKind = "data_error"
	FailureSink           FailureKind = "sink_error"
)

// InstrumentOutcome is the per-instrument result of a collection run.
type InstrumentOutcome struct {
	Code    string          // Instrument code
	State   InstrumentState // Final state (pending if the run was cancelled first)
	Records int             // Bars accumulated for this instrument
	Kind    FailureKind     // Set when State == StateFailed
	Reason  string          // Human-readable failure detail
	Elapsed time.Duration   // Wall time spent on this instrument
}

// RunResult is the finalized accounting of one collection run.
// Created at run start, appended to per instrument, never mutated afterwards.
type RunResult struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	// Requested window
	StartDate time.Time
	EndDate   time.Time

	// Outcomes in input order
	Outcomes []InstrumentOutcome

	// Records accumulated across all instruments, in fetch order
	Records []BarRecord
}

// Attempted returns the number of instruments that reached a final state.
func (r *RunResult) Attempted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == StateDone || o.State == StateFailed {
			n++
		}
	}
	return n
}

// Succeeded returns the number of instruments that completed.
func (r *RunResult) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.State == StateDone {
			n++
		}
	}
	return n
}

// FailedOutcomes returns the failed outcomes in input order.
func (r *RunResult) FailedOutcomes() []InstrumentOutcome {
	var failed []InstrumentOutcome
	for _, o := range r.Outcomes {
		if o.State == StateFailed {
			failed = append(failed, o)
		}
	}
	return failed
}

// TotalRecords returns the bar count across all instruments.
func (r *RunResult) TotalRecords() int {
	n := 0
	for _, o := range r.Outcomes {
		n += o.Records
	}
	return n
}

// FailedInstrument is one entry in a run summary's failure list.
type FailedInstrument struct {
	Code   string
	Kind   FailureKind
	Reason string
}

// RunSummary is the aggregator's report of a finished run.
type RunSummary struct {
	RunID      uuid.UUID
	StartedAt  time.Time
	FinishedAt time.Time

	// Requested window
	StartDate time.Time
	EndDate   time.Time

	Attempted    int
	Succeeded    int
	TotalRecords int

	// Date range actually covered by the collected bars (zero when no records)
	FirstDate time.Time
	LastDate  time.Time

	Failed []FailedInstrument

	OutputDir string
	Files     []string // Written dataset files, sorted
}

// String renders the summary as a fixed multi-line report. Rendering the same
// summary twice yields identical bytes.
func (s *RunSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "run %s summary\n", s.RunID)
	fmt.Fprintf(&b, "  instruments attempted: %d\n", s.Attempted)
	fmt.Fprintf(&b, "  succeeded:             %d\n", s.Succeeded)
	fmt.Fprintf(&b, "  failed:                %d\n", len(s.Failed))
	for _, f := range s.Failed {
		fmt.Fprintf(&b, "    %s: %s (%s)\n", f.Code, f.Kind, f.Reason)
	}
	fmt.Fprintf(&b, "  total records:         %d\n", s.TotalRecords)
	if !s.FirstDate.IsZero() {
		fmt.Fprintf(&b, "  date range covered:    %s to %s\n",
			s.FirstDate.Format("2006-01-02"), s.LastDate.Format("2006-01-02"))
	}
	if s.OutputDir != "" {
		fmt.Fprintf(&b, "  output directory:      %s\n", s.OutputDir)
	}
	return b.String()
}
