package collect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/kiwoom-data/internal/api"
	"github.com/rickgao/kiwoom-data/internal/auth"
	"github.com/rickgao/kiwoom-data/internal/model"
)

// TokenSource supplies bearer tokens for data requests.
type TokenSource interface {
	Acquire(ctx context.Context) (auth.Token, error)
}

// TokenSourceFunc is a function adapter for TokenSource.
type TokenSourceFunc func(ctx context.Context) (auth.Token, error)

func (f TokenSourceFunc) Acquire(ctx context.Context) (auth.Token, error) {
	return f(ctx)
}

// BarSink receives an instrument's normalized records once that
// instrument completes. Implementations must upsert on (code, date).
type BarSink interface {
	UpsertBars(ctx context.Context, records []model.BarRecord) error
}

// BarSinkFunc is a function adapter for BarSink.
type BarSinkFunc func(ctx context.Context, records []model.BarRecord) error

func (f BarSinkFunc) UpsertBars(ctx context.Context, records []model.BarRecord) error {
	return f(ctx, records)
}

// Collector runs rate-limited sequential collection over an instrument list.
type Collector struct {
	client *api.Client
	tokens TokenSource
	sink   BarSink // optional; nil means file output only
	logger *slog.Logger

	token auth.Token
}

// New creates a Collector. The sink may be nil.
func New(client *api.Client, tokens TokenSource, sink BarSink, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		client: client,
		tokens: tokens,
		sink:   sink,
		logger: logger,
	}
}

// Run collects daily bars for every instrument in order over the
// inclusive [start, end] window. Accumulated records are unique on
// (code, date) across the whole run; later repeats are dropped.
// Per-instrument failures are recorded in the result; the error
// return covers only conditions that prevent the run from starting,
// plus context cancellation.
//
// On cancellation the in-flight instrument finishes and the remaining
// ones are recorded as pending, so partial results stay consistent.
func (c *Collector) Run(ctx context.Context, instruments []model.Instrument, start, end time.Time) (*model.RunResult, error) {
	if len(instruments) == 0 {
		return nil, errors.New("no instruments to collect")
	}
	if start.After(end) {
		return nil, fmt.Errorf("start date %s is after end date %s",
			start.Format("20060102"), end.Format("20060102"))
	}

	result := &model.RunResult{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
		StartDate: start,
		EndDate:   end,
	}

	c.logger.Info("collection run starting",
		"run_id", result.RunID,
		"instruments", len(instruments),
		"start_date", start.Format("20060102"),
		"end_date", end.Format("20060102"),
	)

	// Key dedup spans the run so a code listed twice cannot repeat rows.
	seen := make(map[model.BarKey]struct{})

	for i, inst := range instruments {
		// Cancellation is checked between instruments only, so an
		// instrument that started always lands in a terminal state.
		select {
		case <-ctx.Done():
			c.logger.Warn("run cancelled",
				"run_id", result.RunID,
				"processed", i,
				"total", len(instruments),
			)
			for _, rest := range instruments[i:] {
				result.Outcomes = append(result.Outcomes, model.InstrumentOutcome{
					Code:  rest.Code,
					State: model.StatePending,
				})
			}
			result.FinishedAt = time.Now()
			return result, ctx.Err()
		default:
		}

		outcome, records := c.collectOne(ctx, inst, start, end, seen)
		result.Outcomes = append(result.Outcomes, outcome)
		result.Records = append(result.Records, records...)

		switch outcome.State {
		case model.StateDone:
			c.logger.Info("instrument collected",
				"code", inst.Code,
				"records", outcome.Records,
				"elapsed", outcome.Elapsed,
				"progress", fmt.Sprintf("%d/%d", i+1, len(instruments)),
			)
		case model.StateFailed:
			c.logger.Warn("instrument failed",
				"code", inst.Code,
				"kind", string(outcome.Kind),
				"reason", outcome.Reason,
				"progress", fmt.Sprintf("%d/%d", i+1, len(instruments)),
			)
		}
	}

	result.FinishedAt = time.Now()

	c.logger.Info("collection run finished",
		"run_id", result.RunID,
		"attempted", result.Attempted(),
		"succeeded", result.Succeeded(),
		"failed", len(result.FailedOutcomes()),
		"records", result.TotalRecords(),
		"elapsed", result.FinishedAt.Sub(result.StartedAt),
	)

	return result, nil
}

// collectOne moves a single instrument through fetch and normalize,
// returning its outcome and the records that survived.
func (c *Collector) collectOne(ctx context.Context, inst model.Instrument, start, end time.Time, seen map[model.BarKey]struct{}) (model.InstrumentOutcome, []model.BarRecord) {
	began := time.Now()
	outcome := model.InstrumentOutcome{Code: inst.Code, State: model.StateFetching}

	fail := func(kind model.FailureKind, err error) (model.InstrumentOutcome, []model.BarRecord) {
		outcome.State = model.StateFailed
		outcome.Kind = kind
		outcome.Reason = err.Error()
		outcome.Elapsed = time.Since(began)
		return outcome, nil
	}

	if err := c.ensureToken(ctx); err != nil {
		return fail(model.FailureAuthentication, err)
	}

	opts := api.DailyPricesOptions{
		Market:    inst.Market,
		StartDate: start,
		EndDate:   end,
	}
	resp, err := c.fetchWithAuthRetry(ctx, inst.Code, opts)
	if err != nil {
		return fail(classify(err), err)
	}

	outcome.State = model.StateNormalizing
	records, dropped := api.NormalizeDailyPrices(inst.Code, resp.Prices)
	for _, derr := range dropped {
		c.logger.Warn("dropped unparseable row", "code", inst.Code, "err", derr)
	}
	records = c.filterWindow(inst.Code, records, start, end, seen)

	if c.sink != nil && len(records) > 0 {
		if err := c.sink.UpsertBars(ctx, records); err != nil {
			return fail(model.FailureSink, fmt.Errorf("upsert bars: %w", err))
		}
	}

	outcome.State = model.StateDone
	outcome.Records = len(records)
	outcome.Elapsed = time.Since(began)
	return outcome, records
}

// ensureToken acquires a token when none is held or the held one is
// expiring. No-op while the current token is still valid.
func (c *Collector) ensureToken(ctx context.Context) error {
	if c.token.Valid(time.Now()) {
		return nil
	}
	return c.refreshToken(ctx)
}

// refreshToken unconditionally acquires a fresh token and installs it
// on the client.
func (c *Collector) refreshToken(ctx context.Context) error {
	tok, err := c.tokens.Acquire(ctx)
	if err != nil {
		return &tokenRefreshError{err: err}
	}
	c.token = tok
	c.client.SetToken(tok.Value)
	return nil
}

// tokenRefreshError marks a failed token acquisition, whatever the
// underlying cause, so it classifies as an authentication failure.
type tokenRefreshError struct{ err error }

func (e *tokenRefreshError) Error() string { return "acquire token: " + e.err.Error() }
func (e *tokenRefreshError) Unwrap() error { return e.err }

// fetchWithAuthRetry fetches daily prices, refreshing the token exactly
// once if the provider rejects it. A second rejection goes back to the
// caller as-is.
func (c *Collector) fetchWithAuthRetry(ctx context.Context, code string, opts api.DailyPricesOptions) (*api.DailyPricesResponse, error) {
	resp, err := c.client.GetDailyPrices(ctx, code, opts)
	if err == nil {
		return resp, nil
	}

	var apiErr *api.APIError
	if !errors.As(err, &apiErr) || !apiErr.IsAuth() {
		return nil, err
	}

	c.logger.Warn("token rejected, refreshing",
		"code", code,
		"status", apiErr.StatusCode,
	)
	if rerr := c.refreshToken(ctx); rerr != nil {
		return nil, rerr
	}

	return c.client.GetDailyPrices(ctx, code, opts)
}

// filterWindow drops records dated outside [start, end] and records
// whose (code, date) key the run has already kept. The provider
// occasionally echoes rows beyond the requested range, and the combined
// output must stay unique on (code, date) across the whole run, even
// when the instrument list names a code twice. seen is advanced here,
// so it spans instruments when the caller shares it.
func (c *Collector) filterWindow(code string, records []model.BarRecord, start, end time.Time, seen map[model.BarKey]struct{}) []model.BarRecord {
	kept := records[:0]

	for _, rec := range records {
		if rec.Date.Before(start) || rec.Date.After(end) {
			c.logger.Warn("dropped out-of-range row",
				"code", code,
				"date", rec.Date.Format("20060102"),
			)
			continue
		}
		if _, dup := seen[rec.Key()]; dup {
			c.logger.Warn("dropped duplicate row",
				"code", code,
				"date", rec.Date.Format("20060102"),
			)
			continue
		}
		seen[rec.Key()] = struct{}{}
		kept = append(kept, rec)
	}

	return kept
}

// classify maps a fetch error to the failure taxonomy recorded in
// outcomes. Auth rejections that survived the single refresh, and token
// endpoint failures, count as authentication errors; provider payload
// problems as data errors; everything else as transient.
func classify(err error) model.FailureKind {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsAuth() {
			return model.FailureAuthentication
		}
		return model.FailureTransient
	}

	var dataErr *api.DataError
	if errors.As(err, &dataErr) {
		return model.FailureData
	}

	var authErr *auth.Error
	if errors.As(err, &authErr) {
		return model.FailureAuthentication
	}

	var refreshErr *tokenRefreshError
	if errors.As(err, &refreshErr) {
		return model.FailureAuthentication
	}

	return model.FailureTransient
}
