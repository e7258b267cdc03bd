package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"
)

// APIError represents an HTTP-level error from the Kiwoom API.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("kiwoom api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// IsAuth returns true if the error indicates a rejected or expired token.
func (e *APIError) IsAuth() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// DataError represents a response the provider served but could not be
// used: an in-band nonzero return code or a body that does not decode.
// Never retried; the provider will answer the same way again.
type DataError struct {
	Code int
	Msg  string
	Err  error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("kiwoom data error: %v", e.Err)
	}
	return fmt.Sprintf("kiwoom data error %d: %s", e.Code, e.Msg)
}

func (e *DataError) Unwrap() error { return e.Err }

// doRequest performs a single HTTP request with the Kiwoom headers.
func (c *Client) doRequest(ctx context.Context, method, path, trID string, query url.Values) ([]byte, error) {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json;charset=UTF-8")
	if tok := c.bearer(); tok != "" {
		req.Header.Set("authorization", "Bearer "+tok)
	}
	req.Header.Set("appkey", c.appKey)
	req.Header.Set("appsecret", c.appSecret)
	if trID != "" {
		req.Header.Set("tr_id", trID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       body,
		}
	}

	return body, nil
}

// doPaced serializes the wait/request/mark cycle so concurrent callers
// can never violate the inter-call spacing. Cancellation gates the
// start of an exchange only; a request already on the wire runs to
// completion, bounded by the client timeout.
func (c *Client) doPaced(ctx context.Context, method, path, trID string, query url.Values) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pacer != nil {
		if err := c.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	body, err := c.doRequest(context.WithoutCancel(ctx), method, path, trID, query)

	// Spacing is measured from when the call returned, success or not.
	if c.pacer != nil {
		c.pacer.Mark()
	}

	return body, err
}

// doWithRetry performs a paced request with exponential backoff retry.
func (c *Client) doWithRetry(ctx context.Context, method, path, trID string, query url.Values) ([]byte, error) {
	var lastErr error
	backoff := c.retryBackoff

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Add jitter: backoff * (0.5 to 1.5)
			jitter := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			c.logger.Debug("retrying request",
				"attempt", attempt,
				"backoff", jitter,
				"path", path,
			)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(jitter):
			}

			backoff *= 2
		}

		body, err := c.doPaced(ctx, method, path, trID, query)
		if err == nil {
			return body, nil
		}

		lastErr = err

		if !retryable(ctx, err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// retryable reports whether a request error is worth repeating. HTTP
// errors follow APIError.IsRetryable; auth rejections go back to the
// caller for a token refresh. The exchange runs detached from the
// caller's context, so a deadline error from the transport is the
// client timeout and is retried like any transport failure; the loop
// stops only once the caller's own context is done.
func retryable(ctx context.Context, err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}
	if ctx.Err() != nil {
		return false
	}
	return true
}

// get performs a GET request with retries and decodes the response.
func (c *Client) get(ctx context.Context, path, trID string, query url.Values, result any) error {
	body, err := c.doWithRetry(ctx, http.MethodGet, path, trID, query)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, result); err != nil {
		return &DataError{Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	return nil
}
