// Package auth provides Kiwoom API authentication using OAuth2 access tokens.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// tokenPath is the Kiwoom OAuth2 token endpoint path.
const tokenPath = "/oauth2/token"

// DefaultTokenLifetime is assumed when the provider omits or mangles
// the expiry timestamp.
const DefaultTokenLifetime = 6 * time.Hour

// validityMargin is subtracted from the expiry so a token is refreshed
// before it actually lapses mid-request.
const validityMargin = 30 * time.Second

// kst is the zone of the provider's expiry timestamps.
var kst = time.FixedZone("KST", 9*60*60)

// Credentials holds the app key pair issued by the Kiwoom developer portal.
type Credentials struct {
	AppKey    string
	SecretKey string
}

// Token is an issued bearer token with its validity window.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the token can still be used at the given time.
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt.Add(-validityMargin))
}

// Error is a rejection from the token endpoint: a non-200 status or an
// in-band nonzero return code.
type Error struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("token request failed: status %d, code %d: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("token request failed: status %d, code %d", e.StatusCode, e.Code)
}

// Provider acquires access tokens from the Kiwoom OAuth2 endpoint.
type Provider struct {
	baseURL    string
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// WithLogger sets the logger for the provider.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider creates a token provider against the given API host.
func NewProvider(baseURL string, creds Credentials, opts ...ProviderOption) *Provider {
	p := &Provider{
		baseURL:    baseURL,
		creds:      creds,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

type tokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	SecretKey string `json:"secretkey"`
}

type tokenResponse struct {
	ReturnCode int    `json:"return_code"`
	ReturnMsg  string `json:"return_msg"`
	TokenType  string `json:"token_type"`
	Token      string `json:"token"`
	ExpiresDt  string `json:"expires_dt"`
}

// Acquire requests a fresh access token. Callers decide when to reuse
// the returned token and when to come back for another.
func (p *Provider) Acquire(ctx context.Context) (Token, error) {
	body, err := json.Marshal(tokenRequest{
		GrantType: "client_credentials",
		AppKey:    p.creds.AppKey,
		SecretKey: p.creds.SecretKey,
	})
	if err != nil {
		return Token{}, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+tokenPath, bytes.NewReader(body))
	if err != nil {
		return Token{}, fmt.Errorf("create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json;charset=UTF-8")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, fmt.Errorf("read token response: %w", err)
	}

	var tr tokenResponse
	if resp.StatusCode != http.StatusOK {
		// Surface the in-band message when the body carries one.
		_ = json.Unmarshal(respBody, &tr)
		return Token{}, &Error{StatusCode: resp.StatusCode, Code: tr.ReturnCode, Message: tr.ReturnMsg}
	}

	if err := json.Unmarshal(respBody, &tr); err != nil {
		return Token{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.ReturnCode != 0 {
		return Token{}, &Error{StatusCode: resp.StatusCode, Code: tr.ReturnCode, Message: tr.ReturnMsg}
	}
	if tr.Token == "" {
		return Token{}, &Error{StatusCode: resp.StatusCode, Message: "response carried no token"}
	}

	issued := p.now()
	tok := Token{
		Value:     tr.Token,
		IssuedAt:  issued,
		ExpiresAt: parseExpiry(tr.ExpiresDt, issued),
	}
	p.logger.Debug("access token acquired", "expires_at", tok.ExpiresAt)
	return tok, nil
}

// parseExpiry reads the provider's YYYYMMDDHHMMSS expiry, which is
// wall-clock KST. A missing or malformed value falls back to a fixed
// lifetime from issuance.
func parseExpiry(expiresDt string, issued time.Time) time.Time {
	if expiresDt != "" {
		if exp, err := time.ParseInLocation("20060102150405", expiresDt, kst); err == nil {
			return exp
		}
	}
	return issued.Add(DefaultTokenLifetime)
}
