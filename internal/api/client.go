package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Client provides access to the Kiwoom REST API.
type Client struct {
	baseURL    string
	appKey     string
	appSecret  string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	// pacer spaces out data requests; mu keeps at most one in flight.
	pacer *Pacer
	mu    sync.Mutex

	tokenMu sync.RWMutex
	token   string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new REST API client.
func NewClient(baseURL, appKey, appSecret string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:   baseURL,
		appKey:    appKey,
		appSecret: appSecret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: 5 * time.Second,
		pacer:        NewPacer(time.Second),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithPacer sets the pacer that spaces out data requests.
func WithPacer(p *Pacer) ClientOption {
	return func(c *Client) {
		c.pacer = p
	}
}

// SetToken installs the bearer token sent with data requests. The caller
// owns the refresh policy; the client only transmits what it was given.
func (c *Client) SetToken(token string) {
	c.tokenMu.Lock()
	c.token = token
	c.tokenMu.Unlock()
}

func (c *Client) bearer() string {
	c.tokenMu.RLock()
	defer c.tokenMu.RUnlock()
	return c.token
}
