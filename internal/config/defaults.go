package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultTestHost       = "https://mockapi.kiwoom.com"
	DefaultProdHost       = "https://api.kiwoom.com"
	DefaultAPITimeout     = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultRetryBackoff   = 5 * time.Second
	DefaultRateLimitDelay = 1 * time.Second
	DefaultMarket         = "KOSPI"
	DefaultDateRangeDays  = 30
	DefaultOutputDir      = "data/raw/korean_stocks/kiwoom"
	DefaultHealthPort     = 8080
	DefaultDBPort         = 5432
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 10
	DefaultMinConns       = 2
)

func (c *CollectorConfig) applyDefaults() {
	// Kiwoom API defaults
	if c.Kiwoom.BaseURL == "" {
		if c.Kiwoom.UseTest() {
			c.Kiwoom.BaseURL = DefaultTestHost
		} else {
			c.Kiwoom.BaseURL = DefaultProdHost
		}
	}
	if c.Kiwoom.Timeout == 0 {
		c.Kiwoom.Timeout = DefaultAPITimeout
	}
	if c.Kiwoom.MaxRetries == 0 {
		c.Kiwoom.MaxRetries = DefaultMaxRetries
	}
	if c.Kiwoom.RetryBackoff == 0 {
		c.Kiwoom.RetryBackoff = DefaultRetryBackoff
	}
	if c.Kiwoom.RateLimitDelay == 0 {
		c.Kiwoom.RateLimitDelay = DefaultRateLimitDelay
	}

	// Collection defaults
	if c.Collection.Market == "" {
		c.Collection.Market = DefaultMarket
	}
	if c.Collection.DateRangeDays == 0 {
		c.Collection.DateRangeDays = DefaultDateRangeDays
	}

	// Database defaults
	applyDBDefaults(&c.Database.Postgres)
	applyDBDefaults(&c.Database.Timescale)

	// Output defaults
	if c.Output.Dir == "" {
		c.Output.Dir = DefaultOutputDir
	}

	// Health defaults
	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
