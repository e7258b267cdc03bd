package config

import (
	"fmt"
	"time"
)

// CollectorConfig is the root configuration for a collector instance.
type CollectorConfig struct {
	Instance   InstanceConfig   `yaml:"instance"`
	Kiwoom     KiwoomConfig     `yaml:"kiwoom"`
	Collection CollectionConfig `yaml:"collection"`
	Database   DatabaseConfig   `yaml:"database"`
	Output     OutputConfig     `yaml:"output"`
	Health     HealthConfig     `yaml:"health"`
}

// InstanceConfig identifies this collector.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// KiwoomConfig holds Kiwoom API settings.
type KiwoomConfig struct {
	AppKey    string `yaml:"app_key"`
	SecretKey string `yaml:"secret_key"`

	// UseTestServer selects the mock endpoint when true (the default).
	// BaseURL, when set, overrides both hosts.
	UseTestServer *bool  `yaml:"use_test_server"`
	BaseURL       string `yaml:"base_url"`

	Timeout        time.Duration `yaml:"timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	RateLimitDelay time.Duration `yaml:"rate_limit_delay"`
}

// UseTest reports whether the mock endpoint should be used. Defaults to true;
// the production host must be opted into.
func (k *KiwoomConfig) UseTest() bool {
	return k.UseTestServer == nil || *k.UseTestServer
}

// CollectionConfig holds instrument selection and date window settings.
type CollectionConfig struct {
	Market string `yaml:"market"`

	// Instruments lists explicit codes to collect. Empty means query the
	// reference store.
	Instruments []string `yaml:"instruments"`

	// StartDate/EndDate in YYYYMMDD form. Empty dates resolve to the
	// trailing DateRangeDays window ending today.
	StartDate     string `yaml:"start_date"`
	EndDate       string `yaml:"end_date"`
	DateRangeDays int    `yaml:"date_range_days"`

	// ActiveOnly limits store-sourced instruments to non-delisted ones
	// (the default).
	ActiveOnly *bool `yaml:"active_only"`
}

// OnlyActive reports whether delisted instruments are excluded. Defaults to true.
func (c *CollectionConfig) OnlyActive() bool {
	return c.ActiveOnly == nil || *c.ActiveOnly
}

// Window resolves the requested date range against now.
func (c *CollectionConfig) Window(now time.Time) (start, end time.Time, err error) {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	end = today
	if c.EndDate != "" {
		end, err = time.Parse(dateLayout, c.EndDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse end_date %q: %w", c.EndDate, err)
		}
	}

	days := c.DateRangeDays
	if days <= 0 {
		days = DefaultDateRangeDays
	}
	start = end.AddDate(0, 0, -days)
	if c.StartDate != "" {
		start, err = time.Parse(dateLayout, c.StartDate)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse start_date %q: %w", c.StartDate, err)
		}
	}

	if start.After(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("start_date %s is after end_date %s",
			start.Format(dateLayout), end.Format(dateLayout))
	}
	return start, end, nil
}

// dateLayout is the provider's YYYYMMDD date form.
const dateLayout = "20060102"

// DatabaseConfig holds the two persistence pools: postgres for instrument
// reference data, timescale for daily bars. Disabled means CSV-only output.
type DatabaseConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Postgres  DBConfig `yaml:"postgres"`
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// OutputConfig holds CSV dataset settings.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
