package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *CollectorConfig) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Kiwoom.AppKey == "" {
		return errors.New("kiwoom.app_key is required")
	}
	if c.Kiwoom.SecretKey == "" {
		return errors.New("kiwoom.secret_key is required")
	}
	if c.Kiwoom.Timeout <= 0 {
		return errors.New("kiwoom.timeout must be positive")
	}
	if c.Kiwoom.MaxRetries < 0 {
		return errors.New("kiwoom.max_retries must be >= 0")
	}
	if c.Kiwoom.RetryBackoff <= 0 {
		return errors.New("kiwoom.retry_backoff must be positive")
	}
	if c.Kiwoom.RateLimitDelay < 0 {
		return errors.New("kiwoom.rate_limit_delay must be >= 0")
	}

	switch strings.ToUpper(c.Collection.Market) {
	case "KOSPI", "KOSDAQ", "KONEX":
	default:
		return fmt.Errorf("collection.market must be KOSPI, KOSDAQ, or KONEX, got %q", c.Collection.Market)
	}
	if c.Collection.DateRangeDays < 1 {
		return errors.New("collection.date_range_days must be >= 1")
	}
	if err := validateDate("collection.start_date", c.Collection.StartDate); err != nil {
		return err
	}
	if err := validateDate("collection.end_date", c.Collection.EndDate); err != nil {
		return err
	}
	if c.Collection.StartDate != "" && c.Collection.EndDate != "" {
		if c.Collection.StartDate > c.Collection.EndDate {
			return fmt.Errorf("collection.start_date %s is after end_date %s",
				c.Collection.StartDate, c.Collection.EndDate)
		}
	}

	if c.Database.Enabled {
		if err := c.Database.Postgres.validate("database.postgres"); err != nil {
			return err
		}
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	}

	if c.Output.Dir == "" {
		return errors.New("output.dir is required")
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

// validateDate checks YYYYMMDD form; empty is allowed (defaulted elsewhere).
func validateDate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, value); err != nil {
		return fmt.Errorf("%s must be YYYYMMDD, got %q", field, value)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
