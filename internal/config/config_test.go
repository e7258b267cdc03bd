package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: test-collector
kiwoom:
  app_key: test-app-key
  secret_key: test-secret-key
  use_test_server: false
collection:
  market: KOSDAQ
  instruments: ["005930", "000660"]
output:
  dir: out
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-collector" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-collector")
	}
	if cfg.Kiwoom.AppKey != "test-app-key" {
		t.Errorf("Kiwoom.AppKey = %q, want %q", cfg.Kiwoom.AppKey, "test-app-key")
	}
	if cfg.Kiwoom.UseTest() {
		t.Error("UseTest() = true, want false when use_test_server: false")
	}
	if cfg.Collection.Market != "KOSDAQ" {
		t.Errorf("Collection.Market = %q, want %q", cfg.Collection.Market, "KOSDAQ")
	}
	if len(cfg.Collection.Instruments) != 2 || cfg.Collection.Instruments[0] != "005930" {
		t.Errorf("Collection.Instruments = %v, want [005930 000660]", cfg.Collection.Instruments)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_KIWOOM_APP_KEY", "key-from-env")
	t.Setenv("TEST_KIWOOM_SECRET_KEY", "secret-from-env")

	yaml := `
instance:
  id: test-collector
kiwoom:
  app_key: ${TEST_KIWOOM_APP_KEY}
  secret_key: ${TEST_KIWOOM_SECRET_KEY}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Kiwoom.AppKey != "key-from-env" {
		t.Errorf("Kiwoom.AppKey = %q, want %q", cfg.Kiwoom.AppKey, "key-from-env")
	}
	if cfg.Kiwoom.SecretKey != "secret-from-env" {
		t.Errorf("Kiwoom.SecretKey = %q, want %q", cfg.Kiwoom.SecretKey, "secret-from-env")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: test-collector
kiwoom:
  app_key: k
  secret_key: s
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	// Check defaults were applied
	if cfg.Kiwoom.BaseURL != DefaultTestHost {
		t.Errorf("Kiwoom.BaseURL = %q, want default %q", cfg.Kiwoom.BaseURL, DefaultTestHost)
	}
	if cfg.Kiwoom.Timeout != DefaultAPITimeout {
		t.Errorf("Kiwoom.Timeout = %v, want default %v", cfg.Kiwoom.Timeout, DefaultAPITimeout)
	}
	if cfg.Kiwoom.MaxRetries != DefaultMaxRetries {
		t.Errorf("Kiwoom.MaxRetries = %d, want default %d", cfg.Kiwoom.MaxRetries, DefaultMaxRetries)
	}
	if cfg.Kiwoom.RetryBackoff != DefaultRetryBackoff {
		t.Errorf("Kiwoom.RetryBackoff = %v, want default %v", cfg.Kiwoom.RetryBackoff, DefaultRetryBackoff)
	}
	if cfg.Kiwoom.RateLimitDelay != DefaultRateLimitDelay {
		t.Errorf("Kiwoom.RateLimitDelay = %v, want default %v", cfg.Kiwoom.RateLimitDelay, DefaultRateLimitDelay)
	}
	if cfg.Collection.Market != DefaultMarket {
		t.Errorf("Collection.Market = %q, want default %q", cfg.Collection.Market, DefaultMarket)
	}
	if cfg.Collection.DateRangeDays != DefaultDateRangeDays {
		t.Errorf("Collection.DateRangeDays = %d, want default %d", cfg.Collection.DateRangeDays, DefaultDateRangeDays)
	}
	if cfg.Output.Dir != DefaultOutputDir {
		t.Errorf("Output.Dir = %q, want default %q", cfg.Output.Dir, DefaultOutputDir)
	}
	if cfg.Health.Port != DefaultHealthPort {
		t.Errorf("Health.Port = %d, want default %d", cfg.Health.Port, DefaultHealthPort)
	}
	if cfg.Database.Postgres.Port != DefaultDBPort {
		t.Errorf("Database.Postgres.Port = %d, want default %d", cfg.Database.Postgres.Port, DefaultDBPort)
	}
}

func TestLoadProductionHost(t *testing.T) {
	yaml := `
instance:
  id: test-collector
kiwoom:
  app_key: k
  secret_key: s
  use_test_server: false
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Kiwoom.BaseURL != DefaultProdHost {
		t.Errorf("Kiwoom.BaseURL = %q, want %q", cfg.Kiwoom.BaseURL, DefaultProdHost)
	}
}

func TestValidate(t *testing.T) {
	validKiwoom := KiwoomConfig{
		AppKey:         "k",
		SecretKey:      "s",
		BaseURL:        DefaultTestHost,
		Timeout:        30 * time.Second,
		MaxRetries:     3,
		RetryBackoff:   5 * time.Second,
		RateLimitDelay: time.Second,
	}
	validCollection := CollectionConfig{Market: "KOSPI", DateRangeDays: 30}

	tests := []struct {
		name    string
		cfg     CollectorConfig
		wantErr string
	}{
		{
			name:    "missing instance id",
			cfg:     CollectorConfig{},
			wantErr: "instance.id is required",
		},
		{
			name: "missing app key",
			cfg: CollectorConfig{
				Instance: InstanceConfig{ID: "test"},
			},
			wantErr: "kiwoom.app_key is required",
		},
		{
			name: "missing secret key",
			cfg: CollectorConfig{
				Instance: InstanceConfig{ID: "test"},
				Kiwoom:   KiwoomConfig{AppKey: "k"},
			},
			wantErr: "kiwoom.secret_key is required",
		},
		{
			name: "negative retries",
			cfg: CollectorConfig{
				Instance: InstanceConfig{ID: "test"},
				Kiwoom: KiwoomConfig{
					AppKey: "k", SecretKey: "s", Timeout: time.Second, MaxRetries: -1,
				},
			},
			wantErr: "kiwoom.max_retries must be >= 0",
		},
		{
			name: "unknown market",
			cfg: CollectorConfig{
				Instance:   InstanceConfig{ID: "test"},
				Kiwoom:     validKiwoom,
				Collection: CollectionConfig{Market: "NASDAQ", DateRangeDays: 30},
			},
			wantErr: `collection.market must be KOSPI, KOSDAQ, or KONEX, got "NASDAQ"`,
		},
		{
			name: "malformed start date",
			cfg: CollectorConfig{
				Instance:   InstanceConfig{ID: "test"},
				Kiwoom:     validKiwoom,
				Collection: CollectionConfig{Market: "KOSPI", DateRangeDays: 30, StartDate: "2024-11-08"},
			},
			wantErr: `collection.start_date must be YYYYMMDD, got "2024-11-08"`,
		},
		{
			name: "inverted date range",
			cfg: CollectorConfig{
				Instance: InstanceConfig{ID: "test"},
				Kiwoom:   validKiwoom,
				Collection: CollectionConfig{
					Market: "KOSPI", DateRangeDays: 30,
					StartDate: "20241208", EndDate: "20241108",
				},
			},
			wantErr: "collection.start_date 20241208 is after end_date 20241108",
		},
		{
			name: "database enabled without password",
			cfg: CollectorConfig{
				Instance:   InstanceConfig{ID: "test"},
				Kiwoom:     validKiwoom,
				Collection: validCollection,
				Database: DatabaseConfig{
					Enabled:   true,
					Postgres:  DBConfig{Host: "localhost", Name: "db", User: "user", MaxConns: 10},
					Timescale: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 10},
				},
			},
			wantErr: "database.postgres.password is required",
		},
		{
			name: "min_conns exceeds max_conns",
			cfg: CollectorConfig{
				Instance:   InstanceConfig{ID: "test"},
				Kiwoom:     validKiwoom,
				Collection: validCollection,
				Database: DatabaseConfig{
					Enabled:   true,
					Postgres:  DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5, MinConns: 10},
					Timescale: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 5},
				},
			},
			wantErr: "database.postgres.min_conns (10) cannot exceed max_conns (5)",
		},
		{
			name: "bad health port",
			cfg: CollectorConfig{
				Instance:   InstanceConfig{ID: "test"},
				Kiwoom:     validKiwoom,
				Collection: validCollection,
				Output:     OutputConfig{Dir: "out"},
				Health:     HealthConfig{Port: 70000},
			},
			wantErr: "health.port must be between 1 and 65535, got 70000",
		},
		{
			name: "valid config",
			cfg: CollectorConfig{
				Instance:   InstanceConfig{ID: "test"},
				Kiwoom:     validKiwoom,
				Collection: validCollection,
				Output:     OutputConfig{Dir: "out"},
				Health:     HealthConfig{Port: 8080},
			},
			wantErr: "",
		},
		{
			name: "database disabled skips db validation",
			cfg: CollectorConfig{
				Instance:   InstanceConfig{ID: "test"},
				Kiwoom:     validKiwoom,
				Collection: validCollection,
				Output:     OutputConfig{Dir: "out"},
				Health:     HealthConfig{Port: 8080},
				Database:   DatabaseConfig{Enabled: false},
			},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestWindow(t *testing.T) {
	now := time.Date(2024, 12, 8, 15, 30, 0, 0, time.UTC)

	t.Run("explicit dates", func(t *testing.T) {
		c := CollectionConfig{StartDate: "20241108", EndDate: "20241208"}
		start, end, err := c.Window(now)
		if err != nil {
			t.Fatalf("Window failed: %v", err)
		}
		if got := start.Format("20060102"); got != "20241108" {
			t.Errorf("start = %s, want 20241108", got)
		}
		if got := end.Format("20060102"); got != "20241208" {
			t.Errorf("end = %s, want 20241208", got)
		}
	})

	t.Run("empty dates default to trailing window", func(t *testing.T) {
		c := CollectionConfig{DateRangeDays: 30}
		start, end, err := c.Window(now)
		if err != nil {
			t.Fatalf("Window failed: %v", err)
		}
		if got := end.Format("20060102"); got != "20241208" {
			t.Errorf("end = %s, want today 20241208", got)
		}
		if got := start.Format("20060102"); got != "20241108" {
			t.Errorf("start = %s, want 20241108", got)
		}
	})

	t.Run("inverted range rejected", func(t *testing.T) {
		c := CollectionConfig{StartDate: "20241208", EndDate: "20241108"}
		if _, _, err := c.Window(now); err == nil {
			t.Error("expected error for inverted range, got nil")
		}
	})
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
