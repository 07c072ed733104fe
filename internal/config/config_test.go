package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DAILY_CREDITS", "")
	t.Setenv("PROVIDER_TIMEOUT", "")
	t.Setenv("PROVIDER_STUB_MODE", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")
	t.Setenv("DB_CONN_MAX_LIFETIME", "")

	cfg := Load()

	if cfg.DailyCredits != 3 {
		t.Errorf("expected 3 daily credits, got %d", cfg.DailyCredits)
	}
	if cfg.ProviderTimeout != 120*time.Second {
		t.Errorf("expected 120s provider timeout, got %s", cfg.ProviderTimeout)
	}
	if !cfg.ProviderStubMode {
		t.Error("expected stub mode to default to true")
	}
	if cfg.DatabaseMaxOpenConns != 20 || cfg.DatabaseConnMaxLifetime != 5*time.Minute {
		t.Errorf("unexpected pool defaults: open=%d lifetime=%s", cfg.DatabaseMaxOpenConns, cfg.DatabaseConnMaxLifetime)
	}
	if cfg.SessionSecret == "" {
		t.Error("expected a development session secret")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DAILY_CREDITS", "5")
	t.Setenv("PROVIDER_TIMEOUT", "45s")
	t.Setenv("PROVIDER_STUB_MODE", "false")
	t.Setenv("APP_TIMEZONE", "UTC")
	t.Setenv("DB_MAX_OPEN_CONNS", "8")

	cfg := Load()

	if cfg.DatabaseMaxOpenConns != 8 {
		t.Errorf("expected 8 open conns, got %d", cfg.DatabaseMaxOpenConns)
	}

	if cfg.DailyCredits != 5 {
		t.Errorf("expected 5 daily credits, got %d", cfg.DailyCredits)
	}
	if cfg.ProviderTimeout != 45*time.Second {
		t.Errorf("expected 45s provider timeout, got %s", cfg.ProviderTimeout)
	}
	if cfg.ProviderStubMode {
		t.Error("expected stub mode to be disabled")
	}
	if cfg.Location() != time.UTC {
		t.Errorf("expected UTC location, got %s", cfg.Location())
	}
}

func TestLoadInvalidValuesFallBack(t *testing.T) {
	t.Setenv("DAILY_CREDITS", "many")
	t.Setenv("PROVIDER_TIMEOUT", "soon")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	cfg := Load()

	if cfg.DailyCredits != 3 {
		t.Errorf("expected fallback to 3, got %d", cfg.DailyCredits)
	}
	if cfg.ProviderTimeout != 120*time.Second {
		t.Errorf("expected fallback to 120s, got %s", cfg.ProviderTimeout)
	}
	if cfg.Location() != time.Local {
		t.Errorf("expected fallback to local time, got %s", cfg.Location())
	}
}
