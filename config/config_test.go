package config_test

import (
	"os"
	"testing"

	"github.com/ghillie/ghillie/config"
)

func clearGhillieEnv(t *testing.T) {
	t.Helper()
	for _, env := range os.Environ() {
		for _, key := range []string{
			"GHILLIE_DATABASE_URL", "GHILLIE_HOST", "GHILLIE_PORT", "GHILLIE_LOG_LEVEL",
			"GHILLIE_GITHUB_TOKEN", "GHILLIE_STATUS_MODEL_BACKEND", "GHILLIE_OPENAI_API_KEY",
			"GHILLIE_OPENAI_TEMPERATURE", "GHILLIE_OPENAI_MAX_TOKENS", "GHILLIE_REPORTING_WINDOW_DAYS",
		} {
			if len(env) >= len(key) && env[:len(key)] == key {
				os.Unsetenv(key)
			}
		}
	}
}

func TestLoadDefaults(t *testing.T) {
	clearGhillieEnv(t)
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host = %q, want 0.0.0.0", cfg.Host)
	}
	if cfg.LogLevel != "INFO" {
		t.Errorf("LogLevel = %q, want INFO", cfg.LogLevel)
	}
	if !cfg.HealthOnly() {
		t.Errorf("HealthOnly() = false, want true when GHILLIE_DATABASE_URL unset")
	}
}

func TestLoadInvalidPort(t *testing.T) {
	clearGhillieEnv(t)
	os.Setenv("GHILLIE_PORT", "99999")
	defer os.Unsetenv("GHILLIE_PORT")

	if _, err := config.Load(); err == nil {
		t.Fatal("Load() expected error for out-of-range port")
	}
}

func TestNormalizeLogLevel(t *testing.T) {
	cases := []struct {
		in        string
		wantLevel string
		wantBad   bool
	}{
		{"", "INFO", true},
		{"debug", "DEBUG", false},
		{"  WARN  ", "WARN", false},
		{"bogus", "INFO", true},
	}
	for _, tc := range cases {
		level, invalid := config.NormalizeLogLevel(tc.in)
		if level != tc.wantLevel || invalid != tc.wantBad {
			t.Errorf("NormalizeLogLevel(%q) = (%q, %v), want (%q, %v)", tc.in, level, invalid, tc.wantLevel, tc.wantBad)
		}
	}
}

func TestValidateForReporting(t *testing.T) {
	cfg := &config.Config{StatusModelBackend: config.BackendOpenAI}
	if err := cfg.ValidateForReporting(); err == nil {
		t.Error("expected error when openai backend has no API key")
	}
	cfg.OpenAIAPIKey = "sk-test"
	if err := cfg.ValidateForReporting(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
