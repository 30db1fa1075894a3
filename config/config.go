// Package config loads Ghillie's runtime configuration from environment
// variables, following the teacher's env-var-with-fallback pattern.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// StatusModelBackend selects the status-model implementation.
type StatusModelBackend string

const (
	BackendMock   StatusModelBackend = "mock"
	BackendOpenAI StatusModelBackend = "openai"
)

// Config holds every environment-sourced setting Ghillie needs.
type Config struct {
	DatabaseURL string // GHILLIE_DATABASE_URL, empty => health-only mode
	Host        string // GHILLIE_HOST
	Port        int    // GHILLIE_PORT

	LogLevel        string // normalized, see NormalizeLogLevel
	LogLevelInvalid bool

	GitHubToken string // GHILLIE_GITHUB_TOKEN

	StatusModelBackend StatusModelBackend

	OpenAIAPIKey      string
	OpenAIEndpoint    string
	OpenAIModel       string
	OpenAITemperature float64
	OpenAIMaxTokens   int
	OpenAITimeout     time.Duration

	ReportingWindowDays int
	ReportSinkPath      string

	InitialLookback  time.Duration
	Overlap          time.Duration
	MaxEventsPerKind int
	StalledThreshold time.Duration

	RedisURL string
}

// Load reads configuration from the environment and an optional .env file,
// returning an error for any invalid required value. Callers map a non-nil
// error to process exit code 1, matching spec.md's exit code contract.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL: os.Getenv("GHILLIE_DATABASE_URL"),
		Host:        getEnv("GHILLIE_HOST", "0.0.0.0"),
		GitHubToken: os.Getenv("GHILLIE_GITHUB_TOKEN"),

		StatusModelBackend: StatusModelBackend(strings.ToLower(getEnv("GHILLIE_STATUS_MODEL_BACKEND", "mock"))),

		OpenAIAPIKey:   os.Getenv("GHILLIE_OPENAI_API_KEY"),
		OpenAIEndpoint: getEnv("GHILLIE_OPENAI_ENDPOINT", "https://api.openai.com/v1"),
		OpenAIModel:    getEnv("GHILLIE_OPENAI_MODEL", "gpt-4o-mini"),
		OpenAITimeout:  120 * time.Second,

		ReportSinkPath: os.Getenv("GHILLIE_REPORT_SINK_PATH"),

		RedisURL: getEnv("GHILLIE_REDIS_URL", ""),
	}

	port, err := getEnvInt("GHILLIE_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("GHILLIE_PORT out of range 1..65535: %d", port)
	}
	cfg.Port = port

	level, invalid := NormalizeLogLevel(os.Getenv("GHILLIE_LOG_LEVEL"))
	cfg.LogLevel = level
	cfg.LogLevelInvalid = invalid

	temp, err := getEnvFloat("GHILLIE_OPENAI_TEMPERATURE", 0.7)
	if err != nil {
		return nil, err
	}
	if temp < 0 || temp > 2 {
		return nil, fmt.Errorf("GHILLIE_OPENAI_TEMPERATURE out of range 0..2: %v", temp)
	}
	cfg.OpenAITemperature = temp

	maxTokens, err := getEnvInt("GHILLIE_OPENAI_MAX_TOKENS", 1024)
	if err != nil {
		return nil, err
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("GHILLIE_OPENAI_MAX_TOKENS must be > 0: %d", maxTokens)
	}
	cfg.OpenAIMaxTokens = maxTokens

	windowDays, err := getEnvInt("GHILLIE_REPORTING_WINDOW_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.ReportingWindowDays = windowDays

	lookbackDays, err := getEnvInt("GHILLIE_INITIAL_LOOKBACK_DAYS", 7)
	if err != nil {
		return nil, err
	}
	cfg.InitialLookback = time.Duration(lookbackDays) * 24 * time.Hour

	overlapMinutes, err := getEnvInt("GHILLIE_OVERLAP_MINUTES", 5)
	if err != nil {
		return nil, err
	}
	cfg.Overlap = time.Duration(overlapMinutes) * time.Minute

	maxEvents, err := getEnvInt("GHILLIE_MAX_EVENTS_PER_KIND", 500)
	if err != nil {
		return nil, err
	}
	cfg.MaxEventsPerKind = maxEvents

	stalledMinutes, err := getEnvInt("GHILLIE_STALLED_THRESHOLD_MINUTES", 24*60)
	if err != nil {
		return nil, err
	}
	cfg.StalledThreshold = time.Duration(stalledMinutes) * time.Minute

	return cfg, nil
}

// ValidateForIngestion checks the prerequisites for running the ingestion
// worker.
func (c *Config) ValidateForIngestion() error {
	if strings.TrimSpace(c.GitHubToken) == "" {
		return fmt.Errorf("GHILLIE_GITHUB_TOKEN is required for ingestion")
	}
	return nil
}

// ValidateForReporting checks the prerequisites for running the reporting
// service with the configured status-model backend.
func (c *Config) ValidateForReporting() error {
	switch c.StatusModelBackend {
	case BackendMock:
		return nil
	case BackendOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			return fmt.Errorf("GHILLIE_OPENAI_API_KEY is required when GHILLIE_STATUS_MODEL_BACKEND=openai")
		}
		return nil
	default:
		return fmt.Errorf("GHILLIE_STATUS_MODEL_BACKEND must be one of mock, openai, got %q", c.StatusModelBackend)
	}
}

// HealthOnly reports whether no database is configured, in which case only
// the health endpoints are served.
func (c *Config) HealthOnly() bool { return c.DatabaseURL == "" }

var validLogLevels = map[string]bool{
	"TRACE": true, "DEBUG": true, "INFO": true, "WARN": true,
	"WARNING": true, "ERROR": true, "CRITICAL": true,
}

// NormalizeLogLevel upper-cases and validates a raw log level string,
// falling back to INFO with an invalid flag, matching
// normalize_log_level() in the original implementation.
func NormalizeLogLevel(level string) (string, bool) {
	if strings.TrimSpace(level) == "" {
		return "INFO", true
	}
	normalized := strings.ToUpper(strings.TrimSpace(level))
	if validLogLevels[normalized] {
		return normalized, false
	}
	return "INFO", true
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q: %w", key, v, err)
	}
	return i, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number, got %q: %w", key, v, err)
	}
	return f, nil
}
