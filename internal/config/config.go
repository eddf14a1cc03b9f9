// Package config provides application configuration management.
// It loads settings from environment variables and provides defaults for
// the HTTP server, the chat pipeline, and the optional integrations.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server Configuration
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	ServerName      string
	InstanceID      string
	TurnTimeout     time.Duration

	// Data Configuration
	DataDir string // Data directory for SQLite database

	// Session Configuration
	SessionIdleTTL    time.Duration // Idle time before an in-memory session is evicted (default: 30m)
	SessionMaxEntries int           // Upper bound on in-memory sessions (default: 10000)
	RetrievalTopN     int           // Candidates fetched per retrieval (default: 10)

	// Rate Limits (Token Bucket Algorithm)
	UserRateBurst  float64 // Maximum burst tokens per user (default: 10)
	UserRateRefill float64 // Tokens refilled per second (default: 0.2 = 1 per 5s)
	UserRateDaily  int     // Maximum chat turns per user per day (default: 200, 0 = disabled)

	// Embedding Gateway
	EmbeddingURL        string // Base URL of the embedding gateway (POST {texts})
	EmbeddingDimensions int    // Expected vector dimension (default: 384)
	EmbeddingRPM        float64
	EmbeddingBatchSize  int

	// LLM Configuration
	LLM LLMConfig

	// Integrations
	R2          R2Config
	Sentry      SentryConfig
	BetterStack BetterStackConfig

	// Metrics Authentication
	MetricsAuthEnabled bool
	MetricsUsername    string // Username for /metrics endpoint Basic Auth (default: "prometheus")
	MetricsPassword    string // Password for /metrics endpoint Basic Auth
}

// LLMConfig lists the configured providers in fallback order and the models
// to try for each. Empty model lists fall back to the genai package defaults.
type LLMConfig struct {
	Providers      []string
	GeminiAPIKey   string
	GroqAPIKey     string
	CerebrasAPIKey string
	OpenAIAPIKey   string
	OpenAIEndpoint string
	GeminiModels   []string
	GroqModels     []string
	CerebrasModels []string
	OpenAIModels   []string
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
}

// R2Config configures snapshot backups to Cloudflare R2.
type R2Config struct {
	Enabled          bool
	AccountID        string
	AccessKeyID      string
	SecretAccessKey  string
	BucketName       string
	SnapshotKey      string
	SnapshotInterval time.Duration
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool
	Token       string
	Host        string
	Environment string
	Release     string
	SampleRate  float64
}

// BetterStackConfig configures remote log shipping.
type BetterStackConfig struct {
	Enabled  bool
	Token    string
	Endpoint string
}

// Load reads configuration from environment variables
// It attempts to load .env file first, then reads from env vars
func Load() (*Config, error) {
	// Try to load .env file (ignore error if file doesn't exist)
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv(EnvPort, "10000"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, GracefulShutdown),
		ServerName:      getEnv(EnvServerName, "course-advisor"),
		InstanceID:      getEnv(EnvInstanceID, hostname()),
		TurnTimeout:     getDurationEnv(EnvTurnTimeout, TurnProcessing),

		DataDir: getEnv(EnvDataDir, getDefaultDataDir()),

		SessionIdleTTL:    getDurationEnv(EnvSessionIdleTTL, 30*time.Minute),
		SessionMaxEntries: getIntEnv(EnvSessionMaxEntries, 10000),
		RetrievalTopN:     getIntEnv(EnvRetrievalTopN, 10),

		UserRateBurst:  getFloatEnv(EnvUserRateBurst, 10.0),
		UserRateRefill: getFloatEnv(EnvUserRateRefill, 0.2),
		UserRateDaily:  getIntEnv(EnvUserRateDaily, 200),

		EmbeddingURL:        getEnv(EnvEmbeddingURL, "http://localhost:8001/embed"),
		EmbeddingDimensions: getIntEnv(EnvEmbeddingDimensions, 384),
		EmbeddingRPM:        getFloatEnv(EnvEmbeddingRPM, 600),
		EmbeddingBatchSize:  getIntEnv(EnvEmbeddingBatchSize, 100),

		LLM: LLMConfig{
			Providers:      getListEnv(EnvLLMProviders, []string{"gemini", "groq", "cerebras"}),
			GeminiAPIKey:   getEnv(EnvGeminiAPIKey, ""),
			GroqAPIKey:     getEnv(EnvGroqAPIKey, ""),
			CerebrasAPIKey: getEnv(EnvCerebrasAPIKey, ""),
			OpenAIAPIKey:   getEnv(EnvOpenAIAPIKey, ""),
			OpenAIEndpoint: getEnv(EnvOpenAIEndpoint, ""),
			GeminiModels:   getListEnv(EnvGeminiModels, nil),
			GroqModels:     getListEnv(EnvGroqModels, nil),
			CerebrasModels: getListEnv(EnvCerebrasModels, nil),
			OpenAIModels:   getListEnv(EnvOpenAIModels, nil),
			MaxAttempts:    getIntEnv(EnvLLMMaxAttempts, 2),
			InitialDelay:   getDurationEnv(EnvLLMInitialDelay, 500*time.Millisecond),
			MaxDelay:       getDurationEnv(EnvLLMMaxDelay, 3*time.Second),
		},

		R2: R2Config{
			Enabled:          getBoolEnv(EnvR2Enabled, false),
			AccountID:        getEnv(EnvR2AccountID, ""),
			AccessKeyID:      getEnv(EnvR2AccessKeyID, ""),
			SecretAccessKey:  getEnv(EnvR2SecretAccessKey, ""),
			BucketName:       getEnv(EnvR2BucketName, ""),
			SnapshotKey:      getEnv(EnvR2SnapshotKey, "snapshots/advisor.db.zst"),
			SnapshotInterval: getDurationEnv(EnvR2SnapshotEvery, 6*time.Hour),
		},

		Sentry: SentryConfig{
			Enabled:     getBoolEnv(EnvSentryEnabled, false),
			Token:       getEnv(EnvSentryToken, ""),
			Host:        getEnv(EnvSentryHost, ""),
			Environment: getEnv(EnvSentryEnvironment, "production"),
			Release:     getEnv(EnvSentryRelease, ""),
			SampleRate:  getFloatEnv(EnvSentrySampleRate, 1.0),
		},

		BetterStack: BetterStackConfig{
			Enabled:  getBoolEnv(EnvBetterStackEnabled, false),
			Token:    getEnv(EnvBetterStackToken, ""),
			Endpoint: getEnv(EnvBetterStackEndpoint, ""),
		},

		MetricsAuthEnabled: getBoolEnv(EnvMetricsAuthEnabled, false),
		MetricsUsername:    getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword:    getEnv(EnvMetricsPassword, ""),
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if required configuration values are set
func (c *Config) Validate() error {
	var errs []error

	if c.Port == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvPort))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("%s is required", EnvDataDir))
	}
	if c.TurnTimeout <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvTurnTimeout, c.TurnTimeout))
	}
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %v", EnvSessionIdleTTL, c.SessionIdleTTL))
	}
	if c.SessionMaxEntries <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvSessionMaxEntries, c.SessionMaxEntries))
	}
	if c.RetrievalTopN <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvRetrievalTopN, c.RetrievalTopN))
	}
	if c.UserRateBurst <= 0 || c.UserRateRefill <= 0 {
		errs = append(errs, errors.New("user rate limit burst and refill must be positive"))
	}
	if c.UserRateDaily < 0 {
		errs = append(errs, fmt.Errorf("%s cannot be negative, got %d", EnvUserRateDaily, c.UserRateDaily))
	}
	if c.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvEmbeddingDimensions, c.EmbeddingDimensions))
	}
	if c.EmbeddingBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive, got %d", EnvEmbeddingBatchSize, c.EmbeddingBatchSize))
	}
	if c.LLM.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", EnvLLMMaxAttempts, c.LLM.MaxAttempts))
	}
	for _, p := range c.LLM.Providers {
		switch p {
		case "gemini", "groq", "cerebras", "openai":
		default:
			errs = append(errs, fmt.Errorf("%s: unknown provider %q", EnvLLMProviders, p))
		}
	}
	if c.R2.Enabled {
		if c.R2.AccountID == "" || c.R2.AccessKeyID == "" || c.R2.SecretAccessKey == "" || c.R2.BucketName == "" {
			errs = append(errs, errors.New("R2 is enabled but account, credentials or bucket are missing"))
		}
	}
	if c.Sentry.Enabled && (c.Sentry.Token == "" || c.Sentry.Host == "") {
		errs = append(errs, fmt.Errorf("%s and %s are required when Sentry is enabled", EnvSentryToken, EnvSentryHost))
	}
	if c.BetterStack.Enabled && c.BetterStack.Token == "" {
		errs = append(errs, fmt.Errorf("%s is required when Better Stack is enabled", EnvBetterStackToken))
	}
	if c.MetricsAuthEnabled && c.MetricsPassword == "" {
		errs = append(errs, fmt.Errorf("%s is required when metrics auth is enabled", EnvMetricsPassword))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// getEnv retrieves environment variable with fallback to default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getIntEnv retrieves integer environment variable with fallback to default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getDurationEnv retrieves duration environment variable with fallback to default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getFloatEnv retrieves float64 environment variable with fallback to default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getBoolEnv retrieves boolean environment variable with fallback to default value
func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated environment variable, dropping blanks.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return name
}

// getDefaultDataDir returns platform-specific default data directory
func getDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}

// SQLitePath returns the full path to the SQLite database file
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "advisor.db")
}

// HasLLMProvider returns true if at least one configured provider has a key.
func (c *Config) HasLLMProvider() bool {
	for _, p := range c.LLM.Providers {
		switch p {
		case "gemini":
			if c.LLM.GeminiAPIKey != "" {
				return true
			}
		case "groq":
			if c.LLM.GroqAPIKey != "" {
				return true
			}
		case "cerebras":
			if c.LLM.CerebrasAPIKey != "" {
				return true
			}
		case "openai":
			if c.LLM.OpenAIAPIKey != "" && c.LLM.OpenAIEndpoint != "" {
				return true
			}
		}
	}
	return false
}
