// Package config defines environment variable keys for configuration.
package config

//nolint:gosec,revive // Environment variable keys are not credentials and do not need per-const comments.
const (
	// Server
	EnvPort            = "ADVISOR_PORT"
	EnvLogLevel        = "ADVISOR_LOG_LEVEL"
	EnvShutdownTimeout = "ADVISOR_SHUTDOWN_TIMEOUT"
	EnvServerName      = "ADVISOR_SERVER_NAME"
	EnvInstanceID      = "ADVISOR_INSTANCE_ID"
	EnvTurnTimeout     = "ADVISOR_TURN_TIMEOUT"

	// Data
	EnvDataDir = "ADVISOR_DATA_DIR"

	// Sessions
	EnvSessionIdleTTL    = "ADVISOR_SESSION_IDLE_TTL"
	EnvSessionMaxEntries = "ADVISOR_SESSION_MAX_ENTRIES"
	EnvRetrievalTopN     = "ADVISOR_RETRIEVAL_TOP_N"

	// Rate Limits
	EnvUserRateBurst  = "ADVISOR_USER_RATE_BURST"
	EnvUserRateRefill = "ADVISOR_USER_RATE_REFILL"
	EnvUserRateDaily  = "ADVISOR_USER_RATE_DAILY"

	// Embedding Gateway
	EnvEmbeddingURL        = "ADVISOR_EMBEDDING_URL"
	EnvEmbeddingDimensions = "ADVISOR_EMBEDDING_DIMENSIONS"
	EnvEmbeddingRPM        = "ADVISOR_EMBEDDING_RPM"
	EnvEmbeddingBatchSize  = "ADVISOR_EMBEDDING_BATCH_SIZE"

	// LLM
	EnvLLMProviders       = "ADVISOR_LLM_PROVIDERS"
	EnvGeminiAPIKey       = "ADVISOR_GEMINI_API_KEY"
	EnvGroqAPIKey         = "ADVISOR_GROQ_API_KEY"
	EnvCerebrasAPIKey     = "ADVISOR_CEREBRAS_API_KEY"
	EnvOpenAIAPIKey       = "ADVISOR_OPENAI_API_KEY"
	EnvOpenAIEndpoint     = "ADVISOR_OPENAI_ENDPOINT"
	EnvGeminiModels       = "ADVISOR_GEMINI_MODELS"
	EnvGroqModels         = "ADVISOR_GROQ_MODELS"
	EnvCerebrasModels     = "ADVISOR_CEREBRAS_MODELS"
	EnvOpenAIModels       = "ADVISOR_OPENAI_MODELS"
	EnvLLMMaxAttempts     = "ADVISOR_LLM_MAX_ATTEMPTS"
	EnvLLMInitialDelay    = "ADVISOR_LLM_INITIAL_DELAY"
	EnvLLMMaxDelay        = "ADVISOR_LLM_MAX_DELAY"

	// R2 Snapshot Feature
	EnvR2Enabled         = "ADVISOR_R2_ENABLED"
	EnvR2AccountID       = "ADVISOR_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "ADVISOR_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "ADVISOR_R2_SECRET_ACCESS_KEY"
	EnvR2BucketName      = "ADVISOR_R2_BUCKET_NAME"
	EnvR2SnapshotKey     = "ADVISOR_R2_SNAPSHOT_KEY"
	EnvR2SnapshotEvery   = "ADVISOR_R2_SNAPSHOT_INTERVAL"

	// Sentry Feature
	EnvSentryEnabled     = "ADVISOR_SENTRY_ENABLED"
	EnvSentryToken       = "ADVISOR_SENTRY_TOKEN"
	EnvSentryHost        = "ADVISOR_SENTRY_HOST"
	EnvSentryEnvironment = "ADVISOR_SENTRY_ENVIRONMENT"
	EnvSentryRelease     = "ADVISOR_SENTRY_RELEASE"
	EnvSentrySampleRate  = "ADVISOR_SENTRY_SAMPLE_RATE"

	// Better Stack Feature
	EnvBetterStackEnabled  = "ADVISOR_BETTERSTACK_ENABLED"
	EnvBetterStackToken    = "ADVISOR_BETTERSTACK_TOKEN"
	EnvBetterStackEndpoint = "ADVISOR_BETTERSTACK_ENDPOINT"

	// Metrics Feature
	EnvMetricsAuthEnabled = "ADVISOR_METRICS_AUTH_ENABLED"
	EnvMetricsUsername    = "ADVISOR_METRICS_USERNAME"
	EnvMetricsPassword    = "ADVISOR_METRICS_PASSWORD"
)
