// Package genai provides integration with LLM APIs (Gemini, Groq, Cerebras
// and any OpenAI-compatible endpoint) and with the embedding gateway.
//
// Architecture:
//   - Gemini: google.golang.org/genai (official SDK)
//   - Groq/Cerebras/OpenAI: github.com/openai/openai-go/v3 with a custom BaseURL
//
// Fallback Strategy (3-layer):
//  1. Model Retry: same model retried with Full Jitter backoff
//  2. Model Chain: next model in the same provider's list
//  3. Provider Chain: next provider in the configured order
package genai

import (
	"context"
	"time"
)

// Provider represents an LLM provider.
type Provider string

const (
	// ProviderGemini represents Google's Gemini API (non-OpenAI-compatible).
	ProviderGemini Provider = "gemini"
	// ProviderGroq represents Groq's API (OpenAI-compatible).
	ProviderGroq Provider = "groq"
	// ProviderCerebras represents Cerebras's API (OpenAI-compatible).
	ProviderCerebras Provider = "cerebras"
	// ProviderOpenAI represents any self-hosted or hosted OpenAI-compatible endpoint.
	ProviderOpenAI Provider = "openai"
)

// ProviderEndpoint holds the base URLs of the hosted OpenAI-compatible providers.
// ProviderOpenAI takes its endpoint from configuration.
var ProviderEndpoint = map[Provider]string{
	ProviderGroq:     "https://api.groq.com/openai/v1/",
	ProviderCerebras: "https://api.cerebras.ai/v1/",
}

// IsOpenAICompatible returns true if the provider speaks the OpenAI chat API.
func (p Provider) IsOpenAICompatible() bool {
	if p == ProviderOpenAI {
		return true
	}
	_, ok := ProviderEndpoint[p]
	return ok
}

// String returns the string representation of the provider.
func (p Provider) String() string {
	return string(p)
}

// Request is a single-turn completion request.
type Request struct {
	// Operation labels the call in logs and metrics (e.g., "classify", "title").
	Operation string
	// System is the system instruction.
	System string
	// Prompt is the user message.
	Prompt string
	// JSON asks the provider for a JSON object reply when it supports it.
	JSON bool
	// Temperature defaults to 0.1 when zero.
	Temperature float32
	// MaxTokens defaults to 1024 when zero.
	MaxTokens int
}

// Response is the text reply of a completion.
type Response struct {
	Text         string
	Provider     Provider
	Model        string
	InputTokens  int
	OutputTokens int
}

// TextGenerator produces a completion for a request.
// Implementations: geminiGenerator, openaiGenerator and FallbackGenerator.
type TextGenerator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	// Provider returns the provider type for metrics.
	Provider() Provider
	// Close releases any resources held by the generator.
	Close() error
}

// RetryConfig defines retry behavior for LLM API calls.
// Uses AWS-recommended Full Jitter exponential backoff.
type RetryConfig struct {
	// MaxAttempts is the maximum number of attempts per model (including initial).
	MaxAttempts int
	// InitialDelay is the base delay before first retry.
	InitialDelay time.Duration
	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration
}

// ProviderConfig holds configuration for a single LLM provider.
type ProviderConfig struct {
	APIKey string
	// Endpoint overrides the base URL (required for ProviderOpenAI).
	Endpoint string
	// Models is the ordered model chain; the first is primary.
	Models []string
}

// LLMConfig holds configuration for all LLM providers.
type LLMConfig struct {
	// Providers is the fallback order. Providers without an API key are skipped.
	Providers   []Provider
	Gemini      ProviderConfig
	Groq        ProviderConfig
	Cerebras    ProviderConfig
	OpenAI      ProviderConfig
	RetryConfig RetryConfig
}

// Default model chains. First element is primary.
var (
	DefaultGeminiModels   = []string{"gemini-2.5-flash", "gemini-2.5-flash-lite"}
	DefaultGroqModels     = []string{"meta-llama/llama-4-maverick-17b-128e-instruct", "llama-3.3-70b-versatile"}
	DefaultCerebrasModels = []string{"llama-3.3-70b", "llama-3.1-8b"}
	DefaultOpenAIModels   = []string{"gpt-4o-mini"}

	// DefaultProviders is the default provider order for fallback.
	DefaultProviders = []Provider{ProviderGemini, ProviderGroq, ProviderCerebras}
)

// Retry configuration defaults
const (
	DefaultMaxRetryAttempts  = 2
	DefaultInitialRetryDelay = 500 * time.Millisecond
	DefaultMaxRetryDelay     = 3 * time.Second

	defaultTemperature = 0.1
	defaultMaxTokens   = 1024
)

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  DefaultMaxRetryAttempts,
		InitialDelay: DefaultInitialRetryDelay,
		MaxDelay:     DefaultMaxRetryDelay,
	}
}

// ProviderConfig returns the configuration for a specific provider.
func (c *LLMConfig) ProviderConfig(p Provider) *ProviderConfig {
	switch p {
	case ProviderGemini:
		return &c.Gemini
	case ProviderGroq:
		return &c.Groq
	case ProviderCerebras:
		return &c.Cerebras
	case ProviderOpenAI:
		return &c.OpenAI
	default:
		return nil
	}
}

// HasProvider returns true if the provider is configured with an API key
// (and an endpoint, for ProviderOpenAI).
func (c *LLMConfig) HasProvider(p Provider) bool {
	pc := c.ProviderConfig(p)
	if pc == nil || pc.APIKey == "" {
		return false
	}
	return p != ProviderOpenAI || pc.Endpoint != ""
}

// ConfiguredProviders returns the configured providers in fallback order.
func (c *LLMConfig) ConfiguredProviders() []Provider {
	result := make([]Provider, 0, len(c.Providers))
	for _, p := range c.Providers {
		if c.HasProvider(p) {
			result = append(result, p)
		}
	}
	return result
}

// ModelsFor returns the configured model chain for p, or its default chain.
func (c *LLMConfig) ModelsFor(p Provider) []string {
	if pc := c.ProviderConfig(p); pc != nil && len(pc.Models) > 0 {
		return pc.Models
	}
	switch p {
	case ProviderGemini:
		return DefaultGeminiModels
	case ProviderGroq:
		return DefaultGroqModels
	case ProviderCerebras:
		return DefaultCerebrasModels
	case ProviderOpenAI:
		return DefaultOpenAIModels
	default:
		return nil
	}
}

func (r Request) temperature() float32 {
	if r.Temperature == 0 {
		return defaultTemperature
	}
	return r.Temperature
}

func (r Request) maxTokens() int {
	if r.MaxTokens <= 0 {
		return defaultMaxTokens
	}
	return r.MaxTokens
}

func (r Request) operation() string {
	if r.Operation == "" {
		return "generate"
	}
	return r.Operation
}
