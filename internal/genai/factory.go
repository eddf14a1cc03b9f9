package genai

import (
	"context"
	"log/slog"
)

// NewGenerator builds a FallbackGenerator over every configured provider's
// model chain, in cfg.Providers order. Returns nil when nothing is configured.
func NewGenerator(ctx context.Context, cfg LLMConfig) (*FallbackGenerator, error) {
	var chain []TextGenerator

	for _, provider := range cfg.ConfiguredProviders() {
		pc := cfg.ProviderConfig(provider)
		for _, model := range cfg.ModelsFor(provider) {
			var (
				gen TextGenerator
				err error
			)
			if provider == ProviderGemini {
				gen, err = newGeminiGenerator(ctx, pc.APIKey, model)
			} else {
				gen, err = newOpenAIGenerator(provider, pc.APIKey, pc.Endpoint, model)
			}
			if err != nil {
				slog.WarnContext(ctx, "failed to create LLM generator",
					"provider", provider,
					"model", model,
					"error", err)
				continue
			}
			chain = append(chain, gen)
		}
	}

	if len(chain) == 0 {
		slog.InfoContext(ctx, "no LLM provider configured")
		return nil, nil //nolint:nilnil // no provider means LLM features run in fallback mode
	}

	slog.InfoContext(ctx, "LLM generator configured",
		"primary", chain[0].Provider(),
		"chain_size", len(chain))

	retry := cfg.RetryConfig
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryConfig()
	}
	return NewFallbackGenerator(retry, chain...), nil
}

// DefaultLLMConfig returns the default provider order and retry settings.
// API keys must be provided separately.
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Providers:   DefaultProviders,
		RetryConfig: DefaultRetryConfig(),
	}
}
