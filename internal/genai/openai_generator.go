package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// openaiGenerator implements TextGenerator for any OpenAI-compatible
// provider (Groq, Cerebras or a custom endpoint) via a custom BaseURL.
type openaiGenerator struct {
	client   openai.Client
	model    string
	provider Provider
}

// newOpenAIGenerator creates a generator for one model. endpoint overrides
// the provider's default base URL and is required for ProviderOpenAI.
func newOpenAIGenerator(provider Provider, apiKey, endpoint, model string) (*openaiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%s API key not configured", provider)
	}

	baseURL := endpoint
	if baseURL == "" {
		var ok bool
		if baseURL, ok = ProviderEndpoint[provider]; !ok {
			return nil, fmt.Errorf("no endpoint for OpenAI-compatible provider: %s", provider)
		}
	}
	if model == "" {
		return nil, fmt.Errorf("no model for provider: %s", provider)
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0), // retries are handled by FallbackGenerator
	)

	return &openaiGenerator{client: client, model: model, provider: provider}, nil
}

// Generate runs a single chat completion.
func (g *openaiGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       g.model,
		Messages:    messages,
		Temperature: openai.Float(float64(req.temperature())),
		MaxTokens:   openai.Int(int64(req.maxTokens())),
	}
	if req.JSON {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, params)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "chat completion failed",
			"provider", g.provider,
			"model", g.model,
			"operation", req.operation(),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, WrapError(err, g.provider, apiErr.StatusCode)
		}
		return nil, WrapError(err, g.provider, 0)
	}

	if len(resp.Choices) == 0 {
		return nil, WrapError(errors.New("empty response"), g.provider, 0)
	}

	if resp.Usage.TotalTokens > 0 {
		slog.DebugContext(ctx, "chat completion completed",
			"provider", g.provider,
			"model", g.model,
			"operation", req.operation(),
			"input_tokens", resp.Usage.PromptTokens,
			"output_tokens", resp.Usage.CompletionTokens,
			"total_tokens", resp.Usage.TotalTokens,
			"duration_ms", duration.Milliseconds())
	}

	return &Response{
		Text:         strings.TrimSpace(resp.Choices[0].Message.Content),
		Provider:     g.provider,
		Model:        g.model,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

// Provider returns the provider type for this generator.
func (g *openaiGenerator) Provider() Provider {
	return g.provider
}

// Close releases resources. The OpenAI client holds no closable state.
func (g *openaiGenerator) Close() error {
	return nil
}
