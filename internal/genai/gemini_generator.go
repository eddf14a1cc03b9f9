package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

// geminiGenerator implements TextGenerator with the Gemini SDK.
type geminiGenerator struct {
	client *genai.Client
	model  string
}

// newGeminiGenerator creates a Gemini generator for one model.
func newGeminiGenerator(ctx context.Context, apiKey, model string) (*geminiGenerator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini API key not configured")
	}
	if model == "" {
		model = DefaultGeminiModels[0]
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &geminiGenerator{client: client, model: model}, nil
}

// Generate runs a single GenerateContent call.
func (g *geminiGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(req.temperature()),
		MaxOutputTokens: int32(req.maxTokens()), //nolint:gosec // bounded by configuration
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSON {
		config.ResponseMIMEType = "application/json"
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
	duration := time.Since(start)
	if err != nil {
		slog.WarnContext(ctx, "gemini generate failed",
			"model", g.model,
			"operation", req.operation(),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, WrapError(err, ProviderGemini, apiErr.Code)
		}
		return nil, WrapError(err, ProviderGemini, 0)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, WrapError(errors.New("empty response"), ProviderGemini, 0)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			text.WriteString(part.Text)
		}
	}

	out := &Response{
		Text:     strings.TrimSpace(text.String()),
		Provider: ProviderGemini,
		Model:    g.model,
	}
	if resp.UsageMetadata != nil {
		out.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		slog.DebugContext(ctx, "gemini generate completed",
			"model", g.model,
			"operation", req.operation(),
			"input_tokens", resp.UsageMetadata.PromptTokenCount,
			"output_tokens", resp.UsageMetadata.CandidatesTokenCount,
			"total_tokens", resp.UsageMetadata.TotalTokenCount,
			"duration_ms", duration.Milliseconds())
	}
	return out, nil
}

// Provider returns ProviderGemini.
func (g *geminiGenerator) Provider() Provider {
	return ProviderGemini
}

// Close releases resources. The genai client holds no closable state.
func (g *geminiGenerator) Close() error {
	return nil
}
