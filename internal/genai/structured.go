package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
)

// CompleteJSON asks gen for a JSON reply and decodes it into T.
// Gateway failures are returned as-is (wrapping ErrGatewayUnavailable);
// anything that cannot be decoded, or that validate rejects, wraps
// ErrMalformedModelOutput.
func CompleteJSON[T any](ctx context.Context, gen TextGenerator, req Request, validate func(*T) error) (*T, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: no LLM provider configured", apperrors.ErrGatewayUnavailable)
	}

	req.JSON = true
	resp, err := gen.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, ok := ExtractJSONObject(resp.Text)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in %s reply", apperrors.ErrMalformedModelOutput, req.operation())
	}

	var out T
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrMalformedModelOutput, req.operation(), err)
	}
	if validate != nil {
		if err := validate(&out); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", apperrors.ErrMalformedModelOutput, req.operation(), err)
		}
	}
	return &out, nil
}

// ExtractJSONObject returns the outermost {...} span of text, tolerating
// markdown code fences and prose around it.
func ExtractJSONObject(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}

	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

// CompleteText asks gen for a plain-text reply.
func CompleteText(ctx context.Context, gen TextGenerator, req Request) (string, error) {
	if gen == nil {
		return "", fmt.Errorf("%w: no LLM provider configured", apperrors.ErrGatewayUnavailable)
	}
	req.JSON = false
	resp, err := gen.Generate(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}
