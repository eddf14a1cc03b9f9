package genai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	apperrors "github.com/garyellow/course-advisor-go/internal/errors"
	"github.com/garyellow/course-advisor-go/internal/metrics"
)

// FallbackGenerator walks an ordered chain of generators (models within a
// provider, then providers). Each link is retried with backoff on
// transient errors before moving to the next one.
type FallbackGenerator struct {
	chain       []TextGenerator
	retryConfig RetryConfig
}

// NewFallbackGenerator creates a fallback chain. Nil generators are skipped.
func NewFallbackGenerator(cfg RetryConfig, generators ...TextGenerator) *FallbackGenerator {
	chain := make([]TextGenerator, 0, len(generators))
	for _, g := range generators {
		if g != nil {
			chain = append(chain, g)
		}
	}
	return &FallbackGenerator{chain: chain, retryConfig: cfg}
}

// Generate returns the first successful reply in the chain. When every
// link fails the error wraps apperrors.ErrGatewayUnavailable.
func (f *FallbackGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	if f == nil || len(f.chain) == 0 {
		return nil, fmt.Errorf("%w: no LLM provider configured", apperrors.ErrGatewayUnavailable)
	}

	start := time.Now()
	op := req.operation()
	var lastErr error

	for i, gen := range f.chain {
		linkStart := time.Now()
		resp, err := f.generateWithRetry(ctx, gen, req)
		if err == nil {
			recordSuccess(gen.Provider(), op, linkStart)
			if i > 0 {
				recordFallback(f.chain[0].Provider(), gen.Provider(), op, time.Since(start))
			}
			return resp, nil
		}

		lastErr = err
		recordError(gen.Provider(), op, err)

		if ctx.Err() != nil {
			break
		}
		if i < len(f.chain)-1 {
			slog.InfoContext(ctx, "falling back to next LLM",
				"from", gen.Provider(),
				"to", f.chain[i+1].Provider(),
				"operation", op,
				"action", ClassifyError(err),
				"error", err)
		}
	}

	slog.ErrorContext(ctx, "all LLM providers failed",
		"operation", op,
		"chain_size", len(f.chain),
		"duration", time.Since(start),
		"error", lastErr)
	return nil, fmt.Errorf("%w: %w", apperrors.ErrGatewayUnavailable, lastErr)
}

func (f *FallbackGenerator) generateWithRetry(ctx context.Context, gen TextGenerator, req Request) (*Response, error) {
	var resp *Response
	err := WithRetry(ctx, f.retryConfig,
		func(attempt int, err error) {
			slog.DebugContext(ctx, "retrying LLM call",
				"provider", gen.Provider(),
				"operation", req.operation(),
				"attempt", attempt,
				"error", err)
		},
		func() error {
			var err error
			resp, err = gen.Generate(ctx, req)
			return err
		})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Provider returns the primary provider type.
func (f *FallbackGenerator) Provider() Provider {
	if f == nil || len(f.chain) == 0 {
		return ""
	}
	return f.chain[0].Provider()
}

// Size returns the number of links in the chain.
func (f *FallbackGenerator) Size() int {
	if f == nil {
		return 0
	}
	return len(f.chain)
}

// Close closes every generator in the chain.
func (f *FallbackGenerator) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, g := range f.chain {
		if err := g.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func recordSuccess(provider Provider, operation string, start time.Time) {
	if metrics.LLMTotal == nil || metrics.LLMDuration == nil {
		return
	}
	metrics.LLMTotal.WithLabelValues(string(provider), operation, "success").Inc()
	metrics.LLMDuration.WithLabelValues(string(provider), operation).Observe(time.Since(start).Seconds())
}

func recordError(provider Provider, operation string, err error) {
	if metrics.LLMTotal == nil {
		return
	}
	metrics.LLMTotal.WithLabelValues(string(provider), operation, classifyErrorType(err)).Inc()
}

func recordFallback(from, to Provider, operation string, total time.Duration) {
	if metrics.LLMFallbackTotal != nil {
		metrics.LLMFallbackTotal.WithLabelValues(string(from), string(to), operation).Inc()
	}
	if metrics.LLMFallbackLatency != nil {
		metrics.LLMFallbackLatency.WithLabelValues(operation).Observe(total.Seconds())
	}
}
