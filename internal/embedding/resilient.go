package embedding

import (
	"context"
	"errors"

	"github.com/Anubhav12123/AI-Recommender-System/pkg/config"
	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
	"github.com/Anubhav12123/AI-Recommender-System/pkg/resilience"
)

// Resilient wraps a Provider with bounded-backoff retries and a circuit
// breaker. Only transient failures (ErrEmbeddingUnavailable) are retried;
// anything else fails immediately.
type Resilient struct {
	inner    Provider
	retryCfg resilience.RetryConfig
	breaker  *resilience.CircuitBreaker
}

// NewResilient wraps inner according to the embedding config.
func NewResilient(inner Provider, cfg config.EmbeddingConfig) *Resilient {
	return &Resilient{
		inner: inner,
		retryCfg: resilience.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
		},
		breaker: resilience.NewCircuitBreaker("embedding-provider", resilience.CircuitBreakerConfig{}),
	}
}

func (r *Resilient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := r.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (r *Resilient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := resilience.Retry(ctx, "embed-batch", r.retryCfg, func() error {
		return r.breaker.Execute(func() error {
			result, err := r.inner.EmbedBatch(ctx, texts)
			if err != nil {
				if errors.Is(err, apperrors.ErrEmbeddingUnavailable) {
					return err
				}
				return &resilience.PermanentError{Err: err}
			}
			vectors = result
			return nil
		})
	})
	if err != nil {
		var perm *resilience.PermanentError
		if errors.As(err, &perm) {
			return nil, perm.Err
		}
		return nil, err
	}
	return vectors, nil
}

func (r *Resilient) Dimensions() int {
	return r.inner.Dimensions()
}

// Train forwards corpus training to the wrapped provider when it supports
// it, so wrapping does not hide a Trainable implementation.
func (r *Resilient) Train(documents []string) {
	if t, ok := r.inner.(Trainable); ok {
		t.Train(documents)
	}
}
