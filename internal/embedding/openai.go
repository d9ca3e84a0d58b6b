package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sashabaranov/go-openai"

	"github.com/Anubhav12123/AI-Recommender-System/pkg/config"
	apperrors "github.com/Anubhav12123/AI-Recommender-System/pkg/errors"
)

// OpenAI calls an OpenAI-compatible embeddings endpoint. Any transport or
// API failure is reported as ErrEmbeddingUnavailable so the builder's retry
// and degraded-build policies apply uniformly.
type OpenAI struct {
	client     *openai.Client
	model      string
	dimensions int
	logger     *slog.Logger
}

// NewOpenAI creates a provider from config. BaseURL may point at any
// OpenAI-compatible service.
func NewOpenAI(cfg config.EmbeddingConfig) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     slog.Default().With("component", "embedding-openai", "model", cfg.Model),
	}
}

func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	req := openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(p.model),
		Dimensions: p.dimensions,
	}
	resp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		p.logger.Warn("embedding request failed", "texts", len(texts), "error", err)
		return nil, fmt.Errorf("%w: %v", apperrors.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			apperrors.ErrEmbeddingUnavailable, len(resp.Data), len(texts))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != p.dimensions {
			return nil, fmt.Errorf("%w: provider returned %d dimensions, expected %d",
				apperrors.ErrDimensionMismatch, len(data.Embedding), p.dimensions)
		}
		vectors[i] = data.Embedding
	}
	return vectors, nil
}

func (p *OpenAI) Dimensions() int {
	return p.dimensions
}
