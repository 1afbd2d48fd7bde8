package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"

	"github.com/eezybuild/eezybuild/pkg/apierr"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

// EmbeddingModel is satisfied by langchaingo's openai.LLM.
type EmbeddingModel interface {
	CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error)
}

type EmbedderConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	BatchSize  int
	BatchDelay time.Duration
	// Dimensions, when set, is checked against every returned vector.
	Dimensions int
}

// Embedder turns texts into vectors in paced batches. A failed batch fails
// the whole call; partial results are never returned.
type Embedder struct {
	config EmbedderConfig
	model  EmbeddingModel
	log    *logger.Logger
}

func NewEmbedderWithConfig(config EmbedderConfig, log *logger.Logger) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "text-embedding-3-small"
	}
	client, err := NewOpenAI(config.APIKey, config.BaseURL, "", openai.WithEmbeddingModel(config.Model))
	if err != nil {
		return nil, err
	}
	return NewEmbedder(client, config, log), nil
}

func NewEmbedder(model EmbeddingModel, config EmbedderConfig, log *logger.Logger) *Embedder {
	if config.BatchSize <= 0 {
		config.BatchSize = 20
	}
	if config.BatchDelay < 0 {
		config.BatchDelay = 0
	}
	return &Embedder{
		config: config,
		model:  model,
		log:    log.With("component", "embedder"),
	}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	// pacing is per call; concurrent requests never share a limiter
	limit := rate.Inf
	if e.config.BatchDelay > 0 {
		limit = rate.Every(e.config.BatchDelay)
	}
	limiter := rate.NewLimiter(limit, 1)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))

		if err := limiter.Wait(ctx); err != nil {
			return nil, apierr.New(apierr.UpstreamEmbeddingFailure, err)
		}

		batch, err := e.model.CreateEmbedding(ctx, texts[start:end])
		if err != nil {
			return nil, apierr.New(apierr.UpstreamEmbeddingFailure, fmt.Errorf("embedding batch %d-%d: %w", start, end, err))
		}
		if len(batch) != end-start {
			return nil, apierr.Errorf(apierr.UpstreamEmbeddingFailure, "embedding batch %d-%d: got %d vectors for %d texts", start, end, len(batch), end-start)
		}
		for i, v := range batch {
			if len(v) == 0 || (e.config.Dimensions > 0 && len(v) != e.config.Dimensions) {
				return nil, apierr.Errorf(apierr.UpstreamEmbeddingFailure, "embedding %d has dimension %d", start+i, len(v))
			}
		}

		vectors = append(vectors, batch...)
		e.log.Debug("embedded batch", "from", start, "to", end, "total", len(texts))
	}

	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
