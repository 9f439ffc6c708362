package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/thebtf/goalmatch/internal/config"
)

// Service provides batched text embedding on top of a provider. Calls within
// a batch run in parallel with bounded concurrency; each call carries its own
// timeout so one slow call cannot stall the batch indefinitely. Any failure
// fails the whole batch, never a partial result.
type Service struct {
	model       Model
	timeout     time.Duration
	concurrency int
	log         zerolog.Logger
}

// NewService creates an embedding service using the configured provider.
func NewService(log zerolog.Logger) (*Service, error) {
	cfg := config.Get()

	model, err := GetModel(cfg.EmbeddingProvider)
	if err != nil {
		return nil, fmt.Errorf("get embedding provider %s: %w", cfg.EmbeddingProvider, err)
	}

	return NewServiceWithModel(model, log), nil
}

// NewServiceWithModel creates an embedding service around an existing
// provider instance.
func NewServiceWithModel(model Model, log zerolog.Logger) *Service {
	cfg := config.Get()

	timeout := time.Duration(cfg.EmbedTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultEmbedTimeoutSeconds) * time.Second
	}
	concurrency := cfg.EmbedConcurrency
	if concurrency <= 0 {
		concurrency = config.DefaultEmbedConcurrency
	}

	return &Service{
		model:       model,
		timeout:     timeout,
		concurrency: concurrency,
		log:         log.With().Str("component", "embedding").Logger(),
	}
}

// Name returns the provider name.
func (s *Service) Name() string { return s.model.Name() }

// Dimensions returns the embedding vector size.
func (s *Service) Dimensions() int { return s.model.Dimensions() }

// Embed generates an embedding for a single text with the per-call timeout.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.model.Embed(callCtx, text)
}

// EmbedBatch embeds every text independently and returns the vectors in
// input order. The first failure cancels the remaining calls and fails the
// batch.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	start := time.Now()
	results := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			callCtx, cancel := context.WithTimeout(gctx, s.timeout)
			defer cancel()

			vec, err := s.model.Embed(callCtx, text)
			if err != nil {
				return fmt.Errorf("embed text %d of %d: %w", i+1, len(texts), err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.Debug().
		Int("texts", len(texts)).
		Dur("elapsed", time.Since(start)).
		Msg("Batch embedded")

	return results, nil
}

// Close releases provider resources.
func (s *Service) Close() error {
	return s.model.Close()
}
