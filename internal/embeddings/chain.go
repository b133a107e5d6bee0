package embeddings

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Chain tries drivers in order and returns the first successful batch,
// annotated with the provider that produced it. Mixing providers within
// one document is avoided by embedding whole batches per driver: either
// all chunks come from one provider or the next driver is tried for the
// entire batch.
type Chain struct {
	drivers []Driver
}

// NewChain creates a fallback chain. The first driver is the primary.
func NewChain(drivers ...Driver) *Chain {
	return &Chain{drivers: drivers}
}

// Primary returns the first driver, or nil for an empty chain.
func (c *Chain) Primary() Driver {
	if len(c.drivers) == 0 {
		return nil
	}
	return c.drivers[0]
}

// Embed generates embeddings for texts, falling back through the chain on
// provider failure.
func (c *Chain) Embed(ctx context.Context, texts []string) (*BatchResult, error) {
	if len(c.drivers) == 0 {
		return nil, fmt.Errorf("no embedding drivers configured")
	}

	var lastErr error
	for i, d := range c.drivers {
		vectors, err := d.Embed(ctx, texts)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Str("provider", d.Kind()).Str("model", d.ModelID()).
				Msg("Embedding provider failed, trying next")
			continue
		}
		if i > 0 {
			log.Info().Str("provider", d.Kind()).Msg("Embedding fallback provider served batch")
		}
		return &BatchResult{
			Vectors:    vectors,
			Provider:   d.Kind(),
			Model:      d.ModelID(),
			Dimensions: d.Dimensions(),
		}, nil
	}
	return nil, fmt.Errorf("all embedding providers failed, last error: %w", lastErr)
}

// EmbedOne embeds a single text through the chain.
func (c *Chain) EmbedOne(ctx context.Context, text string) ([]float64, *BatchResult, error) {
	res, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, nil, err
	}
	if len(res.Vectors) != 1 {
		return nil, nil, fmt.Errorf("expected 1 embedding, got %d", len(res.Vectors))
	}
	return res.Vectors[0], res, nil
}
