package internal

import (
	"context"
	"fmt"
	"strings"
)

var _ Embedder = (*EmbeddingAdapter)(nil)

// EmbeddingAdapter retries an Embedder and guarantees every vector it hands
// out has the configured dimension.
type EmbeddingAdapter struct {
	embedder Embedder
	policy   RetryPolicy
}

func NewEmbeddingAdapter(embedder Embedder, policy RetryPolicy) *EmbeddingAdapter {
	return &EmbeddingAdapter{embedder: embedder, policy: policy}
}

func (a *EmbeddingAdapter) Dimension() int {
	return a.embedder.Dimension()
}

func (a *EmbeddingAdapter) Embed(ctx context.Context, text string) (Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return Embedding{}, fmt.Errorf("embed: %w", ErrEmptyContent)
	}

	var emb Embedding
	err := a.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		emb, err = a.embedder.Embed(ctx, text)
		return err
	})
	if err != nil {
		return Embedding{}, err
	}
	if err := emb.Validate(a.Dimension()); err != nil {
		return Embedding{}, fmt.Errorf("embed: %w", err)
	}
	return emb, nil
}
