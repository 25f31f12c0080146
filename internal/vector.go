package internal

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

type Embedding struct {
	Vector    []float32
	Dimension int
	Model     string
}

func NewEmbedding(vec []float32, model string) Embedding {
	return Embedding{
		Vector:    vec,
		Dimension: len(vec),
		Model:     model,
	}
}

func (e Embedding) Validate(dimension int) error {
	if len(e.Vector) == 0 || len(e.Vector) != dimension || e.Dimension != len(e.Vector) {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(e.Vector), dimension)
	}
	return nil
}

// CosineSimilarity returns a value in [-1, 1]. Zero vectors score 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}

type ScoredMemory struct {
	Memory *LongTermMemory
	Score  float64
}

// RankBySimilarity scores every memory against query and returns the best k.
// Equal scores are ordered most recent first, then by id.
func RankBySimilarity(query Embedding, memories []*LongTermMemory, k int) ([]ScoredMemory, error) {
	scored := make([]ScoredMemory, 0, len(memories))
	for _, m := range memories {
		s, err := CosineSimilarity(query.Vector, m.Embedding.Vector)
		if err != nil {
			return nil, fmt.Errorf("memory %s: %w", m.ID, err)
		}
		scored = append(scored, ScoredMemory{Memory: m, Score: s})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Memory.CreatedAt.Equal(b.Memory.CreatedAt) {
			return a.Memory.CreatedAt.After(b.Memory.CreatedAt)
		}
		return a.Memory.ID > b.Memory.ID
	})

	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}
