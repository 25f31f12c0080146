package internal

import (
	"context"
	"fmt"
	"strings"
)

const DefaultRetrieveK = 10

// LongTermMemoryStore owns persistence and ranking of significant memories.
// Every entry it accepts has exactly dimension components.
type LongTermMemoryStore struct {
	repo      MemoryRepository
	dimension int
	clock     Clock
}

func NewLongTermMemoryStore(repo MemoryRepository, dimension int, clock Clock) *LongTermMemoryStore {
	if clock == nil {
		clock = NewRealClock()
	}
	return &LongTermMemoryStore{repo: repo, dimension: dimension, clock: clock}
}

func (s *LongTermMemoryStore) Dimension() int {
	return s.dimension
}

func (s *LongTermMemoryStore) Store(ctx context.Context, content string, emb Embedding, score int) (*LongTermMemory, error) {
	if err := emb.Validate(s.dimension); err != nil {
		return nil, err
	}
	mem, err := NewLongTermMemory(content, emb, score)
	if err != nil {
		return nil, err
	}
	mem.CreatedAt = s.clock.Now().UTC()
	if err := s.repo.SaveLongTerm(ctx, mem); err != nil {
		return nil, err
	}
	return mem, nil
}

// RetrieveRelevant is a linear scan over every stored memory. k <= 0 means
// DefaultRetrieveK.
func (s *LongTermMemoryStore) RetrieveRelevant(ctx context.Context, query Embedding, k int) ([]ScoredMemory, error) {
	if err := query.Validate(s.dimension); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	if k <= 0 {
		k = DefaultRetrieveK
	}

	all, err := s.repo.ListLongTerm(ctx)
	if err != nil {
		return nil, err
	}

	candidates := all[:0:0]
	for _, m := range all {
		if len(m.Embedding.Vector) != s.dimension {
			continue
		}
		candidates = append(candidates, m)
	}
	return RankBySimilarity(query, candidates, k)
}

func (s *LongTermMemoryStore) Recent(ctx context.Context, limit int) ([]*LongTermMemory, error) {
	return s.repo.RecentLongTerm(ctx, limit)
}

func FormatMemories(memories []ScoredMemory) string {
	if len(memories) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, m := range memories {
		fmt.Fprintf(&b, "- %s\n", m.Memory.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}
