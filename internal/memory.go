package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidScore = errors.New("significance score out of range")

const (
	MinSignificance = 1
	MaxSignificance = 10
)

type ShortTermMemory struct {
	ID        string
	Content   string
	CreatedAt time.Time
}

func NewShortTermMemory(content string) *ShortTermMemory {
	return &ShortTermMemory{
		ID:        uuid.NewString(),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

type LongTermMemory struct {
	ID           string
	Content      string
	Embedding    Embedding
	Significance int
	CreatedAt    time.Time
}

func NewLongTermMemory(content string, emb Embedding, score int) (*LongTermMemory, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if score < MinSignificance || score > MaxSignificance {
		return nil, fmt.Errorf("%w: %d", ErrInvalidScore, score)
	}
	return &LongTermMemory{
		ID:           uuid.NewString(),
		Content:      content,
		Embedding:    emb,
		Significance: score,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

type MemoryRepository interface {
	SaveShortTerm(ctx context.Context, mem *ShortTermMemory) error
	RecentShortTerm(ctx context.Context, limit int) ([]*ShortTermMemory, error)
	SaveLongTerm(ctx context.Context, mem *LongTermMemory) error
	ListLongTerm(ctx context.Context) ([]*LongTermMemory, error)
	RecentLongTerm(ctx context.Context, limit int) ([]*LongTermMemory, error)
}

// Store is everything the agent persists.
type Store interface {
	PostRepository
	UserRepository
	ProcessedRepository
	MemoryRepository
	Close() error
}
