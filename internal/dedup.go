package internal

import (
	"context"
	"fmt"
)

// DedupGate remembers which external items were already handled so no item
// is answered or consumed twice.
type DedupGate struct {
	repo ProcessedRepository
}

func NewDedupGate(repo ProcessedRepository) *DedupGate {
	return &DedupGate{repo: repo}
}

func (g *DedupGate) IsProcessed(ctx context.Context, externalID string) (bool, error) {
	ok, err := g.repo.IsProcessed(ctx, externalID)
	if err != nil {
		return false, fmt.Errorf("is processed %s: %w", externalID, err)
	}
	return ok, nil
}

// MarkProcessed is idempotent.
func (g *DedupGate) MarkProcessed(ctx context.Context, externalID string) error {
	if err := g.repo.MarkProcessed(ctx, externalID); err != nil {
		return fmt.Errorf("mark processed %s: %w", externalID, err)
	}
	return nil
}

// Unseen keeps the items not yet processed, in input order. Items without an
// external id are dropped.
func (g *DedupGate) Unseen(ctx context.Context, items []Notification) ([]Notification, error) {
	out := make([]Notification, 0, len(items))
	seen := make(map[string]bool, len(items))
	for _, n := range items {
		if n.ExternalID == "" || seen[n.ExternalID] {
			continue
		}
		seen[n.ExternalID] = true

		done, err := g.IsProcessed(ctx, n.ExternalID)
		if err != nil {
			return nil, err
		}
		if !done {
			out = append(out, n)
		}
	}
	return out, nil
}
