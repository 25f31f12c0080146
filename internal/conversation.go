package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ConversationHistory returns the thread rooted at the post with the given
// external id: the root and every post reachable through parent edges,
// oldest first. An unknown root yields an empty history.
func ConversationHistory(ctx context.Context, repo PostRepository, externalID string) ([]*Post, error) {
	if externalID == "" {
		return nil, nil
	}
	root, err := repo.GetPostByExternalID(ctx, externalID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation root: %w", err)
	}

	thread := []*Post{root}
	seen := map[string]bool{root.ID: true}
	queue := []string{root.ID}
	for len(queue) > 0 {
		parent := queue[0]
		queue = queue[1:]

		replies, err := repo.Replies(ctx, parent)
		if err != nil {
			return nil, fmt.Errorf("conversation replies: %w", err)
		}
		for _, r := range replies {
			if seen[r.ID] {
				continue
			}
			seen[r.ID] = true
			thread = append(thread, r)
			queue = append(queue, r.ID)
		}
	}

	sort.SliceStable(thread[1:], func(i, j int) bool {
		return thread[i+1].CreatedAt.Before(thread[j+1].CreatedAt)
	})
	return thread, nil
}

// ConversationMessages maps a thread onto chat roles: posts by self are the
// assistant's turns.
func ConversationMessages(posts []*Post, self string) []Message {
	out := make([]Message, 0, len(posts))
	for _, p := range posts {
		if strings.EqualFold(p.AuthorUsername, self) {
			out = append(out, AssistantMessage(p.Content))
			continue
		}
		out = append(out, UserMessage(p.Content))
	}
	return out
}
