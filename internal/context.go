package internal

import (
	"context"
	"fmt"
	"strings"
)

const DefaultRecentPosts = 10

// ContextFetcher gathers the inputs of a cycle: the agent's own posts from the
// store and externally authored mentions from the network.
type ContextFetcher struct {
	posts  PostRepository
	social SocialNetwork
	self   string
}

func NewContextFetcher(posts PostRepository, social SocialNetwork, self string) *ContextFetcher {
	return &ContextFetcher{posts: posts, social: social, self: self}
}

// RecentPosts returns own posts, newest first. limit <= 0 means DefaultRecentPosts.
func (f *ContextFetcher) RecentPosts(ctx context.Context, limit int) ([]*Post, error) {
	if limit <= 0 {
		limit = DefaultRecentPosts
	}
	posts, err := f.posts.RecentPostsBy(ctx, f.self, limit)
	if err != nil {
		return nil, fmt.Errorf("recent posts: %w", err)
	}
	return posts, nil
}

func (f *ContextFetcher) ExternalNotifications(ctx context.Context) ([]Notification, error) {
	items, err := f.social.Mentions(ctx)
	if err != nil {
		return nil, fmt.Errorf("notifications: %w", err)
	}
	return items, nil
}

func FormatPosts(posts []*Post) string {
	if len(posts) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, p := range posts {
		fmt.Fprintf(&b, "- %s\n", p.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

func FormatContext(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, s := range items {
		fmt.Fprintf(&b, "- %s\n", s)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NotificationTexts renders items as "@author: text" lines for prompts.
func NotificationTexts(items []Notification) []string {
	out := make([]string, 0, len(items))
	for _, n := range items {
		if n.AuthorUsername == "" {
			out = append(out, n.Text)
			continue
		}
		out = append(out, "@"+n.AuthorUsername+": "+n.Text)
	}
	return out
}
