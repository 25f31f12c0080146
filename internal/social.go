package internal

import "context"

// SocialNetwork is the account the agent speaks through.
type SocialNetwork interface {
	Post(ctx context.Context, text string) (string, error)
	Reply(ctx context.Context, text, inReplyTo string) (string, error)
	Mentions(ctx context.Context) ([]Notification, error)
	UserTimeline(ctx context.Context, username string) ([]Notification, error)
	Follow(ctx context.Context, username string) error
	ResolveUserID(ctx context.Context, username string) (string, error)
}
