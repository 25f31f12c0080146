package internal

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidPost  = errors.New("invalid post")
	ErrEmptyContent = errors.New("empty content")
)

type PostType string

const (
	PostOriginal PostType = "original"
	PostReply    PostType = "reply"
)

// Post is a published or ingested message. ParentID points at the local id of
// the post it replies to.
type Post struct {
	ID             string
	ExternalID     string
	AuthorID       string
	AuthorUsername string
	Content        string
	Type           PostType
	ParentID       string
	CreatedAt      time.Time
}

func NewPost(author User, content string, typ PostType) (*Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if typ != PostOriginal && typ != PostReply {
		return nil, ErrInvalidPost
	}
	return &Post{
		ID:             uuid.NewString(),
		AuthorID:       author.ExternalID,
		AuthorUsername: author.Username,
		Content:        content,
		Type:           typ,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (p *Post) IsReply() bool {
	return p.Type == PostReply && p.ParentID != ""
}

type User struct {
	ExternalID string
	Username   string
	Email      string
}

// Notification is an externally authored item (mention or timeline post).
type Notification struct {
	ExternalID     string
	Text           string
	AuthorID       string
	AuthorUsername string
	ConversationID string
	CreatedAt      time.Time
}

type ProcessedItem struct {
	ExternalID  string
	ProcessedAt time.Time
}

type PostRepository interface {
	SavePost(ctx context.Context, post *Post) error
	GetPostByExternalID(ctx context.Context, externalID string) (*Post, error)
	RecentPostsBy(ctx context.Context, username string, limit int) ([]*Post, error)
	Replies(ctx context.Context, parentID string) ([]*Post, error)
	CountRepliesTo(ctx context.Context, self, author string) (int, error)
}

type UserRepository interface {
	EnsureUser(ctx context.Context, user User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

type ProcessedRepository interface {
	MarkProcessed(ctx context.Context, externalID string) error
	IsProcessed(ctx context.Context, externalID string) (bool, error)
}
