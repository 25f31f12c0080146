package v1

import "time"

// Memory is a long-term memory entry.
type Memory struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	Significance int       `json:"significance"`
	CreatedAt    time.Time `json:"created_at"`
}

// SearchResult is a memory ranked by cosine similarity to a query.
type SearchResult struct {
	Memory Memory  `json:"memory"`
	Score  float64 `json:"score"`
}

// Post is a stored post, published by the agent or ingested from the network.
type Post struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id,omitempty"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	Reply      bool      `json:"reply"`
	ParentID   string    `json:"parent_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type StepError struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

// CycleReport summarises one pipeline cycle. Score is nil when the content
// was never scored.
type CycleReport struct {
	StartedAt   time.Time   `json:"started_at"`
	FinishedAt  time.Time   `json:"finished_at"`
	Content     string      `json:"content,omitempty"`
	Score       *int        `json:"score,omitempty"`
	Stored      bool        `json:"stored"`
	PublishedID string      `json:"published_id,omitempty"`
	Unpublished string      `json:"unpublished,omitempty"`
	Replies     int         `json:"replies"`
	Transfers   int         `json:"transfers"`
	Follows     []string    `json:"follows,omitempty"`
	Errors      []StepError `json:"errors,omitempty"`
}
