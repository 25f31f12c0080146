package internal

import (
	"context"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

func SystemMessage(content string) Message    { return Message{Role: RoleSystem, Content: content} }
func UserMessage(content string) Message      { return Message{Role: RoleUser, Content: content} }
func AssistantMessage(content string) Message { return Message{Role: RoleAssistant, Content: content} }

type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stream      bool
	Timeout     time.Duration
}

type CompletionRequest struct {
	Model       string
	Prompt      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int
	Stop        []string
	Timeout     time.Duration
}

// ChatModel is a chat endpoint. StreamChat calls onDelta for every text chunk
// in arrival order and returns once the stream is finished.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
	StreamChat(ctx context.Context, req ChatRequest, onDelta func(string)) error
}

type CompletionModel interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) (Embedding, error)
	Dimension() int
}
