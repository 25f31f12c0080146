package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEmptyDraft = errors.New("draft stage produced no text")
	ErrNoContent  = errors.New("no content this cycle")
)

const minDraftLength = 2

type GenerationInput struct {
	ShortTermMemory  string
	LongTermMemories []ScoredMemory
	RecentPosts      []*Post
	ExternalContext  []string
}

type GeneratorConfig struct {
	Draft    ModelParams
	Refine   ModelParams
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
	Cooldown time.Duration
}

func DefaultGeneratorConfig(cfg *Config) GeneratorConfig {
	return GeneratorConfig{
		Draft:    cfg.Stage(StageDraft),
		Refine:   cfg.Stage(StageRefine),
		Timeout:  cfg.LLM.Timeout,
		Attempts: 3,
		Backoff:  time.Second,
		Cooldown: cfg.Policy.DraftCooldown,
	}
}

// ContentGenerator writes a post in two stages: a base model drafts from the
// full context, then a chat model extracts one clean post from the draft.
type ContentGenerator struct {
	completer CompletionModel
	chat      ChatModel
	persona   *PersonaStore
	cfg       GeneratorConfig
	clock     Clock
	logger    *zap.Logger
}

func NewContentGenerator(completer CompletionModel, chat ChatModel, persona *PersonaStore, cfg GeneratorConfig, clock Clock, logger *zap.Logger) *ContentGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &ContentGenerator{
		completer: completer,
		chat:      chat,
		persona:   persona,
		cfg:       cfg,
		clock:     clock,
		logger:    logger.Named("generator"),
	}
}

func (g *ContentGenerator) policy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: g.cfg.Attempts,
		Backoff:     FixedBackoff(g.cfg.Backoff),
		Retryable:   func(err error) bool { return !errors.Is(err, context.Canceled) },
		Clock:       g.clock,
	}
}

func (g *ContentGenerator) Draft(ctx context.Context, in GenerationInput) (string, error) {
	prompt, err := g.persona.Render(PromptDraft, map[string]any{
		"ExternalContext":  FormatContext(in.ExternalContext),
		"ShortTermMemory":  in.ShortTermMemory,
		"LongTermMemories": FormatMemories(in.LongTermMemories),
		"RecentPosts":      FormatPosts(in.RecentPosts),
	})
	if err != nil {
		return "", err
	}

	var draft string
	err = g.policy().Do(ctx, func(ctx context.Context) error {
		out, err := g.completer.Complete(ctx, g.cfg.Draft.CompletionRequest(g.cfg.Timeout, prompt))
		if err != nil {
			g.logger.Warn("draft attempt failed", zap.Error(err))
			return err
		}
		if len(strings.TrimSpace(out)) < minDraftLength {
			g.logger.Warn("draft attempt too short", zap.Int("length", len(out)))
			return ErrEmptyDraft
		}
		draft = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEmptyDraft, err)
	}
	return draft, nil
}

func (g *ContentGenerator) Refine(ctx context.Context, draft string) (string, error) {
	system, err := g.persona.Render(PromptRefine, nil)
	if err != nil {
		return "", err
	}

	var post string
	err = g.policy().Do(ctx, func(ctx context.Context) error {
		req := g.cfg.Refine.ChatRequest(g.cfg.Timeout, SystemMessage(system), UserMessage(draft))
		out, err := g.chat.Chat(ctx, req)
		if err != nil {
			g.logger.Warn("refine attempt failed", zap.Error(err))
			return err
		}
		out = CleanPost(out)
		if out == "" {
			return ErrEmptyResponse
		}
		post = out
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}
	return post, nil
}

// Generate runs Draft then Refine. The cooldown after the draft stage applies
// whatever its outcome. An empty result always comes with ErrNoContent.
func (g *ContentGenerator) Generate(ctx context.Context, in GenerationInput) (string, error) {
	draft, draftErr := g.Draft(ctx, in)

	if err := Sleep(ctx, g.clock, g.cfg.Cooldown); err != nil {
		return "", err
	}

	if draftErr != nil {
		return "", fmt.Errorf("%w: %w", ErrNoContent, draftErr)
	}

	post, err := g.Refine(ctx, draft)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNoContent, err)
	}
	return post, nil
}

// CleanPost trims whitespace and wrapping double quotes.
func CleanPost(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.TrimSpace(s)
}
