package internal

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
)

const ShortTermFallback = "[short-term memory unavailable]"

type ShortTermMemoryGenerator struct {
	caller  *LLMCaller
	persona *PersonaStore
	params  ModelParams
	timeout time.Duration
	logger  *zap.Logger
}

func NewShortTermMemoryGenerator(caller *LLMCaller, persona *PersonaStore, params ModelParams, timeout time.Duration, logger *zap.Logger) *ShortTermMemoryGenerator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShortTermMemoryGenerator{
		caller:  caller,
		persona: persona,
		params:  params,
		timeout: timeout,
		logger:  logger.Named("short_term"),
	}
}

// Summarize never fails; a degraded result is ShortTermFallback.
func (g *ShortTermMemoryGenerator) Summarize(ctx context.Context, recent []*Post, external []string) string {
	prompt, err := g.persona.Render(PromptShortTerm, map[string]any{
		"Posts":           FormatPosts(recent),
		"ExternalContext": FormatContext(external),
	})
	if err != nil {
		g.logger.Error("render prompt", zap.Error(err))
		return ShortTermFallback
	}

	text, err := g.caller.Call(ctx, g.params.ChatRequest(g.timeout, UserMessage(prompt)))
	if err != nil {
		g.logger.Warn("summarize failed", zap.Error(err))
		return ShortTermFallback
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return ShortTermFallback
	}
	return text
}
