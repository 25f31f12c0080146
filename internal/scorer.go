package internal

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrMalformedScore = errors.New("malformed significance score")

type SignificanceScorer struct {
	caller  *LLMCaller
	persona *PersonaStore
	params  ModelParams
	timeout time.Duration
	logger  *zap.Logger
}

func NewSignificanceScorer(caller *LLMCaller, persona *PersonaStore, params ModelParams, timeout time.Duration, logger *zap.Logger) *SignificanceScorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignificanceScorer{
		caller:  caller,
		persona: persona,
		params:  params,
		timeout: timeout,
		logger:  logger.Named("scorer"),
	}
}

func (s *SignificanceScorer) Score(ctx context.Context, text string) (int, error) {
	prompt, err := s.persona.Render(PromptSignificance, map[string]any{"Memory": text})
	if err != nil {
		return 0, err
	}

	raw, err := s.caller.Call(ctx, s.params.ChatRequest(s.timeout, UserMessage(prompt)))
	if err != nil {
		return 0, fmt.Errorf("score: %w", err)
	}

	score, err := ParseScore(raw)
	if err != nil {
		s.logger.Warn("unparseable score", zap.String("raw", raw))
		return 0, err
	}
	return score, nil
}

// ParseScore accepts a bare integer in [1, 10], optionally followed by a
// period. Anything else is ErrMalformedScore.
func ParseScore(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, ".")
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedScore, raw)
	}
	if n < MinSignificance || n > MaxSignificance {
		return 0, fmt.Errorf("%w: %d out of range", ErrMalformedScore, n)
	}
	return n, nil
}
