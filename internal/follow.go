package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

type FollowCandidate struct {
	Username string
	Score    float64
}

type FollowConfig struct {
	Self      string
	Threshold float64
	Params    ModelParams
	Timeout   time.Duration
	Attempts  int
}

func DefaultFollowConfig(cfg *Config) FollowConfig {
	return FollowConfig{
		Self:      cfg.Account.Username,
		Threshold: cfg.Policy.FollowThreshold,
		Params:    cfg.Stage(StageFollow),
		Timeout:   cfg.LLM.Timeout,
		Attempts:  2,
	}
}

// FollowDecider lets the model rate the authors of fresh notifications and
// follows those above the threshold.
type FollowDecider struct {
	social  SocialNetwork
	users   UserRepository
	caller  *LLMCaller
	persona *PersonaStore
	mute    *MuteList
	cfg     FollowConfig
	clock   Clock
	logger  *zap.Logger
	metrics *Metrics
}

func NewFollowDecider(social SocialNetwork, users UserRepository, caller *LLMCaller, persona *PersonaStore, mute *MuteList, cfg FollowConfig, clock Clock, logger *zap.Logger, metrics *Metrics) *FollowDecider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = NewRealClock()
	}
	return &FollowDecider{
		social:  social,
		users:   users,
		caller:  caller,
		persona: persona,
		mute:    mute,
		cfg:     cfg,
		clock:   clock,
		logger:  logger.Named("follow"),
		metrics: metrics,
	}
}

// Run returns the usernames followed.
func (f *FollowDecider) Run(ctx context.Context, items []Notification) ([]string, error) {
	eligible := make(map[string]Notification)
	var lines []string
	for _, n := range items {
		name := strings.ToLower(n.AuthorUsername)
		if name == "" || strings.EqualFold(name, f.cfg.Self) || f.mute.Muted(name) {
			continue
		}
		if _, ok := eligible[name]; !ok {
			eligible[name] = n
		}
		lines = append(lines, "@"+n.AuthorUsername+": "+n.Text)
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	candidates, err := f.Decide(ctx, lines)
	if err != nil {
		return nil, err
	}

	var followed []string
	for _, c := range candidates {
		name := strings.ToLower(strings.TrimPrefix(c.Username, "@"))
		n, ok := eligible[name]
		if !ok || c.Score <= f.cfg.Threshold {
			continue
		}
		delete(eligible, name)

		if err := f.social.Follow(ctx, n.AuthorUsername); err != nil {
			f.logger.Error("follow failed", zap.String("username", n.AuthorUsername), zap.Error(err))
			if errors.Is(err, ErrRateLimited) {
				break
			}
			continue
		}
		f.metrics.followed()
		f.logger.Info("followed", zap.String("username", n.AuthorUsername), zap.Float64("score", c.Score))
		followed = append(followed, n.AuthorUsername)

		if err := f.users.EnsureUser(ctx, User{ExternalID: n.AuthorID, Username: n.AuthorUsername}); err != nil {
			f.logger.Warn("ensure user", zap.String("username", n.AuthorUsername), zap.Error(err))
		}
	}
	return followed, nil
}

func (f *FollowDecider) Decide(ctx context.Context, lines []string) ([]FollowCandidate, error) {
	prompt, err := f.persona.Render(PromptFollow, map[string]any{
		"Notifications": strings.Join(lines, "\n"),
	})
	if err != nil {
		return nil, err
	}

	var out []FollowCandidate
	policy := RetryPolicy{
		MaxAttempts: max(f.cfg.Attempts, 1),
		Retryable:   func(err error) bool { return errors.Is(err, ErrMalformedDecision) },
		Clock:       f.clock,
	}
	err = policy.Do(ctx, func(ctx context.Context) error {
		raw, err := f.caller.Call(ctx, f.cfg.Params.ChatRequest(f.cfg.Timeout, UserMessage(prompt)))
		if err != nil {
			return err
		}
		parsed, err := ParseFollowCandidates(raw)
		if err != nil {
			f.logger.Warn("malformed follow decision", zap.String("raw", raw))
			return err
		}
		out = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("follow decision: %w", err)
	}
	return out, nil
}

// ParseFollowCandidates reads a JSON array of {username, score}. Entries
// missing either field are dropped.
func ParseFollowCandidates(raw string) ([]FollowCandidate, error) {
	var entries []map[string]any
	if err := extractJSONArray(raw, &entries); err != nil {
		return nil, err
	}
	var out []FollowCandidate
	for _, e := range entries {
		name, _ := e["username"].(string)
		score, ok := number(e["score"])
		if strings.TrimSpace(name) == "" || !ok {
			continue
		}
		out = append(out, FollowCandidate{Username: strings.TrimSpace(name), Score: score})
	}
	return out, nil
}
