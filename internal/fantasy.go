package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/openai"
	"charm.land/fantasy/providers/openrouter"
)

type FantasyConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

var _ ChatModel = (*FantasyChat)(nil)

// FantasyChat serves chat requests through a fantasy provider. Language
// models are resolved per request model id and cached.
type FantasyChat struct {
	provider     fantasy.Provider
	name         string
	defaultModel string

	mu     sync.Mutex
	models map[string]fantasy.LanguageModel
}

func NewFantasyChat(cfg FantasyConfig) (*FantasyChat, error) {
	var provider fantasy.Provider
	var err error

	switch cfg.Provider {
	case "openai":
		opts := []openai.Option{openai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		provider, err = openai.New(opts...)

	case "anthropic":
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		provider, err = anthropic.New(opts...)

	case "openrouter":
		opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
		provider, err = openrouter.New(opts...)

	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("create provider: %w", err)
	}

	return &FantasyChat{
		provider:     provider,
		name:         cfg.Provider,
		defaultModel: cfg.Model,
		models:       make(map[string]fantasy.LanguageModel),
	}, nil
}

func (p *FantasyChat) languageModel(ctx context.Context, id string) (fantasy.LanguageModel, error) {
	if id == "" {
		id = p.defaultModel
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if m, ok := p.models[id]; ok {
		return m, nil
	}
	m, err := p.provider.LanguageModel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get language model %s: %w", id, err)
	}
	p.models[id] = m
	return m, nil
}

// split turns a message list into a system prompt, prior history and the
// final prompt text.
func split(messages []Message) (system string, history []fantasy.Message, prompt string) {
	var sys []string
	var rest []Message
	for _, m := range messages {
		if m.Role == RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}

	if n := len(rest); n > 0 {
		prompt = rest[n-1].Content
		rest = rest[:n-1]
	}
	for _, m := range rest {
		history = append(history, toFantasyMessage(m))
	}
	return strings.Join(sys, "\n\n"), history, prompt
}

func toFantasyMessage(m Message) fantasy.Message {
	if m.Role == RoleAssistant {
		return fantasy.Message{
			Role:    fantasy.MessageRoleAssistant,
			Content: []fantasy.MessagePart{fantasy.TextPart{Text: m.Content}},
		}
	}
	return fantasy.NewUserMessage(m.Content)
}

func (p *FantasyChat) agent(ctx context.Context, req ChatRequest) (fantasy.Agent, []fantasy.Message, string, error) {
	model, err := p.languageModel(ctx, req.Model)
	if err != nil {
		return nil, nil, "", err
	}

	system, history, prompt := split(req.Messages)
	var opts []fantasy.AgentOption
	if system != "" {
		opts = append(opts, fantasy.WithSystemPrompt(system))
	}
	return fantasy.NewAgent(model, opts...), history, prompt, nil
}

func generationParams(req ChatRequest) (maxTokens *int64, temperature, topP *float64) {
	if req.MaxTokens > 0 {
		n := int64(req.MaxTokens)
		maxTokens = &n
	}
	t := req.Temperature
	temperature = &t
	if req.TopP > 0 {
		p := req.TopP
		topP = &p
	}
	return maxTokens, temperature, topP
}

func (p *FantasyChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	agent, history, prompt, err := p.agent(ctx, req)
	if err != nil {
		return "", err
	}

	maxTokens, temperature, topP := generationParams(req)
	result, err := agent.Generate(ctx, fantasy.AgentCall{
		Prompt:          prompt,
		Messages:        history,
		MaxOutputTokens: maxTokens,
		Temperature:     temperature,
		TopP:            topP,
	})
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}

	return result.Response.Content.Text(), nil
}

func (p *FantasyChat) StreamChat(ctx context.Context, req ChatRequest, onDelta func(string)) error {
	agent, history, prompt, err := p.agent(ctx, req)
	if err != nil {
		return err
	}

	maxTokens, temperature, topP := generationParams(req)
	_, err = agent.Stream(ctx, fantasy.AgentStreamCall{
		Prompt:          prompt,
		Messages:        history,
		MaxOutputTokens: maxTokens,
		Temperature:     temperature,
		TopP:            topP,
		OnTextDelta: func(_, text string) error {
			if text != "" {
				onDelta(text)
			}
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}
