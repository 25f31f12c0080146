package internal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

var ErrEmptyResponse = errors.New("empty response")

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func newOpenAIClient(cfg OpenAIConfig) openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	return openai.NewClient(opts...)
}

var _ CompletionModel = (*OpenAICompleter)(nil)

// OpenAICompleter calls a legacy completions endpoint, used for base models.
type OpenAICompleter struct {
	client openai.Client
	model  string
}

func NewOpenAICompleter(cfg OpenAIConfig) *OpenAICompleter {
	return &OpenAICompleter{
		client: newOpenAIClient(cfg),
		model:  cfg.Model,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	params := openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(req.Prompt)},
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if len(req.Stop) > 0 {
		params.Stop = openai.CompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}

	var opts []option.RequestOption
	if req.TopK > 0 {
		opts = append(opts, option.WithJSONSet("top_k", req.TopK))
	}
	if req.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(req.Timeout))
	}

	res, err := c.client.Completions.New(ctx, params, opts...)
	if err != nil {
		return "", fmt.Errorf("completion: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return res.Choices[0].Text, nil
}

var _ Embedder = (*OpenAIEmbedder)(nil)

type OpenAIEmbedder struct {
	client    openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(cfg OpenAIConfig, dimension int) *OpenAIEmbedder {
	return &OpenAIEmbedder{
		client:    newOpenAIClient(cfg),
		model:     cfg.Model,
		dimension: dimension,
	}
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) (Embedding, error) {
	res, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input:      openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)},
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: openai.Int(int64(e.dimension)),
	})
	if err != nil {
		return Embedding{}, fmt.Errorf("embed: %w", err)
	}
	if len(res.Data) == 0 {
		return Embedding{}, ErrEmptyResponse
	}

	raw := res.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i, v := range raw {
		vec[i] = float32(v)
	}
	return NewEmbedding(vec, e.model), nil
}
