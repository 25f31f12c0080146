package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const FallbackResponse = "I was unable to generate a response"

var ErrLLMUnavailable = errors.New("language model unavailable")

// LLMCaller wraps a ChatModel with the shared retry policy. Callers always get
// text back: on failure it is FallbackResponse and the error wraps
// ErrLLMUnavailable.
type LLMCaller struct {
	chat    ChatModel
	policy  RetryPolicy
	logger  *zap.Logger
	metrics *Metrics
}

func NewLLMCaller(chat ChatModel, policy RetryPolicy, logger *zap.Logger, metrics *Metrics) *LLMCaller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMCaller{
		chat:    chat,
		policy:  policy,
		logger:  logger.Named("llm"),
		metrics: metrics,
	}
}

func (c *LLMCaller) Call(ctx context.Context, req ChatRequest) (string, error) {
	var text string
	err := c.policy.Do(ctx, func(ctx context.Context) error {
		callCtx := ctx
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}

		if req.Stream {
			var b strings.Builder
			if err := c.chat.StreamChat(callCtx, req, func(delta string) {
				b.WriteString(delta)
			}); err != nil {
				c.logger.Warn("stream attempt failed", zap.String("model", req.Model), zap.Error(err))
				return err
			}
			text = b.String()
			return nil
		}

		out, err := c.chat.Chat(callCtx, req)
		if err != nil {
			c.logger.Warn("chat attempt failed", zap.String("model", req.Model), zap.Error(err))
			return err
		}
		text = out
		return nil
	})
	if err != nil {
		c.metrics.llmCall("fallback")
		c.logger.Error("llm call failed, using fallback", zap.String("model", req.Model), zap.Error(err))
		return FallbackResponse, fmt.Errorf("%w: %w", ErrLLMUnavailable, err)
	}

	c.metrics.llmCall("ok")
	return text, nil
}
