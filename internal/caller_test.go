package internal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestLLMCallerFallbackAfterFiveTransientFailures(t *testing.T) {
	clock := newStepClock(testEpoch)
	chat := newFakeChat().on("m", func(ChatRequest) (string, error) { return "", errTransient })
	caller := NewLLMCaller(chat, LLMRetryPolicy(clock), zaptest.NewLogger(t), nil)

	text, err := caller.Call(context.Background(), ChatRequest{Model: "m"})

	assert.Equal(t, FallbackResponse, text)
	assert.ErrorIs(t, err, ErrLLMUnavailable)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, 5, chat.Calls("m"))
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second, time.Second}, clock.Slept())
}

func TestLLMCallerRecoversAfterTransientFailures(t *testing.T) {
	failures := 3
	chat := newFakeChat().on("m", func(ChatRequest) (string, error) {
		if failures > 0 {
			failures--
			return "", errTransient
		}
		return "ok", nil
	})
	caller := NewLLMCaller(chat, noWaitPolicy(5), zaptest.NewLogger(t), nil)

	text, err := caller.Call(context.Background(), ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 4, chat.Calls("m"))
}

func TestLLMCallerHardErrorIsNotRetried(t *testing.T) {
	chat := newFakeChat().on("m", func(ChatRequest) (string, error) { return "", errors.New("invalid api key") })
	caller := NewLLMCaller(chat, noWaitPolicy(5), zaptest.NewLogger(t), nil)

	text, err := caller.Call(context.Background(), ChatRequest{Model: "m"})
	assert.Equal(t, FallbackResponse, text)
	assert.ErrorIs(t, err, ErrLLMUnavailable)
	assert.Equal(t, 1, chat.Calls("m"))
}

func TestLLMCallerStreamsInOrder(t *testing.T) {
	chat := newFakeChat().say("m", "one two three")
	caller := NewLLMCaller(chat, noWaitPolicy(5), zaptest.NewLogger(t), nil)

	text, err := caller.Call(context.Background(), ChatRequest{Model: "m", Stream: true})
	require.NoError(t, err)
	assert.Equal(t, "one two three", text)
}

func TestLLMCallerPerCallTimeout(t *testing.T) {
	var deadline bool
	chat := newFakeChat().on("m", func(req ChatRequest) (string, error) { return "x", nil })
	caller := NewLLMCaller(&deadlineChat{ChatModel: chat, seen: &deadline}, noWaitPolicy(1), zaptest.NewLogger(t), nil)

	_, err := caller.Call(context.Background(), ChatRequest{Model: "m", Timeout: time.Minute})
	require.NoError(t, err)
	assert.True(t, deadline)
}

type deadlineChat struct {
	ChatModel
	seen *bool
}

func (d *deadlineChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	_, *d.seen = ctx.Deadline()
	return d.ChatModel.Chat(ctx, req)
}
