package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupOpenAITest(t *testing.T, handler http.HandlerFunc) OpenAIConfig {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "base-model"}
}

func TestOpenAICompleterSendsSamplingParams(t *testing.T) {
	var body map[string]any
	cfg := setupOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","created":1,"model":"base-model",
			"choices":[{"text":" the terminal hums","index":0,"finish_reason":"stop","logprobs":null}]}`))
	})

	completer := NewOpenAICompleter(cfg)
	text, err := completer.Complete(t.Context(), CompletionRequest{
		Prompt:      "<|im_start|>",
		MaxTokens:   64,
		Temperature: 1,
		TopP:        0.95,
		TopK:        40,
		Stop:        []string{"<|im_end|>"},
	})
	require.NoError(t, err)
	assert.Equal(t, " the terminal hums", text)

	assert.Equal(t, "base-model", body["model"])
	assert.Equal(t, "<|im_start|>", body["prompt"])
	assert.EqualValues(t, 64, body["max_tokens"])
	assert.EqualValues(t, 40, body["top_k"])
	assert.Equal(t, []any{"<|im_end|>"}, body["stop"])
}

func TestOpenAICompleterEmptyChoices(t *testing.T) {
	cfg := setupOpenAITest(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cmpl-1","object":"text_completion","created":1,"model":"m","choices":[]}`))
	})

	_, err := NewOpenAICompleter(cfg).Complete(t.Context(), CompletionRequest{Prompt: "x"})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIEmbedder(t *testing.T) {
	var body map[string]any
	cfg := setupOpenAITest(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","model":"text-embedding-3-small",
			"data":[{"object":"embedding","index":0,"embedding":[0.25,0.5,0.75,1]}],
			"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	})
	cfg.Model = "text-embedding-3-small"

	embedder := NewOpenAIEmbedder(cfg, 4)
	emb, err := embedder.Embed(t.Context(), "hello there")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.25, 0.5, 0.75, 1}, emb.Vector)
	assert.Equal(t, 4, emb.Dimension)
	assert.Equal(t, "text-embedding-3-small", emb.Model)
	assert.EqualValues(t, 4, body["dimensions"])
	assert.Equal(t, "hello there", body["input"])
}

func TestOpenAIEmbedderServerError(t *testing.T) {
	cfg := setupOpenAITest(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"overloaded"}}`, http.StatusServiceUnavailable)
	})

	_, err := NewOpenAIEmbedder(cfg, 4).Embed(t.Context(), "x")
	require.Error(t, err)
	assert.True(t, IsTransient(err), "5xx should be retryable: %v", err)
}
