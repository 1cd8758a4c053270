package openai_provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model       string   `json:"model"`
	Stream      bool     `json:"stream"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature *float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func chunk(field, text string) string {
	delta, _ := json.Marshal(map[string]string{field: text})
	return fmt.Sprintf(`data: {"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":%s}]}`+"\n\n", delta)
}

func newStreamServer(t *testing.T, captured *capturedRequest, events ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), "unexpected path %s", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			_, _ = w.Write([]byte(ev))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string, stream bool) *Client {
	t.Helper()
	temp := 0.2
	c, err := NewClient(Config{
		APIKey:      "test-key",
		BaseURL:     baseURL,
		Model:       "deepseek-reasoner",
		Temperature: &temp,
		MaxTokens:   512,
		MaxRetries:  0,
		Stream:      stream,
	})
	require.NoError(t, err)
	return c
}

func TestCompleteStreamConcatenatesContent(t *testing.T) {
	var req capturedRequest
	srv := newStreamServer(t, &req,
		chunk("reasoning_content", "Let me think. "),
		chunk("content", "Thought: done.\n"),
		chunk("content", "Action: Final Answer[Paris]"),
	)
	c := newTestClient(t, srv.URL, true)

	out, err := c.Complete(context.Background(), "What is the capital of France?")
	require.NoError(t, err)
	assert.Equal(t, "Thought: done.\nAction: Final Answer[Paris]", out)

	assert.Equal(t, "deepseek-reasoner", req.Model)
	assert.True(t, req.Stream)
	assert.Equal(t, 512, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.InDelta(t, 0.2, *req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.Equal(t, "What is the capital of France?", req.Messages[0].Content)
}

func TestCompleteStreamReasoningOnlyIsEmpty(t *testing.T) {
	var req capturedRequest
	srv := newStreamServer(t, &req, chunk("reasoning_content", "thinking forever"))
	c := newTestClient(t, srv.URL, true)

	_, err := c.Complete(context.Background(), "q")
	require.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestCompleteNonStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req capturedRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Action: Search[weather]","reasoning_content":"hmm"}}]}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, false)

	out, err := c.Complete(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "Action: Search[weather]", out)
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()
	c := newTestClient(t, srv.URL, true)

	_, err := c.Complete(context.Background(), "q")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "deepseek-reasoner")
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{Model: "m"})
	require.Error(t, err)
	_, err = NewClient(Config{APIKey: "k", Model: "  "})
	require.Error(t, err)
}

func TestReasoningContent(t *testing.T) {
	assert.Equal(t, "x", reasoningContent(`{"reasoning_content":"x","content":"y"}`))
	assert.Equal(t, "", reasoningContent(`{"content":"y"}`))
	assert.Equal(t, "", reasoningContent(`not json`))
	assert.Equal(t, "", reasoningContent(""))
}
