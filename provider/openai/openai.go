package openai_provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

// ErrEmptyCompletion is returned when the API answered but produced no content.
var ErrEmptyCompletion = errors.New("openai: empty completion")

type chatCompletions interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
	NewStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[openai.ChatCompletionChunk]
}

// Config describes one OpenAI-compatible chat completion endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	MaxTokens   int
	Timeout     time.Duration
	MaxRetries  int
	Stream      bool
	HTTPClient  *http.Client
	Logger      *zap.SugaredLogger
}

// Client sends a single user message per call and returns the assembled
// answer text. Reasoning tokens (reasoning_content) are logged, never returned.
type Client struct {
	completions chatCompletions
	model       string
	temperature *float64
	maxTokens   int
	stream      bool
	logger      *zap.SugaredLogger
}

// NewClient creates a Client for any OpenAI-compatible API (OpenAI, DeepSeek,
// DashScope, Ollama).
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai: api key required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, errors.New("openai: model required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	client := openai.NewClient(opts...)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Client{
		completions: &client.Chat.Completions,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		stream:      cfg.Stream,
		logger:      logger,
	}, nil
}

func (c *Client) Model() string { return c.model }

// Complete implements core.CompletionProvider.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	params := c.params(prompt)
	var (
		content, reasoning string
		err                error
	)
	if c.stream {
		content, reasoning, err = c.completeStream(ctx, params)
	} else {
		content, reasoning, err = c.completeOnce(ctx, params)
	}
	if err != nil {
		return "", fmt.Errorf("chat completion (%s): %w", c.model, err)
	}
	if reasoning != "" {
		c.logger.Debugw("model reasoning", "model", c.model, "reasoning", reasoning)
	}
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

func (c *Client) params(prompt string) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(int64(c.maxTokens))
	}
	if c.temperature != nil {
		params.Temperature = openai.Float(*c.temperature)
	}
	return params
}

func (c *Client) completeOnce(ctx context.Context, params openai.ChatCompletionNewParams) (string, string, error) {
	resp, err := c.completions.New(ctx, params)
	if err != nil {
		return "", "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", "", nil
	}
	msg := resp.Choices[0].Message
	return msg.Content, reasoningContent(msg.RawJSON()), nil
}

func (c *Client) completeStream(ctx context.Context, params openai.ChatCompletionNewParams) (string, string, error) {
	stream := c.completions.NewStreaming(ctx, params)
	if stream == nil {
		return "", "", errors.New("openai stream not available")
	}
	defer stream.Close()

	var content, reasoning strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		for _, choice := range chunk.Choices {
			delta := choice.Delta
			reasoning.WriteString(reasoningContent(delta.RawJSON()))
			content.WriteString(delta.Content)
		}
	}
	if err := stream.Err(); err != nil {
		return "", "", err
	}
	return content.String(), reasoning.String(), nil
}

// reasoningContent extracts the non-standard reasoning_content field sent by
// reasoning models such as deepseek-reasoner.
func reasoningContent(raw string) string {
	if raw == "" {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return ""
	}
	rc, ok := fields["reasoning_content"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(rc, &s); err != nil {
		return ""
	}
	return s
}
