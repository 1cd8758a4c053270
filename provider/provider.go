package provider

import (
	"errors"
	"fmt"

	"github.com/mohammad-safakhou/deepsearch/config"
	openai_provider "github.com/mohammad-safakhou/deepsearch/provider/openai"
	"go.uber.org/zap"
)

// Client represents the supported OpenAI-compatible LLM backends
type Client string

const (
	OpenAI    Client = "openai"
	DeepSeek  Client = "deepseek"
	DashScope Client = "dashscope"
	Ollama    Client = "ollama"
)

// ErrEmptyCompletion is returned when the backend answered without content.
var ErrEmptyCompletion = openai_provider.ErrEmptyCompletion

type preset struct {
	baseURL string
	model   string
	keyless bool
}

var presets = map[Client]preset{
	OpenAI:    {baseURL: "https://api.openai.com/v1", model: "gpt-4o-mini"},
	DeepSeek:  {baseURL: "https://api.deepseek.com", model: "deepseek-reasoner"},
	DashScope: {baseURL: "https://dashscope.aliyuncs.com/compatible-mode/v1", model: "qwen-plus"},
	Ollama:    {baseURL: "http://localhost:11434/v1", model: "qwen2.5", keyless: true},
}

// NewProvider creates the completion client described by cfg. Explicit
// base_url and model override the provider preset.
func NewProvider(cfg config.LLMConfig, logger *zap.SugaredLogger) (*openai_provider.Client, error) {
	p, ok := presets[Client(cfg.Provider)]
	if !ok {
		return nil, fmt.Errorf("unsupported LLM provider %q", cfg.Provider)
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		if !p.keyless {
			return nil, errors.New("llm.api_key not set")
		}
		// ollama ignores the key but the client requires one
		apiKey = string(Ollama)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = p.baseURL
	}
	model := cfg.Model
	if model == "" {
		model = p.model
	}
	return openai_provider.NewClient(openai_provider.Config{
		APIKey:      apiKey,
		BaseURL:     baseURL,
		Model:       model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.Timeout,
		MaxRetries:  cfg.MaxRetries,
		Stream:      cfg.Stream,
		Logger:      logger,
	})
}
