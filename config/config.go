package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the search agent
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Search    SearchConfig    `mapstructure:"search"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Debug    bool   `mapstructure:"debug"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address        string        `mapstructure:"address"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	MaxStepsLimit  int           `mapstructure:"max_steps_limit"`
}

func (s ServerConfig) Normalize() ServerConfig {
	s.Address = strings.TrimSpace(s.Address)
	if s.Address == "" {
		s.Address = ":8000"
	}
	if s.Address[0] != ':' && !strings.Contains(s.Address, ":") {
		s.Address = ":" + s.Address
	}
	if len(s.CORSOrigins) == 0 {
		s.CORSOrigins = []string{"*"}
	}
	return s
}

func (s ServerConfig) Validate() error {
	if s.RequestTimeout < 0 {
		return fmt.Errorf("server.request_timeout cannot be negative")
	}
	if s.MaxStepsLimit < 0 {
		return fmt.Errorf("server.max_steps_limit cannot be negative")
	}
	return nil
}

// LLMConfig describes the completion provider. Provider selects a preset for
// base_url/model; explicit values always win over the preset.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"` // openai, deepseek, dashscope, ollama
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature *float64      `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Stream      bool          `mapstructure:"stream"`
}

func (l LLMConfig) Normalize() LLMConfig {
	l.Provider = strings.ToLower(strings.TrimSpace(l.Provider))
	if l.Provider == "" {
		l.Provider = "deepseek"
	}
	l.APIKey = strings.TrimSpace(l.APIKey)
	l.BaseURL = strings.TrimSpace(l.BaseURL)
	l.Model = strings.TrimSpace(l.Model)
	return l
}

func (l LLMConfig) Validate() error {
	switch l.Provider {
	case "openai", "deepseek", "dashscope", "ollama":
	default:
		return fmt.Errorf("llm.provider %q is not supported", l.Provider)
	}
	if l.MaxTokens < 0 {
		return fmt.Errorf("llm.max_tokens cannot be negative")
	}
	if l.MaxRetries < 0 {
		return fmt.Errorf("llm.max_retries cannot be negative")
	}
	if l.Temperature != nil && (*l.Temperature < 0 || *l.Temperature > 2) {
		return fmt.Errorf("llm.temperature must be within [0, 2]")
	}
	return nil
}

// SearchConfig contains web search settings
type SearchConfig struct {
	Provider     string        `mapstructure:"provider"` // auto, serper, jina, brave
	SerperAPIKey string        `mapstructure:"serper_api_key"`
	JinaAPIKey   string        `mapstructure:"jina_api_key"`
	BraveAPIKey  string        `mapstructure:"brave_api_key"`
	MaxResults   int           `mapstructure:"max_results"`
	Country      string        `mapstructure:"country"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retries      int           `mapstructure:"retries"`
}

func (s SearchConfig) Normalize() SearchConfig {
	s.Provider = strings.ToLower(strings.TrimSpace(s.Provider))
	if s.Provider == "" {
		s.Provider = "auto"
	}
	if s.MaxResults <= 0 {
		s.MaxResults = 10
	}
	if s.Timeout <= 0 {
		s.Timeout = 15 * time.Second
	}
	return s
}

func (s SearchConfig) Validate() error {
	switch s.Provider {
	case "auto", "serper", "jina", "brave":
	default:
		return fmt.Errorf("search.provider %q is not supported", s.Provider)
	}
	if s.Retries < 0 {
		return fmt.Errorf("search.retries cannot be negative")
	}
	return nil
}

// AgentConfig bounds the reasoning loop.
type AgentConfig struct {
	MaxSteps          int           `mapstructure:"max_steps"`
	CompletionTimeout time.Duration `mapstructure:"completion_timeout"`
	RetrievalTimeout  time.Duration `mapstructure:"retrieval_timeout"`
	ParseRetries      int           `mapstructure:"parse_retries"`
	StrictParsing     bool          `mapstructure:"strict_parsing"`
}

func (a AgentConfig) Validate() error {
	if a.MaxSteps <= 0 {
		return fmt.Errorf("agent.max_steps must be greater than zero")
	}
	if a.CompletionTimeout < 0 || a.RetrievalTimeout < 0 {
		return fmt.Errorf("agent timeouts cannot be negative")
	}
	if a.ParseRetries < 0 {
		return fmt.Errorf("agent.parse_retries cannot be negative")
	}
	return nil
}

// CacheConfig controls caching of formatted search results.
type CacheConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"` // bound of the in-process cache
	Redis      RedisConfig   `mapstructure:"redis"`
}

func (c CacheConfig) Validate() error {
	if c.Enabled && c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0 when cache is enabled")
	}
	if c.Enabled && c.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0 when cache is enabled")
	}
	return c.Redis.Validate()
}

// RedisConfig contains Redis connection settings. An empty host selects the in-process cache.
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     string        `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

func (r RedisConfig) Addr() string {
	port := strings.TrimSpace(r.Port)
	if port == "" {
		port = "6379"
	}
	return fmt.Sprintf("%s:%s", strings.TrimSpace(r.Host), port)
}

func (r RedisConfig) Validate() error {
	if r.DB < 0 {
		return fmt.Errorf("cache.redis.db cannot be negative")
	}
	return nil
}

// TelemetryConfig contains tracing settings; Prometheus metrics are always exposed.
type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	OTLPInsecure bool    `mapstructure:"otlp_insecure"`
	SampleRate   float64 `mapstructure:"sample_rate"`
}

func (t TelemetryConfig) Normalize() TelemetryConfig {
	if strings.TrimSpace(t.ServiceName) == "" {
		t.ServiceName = "deepsearch"
	}
	if t.SampleRate <= 0 || t.SampleRate > 1 {
		t.SampleRate = 1
	}
	return t
}

func (t TelemetryConfig) Validate() error {
	if t.Enabled && strings.TrimSpace(t.OTLPEndpoint) == "" {
		return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is enabled")
	}
	return nil
}

// legacyEnv maps config keys to environment variable names used by earlier deployments.
var legacyEnv = map[string][]string{
	"llm.api_key":           {"DEEPSEEK_API_KEY", "DASHSCOPE_API_KEY", "OPENAI_API_KEY"},
	"search.serper_api_key": {"SERPER_API_KEY"},
	"search.jina_api_key":   {"JINA_AI_API_KEY"},
	"search.brave_api_key":  {"BRAVE_SEARCH_API_KEY"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.request_timeout", 5*time.Minute)
	v.SetDefault("server.max_steps_limit", 20)
	v.SetDefault("llm.provider", "deepseek")
	v.SetDefault("llm.timeout", 2*time.Minute)
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.stream", true)
	v.SetDefault("search.provider", "auto")
	v.SetDefault("search.max_results", 10)
	v.SetDefault("search.country", "cn")
	v.SetDefault("search.timeout", 15*time.Second)
	v.SetDefault("search.retries", 2)
	v.SetDefault("agent.max_steps", 5)
	v.SetDefault("agent.completion_timeout", 3*time.Minute)
	v.SetDefault("agent.retrieval_timeout", 30*time.Second)
	v.SetDefault("agent.parse_retries", 0)
	v.SetDefault("agent.strict_parsing", false)
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_entries", 1024)
	v.SetDefault("cache.redis.port", "6379")
	v.SetDefault("cache.redis.timeout", 5*time.Second)
	v.SetDefault("telemetry.service_name", "deepsearch")
	v.SetDefault("telemetry.sample_rate", 1.0)
}

// LoadConfig loads config from path, or from ./config/config.* / ./config.* when path is empty.
// A missing default config file is not an error; defaults and environment variables still apply.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			v.AddConfigPath(filepath.Dir(exe))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("DEEPSEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // read in environment variables that match (DEEPSEARCH_*)

	for key, names := range legacyEnv {
		envs := append([]string{"DEEPSEARCH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, names...)
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Server = cfg.Server.Normalize()
	cfg.LLM = cfg.LLM.Normalize()
	cfg.Search = cfg.Search.Normalize()
	cfg.Telemetry = cfg.Telemetry.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []func() error{
		c.Server.Validate,
		c.LLM.Validate,
		c.Search.Validate,
		c.Agent.Validate,
		c.Cache.Validate,
		c.Telemetry.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}
