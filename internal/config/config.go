package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// Config aggregates every setting the service reads at startup.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	AI        AIConfig        `mapstructure:"completion"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Store     StoreConfig     `mapstructure:"store"`
	Chat      ChatConfig      `mapstructure:"chat"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig selects the zap level and encoder.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AuthConfig holds the credential trust key and the seeded operator account.
type AuthConfig struct {
	SecretKey                string `mapstructure:"secret_key"`
	Algorithm                string `mapstructure:"algorithm"`
	AccessTokenExpireMinutes int    `mapstructure:"access_token_expire_minutes"`
	DemoUsername             string `mapstructure:"demo_username"`
	DemoPassword             string `mapstructure:"demo_password"`
}

// TokenTTL returns the default credential lifetime.
func (c AuthConfig) TokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireMinutes) * time.Minute
}

// AIConfig describes the completion service.
type AIConfig struct {
	Provider     string        `mapstructure:"provider"`
	APIKey       string        `mapstructure:"api_key"`
	AccessKey    string        `mapstructure:"access_key"`
	SecretKey    string        `mapstructure:"secret_key"`
	Model        string        `mapstructure:"model"`
	BaseURL      string        `mapstructure:"base_url"`
	Region       string        `mapstructure:"region"`
	SystemPrompt string        `mapstructure:"system_prompt"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	RateBurst    int           `mapstructure:"rate_burst"`
}

// SentimentConfig selects the primary sentiment classifier.
type SentimentConfig struct {
	Provider string        `mapstructure:"provider"`
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the profile store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ChatConfig tunes the chat pipeline.
type ChatConfig struct {
	HistoryRetryMax time.Duration `mapstructure:"history_retry_max"`
}

const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"

	SentimentLexicon   = "lexicon"
	SentimentLLM       = "llm"
	SentimentInference = "inference"

	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// DefaultSentimentEndpoint is the hosted sst-2 classifier used by the inference provider.
const DefaultSentimentEndpoint = "https://api-inference.huggingface.co/models/distilbert-base-uncased-finetuned-sst-2-english"

// Enabled reports whether enough credentials are present to call the provider.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: set COMPLETION_API_KEY + COMPLETION_MODEL or an AK/SK pair")
	}

	temperature := float32(c.Temperature)
	maxTokens := c.MaxTokens

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

// Load reads defaults, an optional config file and the environment.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := bindEnv(v); err != nil {
		return nil, err
	}

	explicit := strings.TrimSpace(os.Getenv("CONFIG_FILE"))
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Addr)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr
	cfg.applyProviderDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("auth.algorithm", "HS256")
	v.SetDefault("auth.access_token_expire_minutes", 30)
	v.SetDefault("auth.demo_username", "johndoe")
	v.SetDefault("auth.demo_password", "secret")

	v.SetDefault("completion.provider", ProviderOpenAI)
	v.SetDefault("completion.system_prompt", "You are a helpful AI financial advisor.")
	v.SetDefault("completion.temperature", 0.7)
	v.SetDefault("completion.max_tokens", 200)
	v.SetDefault("completion.timeout", 20*time.Second)
	v.SetDefault("completion.rate_limit", 0.0)
	v.SetDefault("completion.rate_burst", 3)

	v.SetDefault("sentiment.provider", SentimentLexicon)
	v.SetDefault("sentiment.endpoint", DefaultSentimentEndpoint)
	v.SetDefault("sentiment.timeout", 5*time.Second)

	v.SetDefault("store.driver", StoreMemory)
	v.SetDefault("store.dsn", "advisor.db")

	v.SetDefault("chat.history_retry_max", 2*time.Second)
}

// bindEnv maps config keys to the environment variable names operators already use.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"server.addr":                      {"PORT"},
		"log.level":                        {"LOG_LEVEL"},
		"log.format":                       {"LOG_FORMAT"},
		"auth.secret_key":                  {"SECRET_KEY"},
		"auth.algorithm":                   {"ALGORITHM"},
		"auth.access_token_expire_minutes": {"ACCESS_TOKEN_EXPIRE_MINUTES"},
		"auth.demo_username":               {"AUTH_DEMO_USERNAME"},
		"auth.demo_password":               {"AUTH_DEMO_PASSWORD"},
		"completion.provider":              {"COMPLETION_PROVIDER"},
		"completion.api_key":               {"COMPLETION_API_KEY", "OPENAI_API_KEY", "ARK_API_KEY"},
		"completion.access_key":            {"ARK_ACCESS_KEY"},
		"completion.secret_key":            {"ARK_SECRET_KEY"},
		"completion.model":                 {"COMPLETION_MODEL"},
		"completion.base_url":              {"COMPLETION_BASE_URL"},
		"completion.region":                {"ARK_REGION"},
		"completion.system_prompt":         {"COMPLETION_SYSTEM_PROMPT"},
		"completion.temperature":           {"COMPLETION_TEMPERATURE"},
		"completion.max_tokens":            {"COMPLETION_MAX_TOKENS"},
		"completion.timeout":               {"COMPLETION_TIMEOUT"},
		"completion.rate_limit":            {"COMPLETION_RATE_LIMIT"},
		"completion.rate_burst":            {"COMPLETION_RATE_BURST"},
		"sentiment.provider":               {"SENTIMENT_PROVIDER"},
		"sentiment.endpoint":               {"SENTIMENT_ENDPOINT"},
		"sentiment.api_key":                {"SENTIMENT_API_KEY"},
		"sentiment.timeout":                {"SENTIMENT_TIMEOUT"},
		"store.driver":                     {"STORE_DRIVER"},
		"store.dsn":                        {"STORE_DSN"},
		"chat.history_retry_max":           {"CHAT_HISTORY_RETRY_MAX"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func (c *Config) applyProviderDefaults() {
	c.AI.Provider = strings.ToLower(strings.TrimSpace(c.AI.Provider))
	switch c.AI.Provider {
	case ProviderArk:
		if c.AI.BaseURL == "" {
			c.AI.BaseURL = "https://ark.cn-beijing.volces.com/api/v3"
		}
		if c.AI.Region == "" {
			c.AI.Region = "cn-beijing"
		}
	case ProviderOpenAI:
		if c.AI.Model == "" {
			c.AI.Model = "gpt-3.5-turbo"
		}
	}
	c.Sentiment.Provider = strings.ToLower(strings.TrimSpace(c.Sentiment.Provider))
	c.Store.Driver = strings.ToLower(strings.TrimSpace(c.Store.Driver))
	c.Auth.Algorithm = strings.ToUpper(strings.TrimSpace(c.Auth.Algorithm))
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.SecretKey) == "" {
		return errors.New("SECRET_KEY is required")
	}
	switch c.Auth.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("invalid ALGORITHM value %q: expected HS256, HS384 or HS512", c.Auth.Algorithm)
	}
	if c.Auth.AccessTokenExpireMinutes <= 0 {
		return fmt.Errorf("invalid ACCESS_TOKEN_EXPIRE_MINUTES value %d", c.Auth.AccessTokenExpireMinutes)
	}

	switch c.AI.Provider {
	case ProviderOpenAI, ProviderArk:
	default:
		return fmt.Errorf("invalid COMPLETION_PROVIDER value %q", c.AI.Provider)
	}
	if c.AI.MaxTokens <= 0 {
		return fmt.Errorf("invalid COMPLETION_MAX_TOKENS value %d", c.AI.MaxTokens)
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		return fmt.Errorf("invalid COMPLETION_TEMPERATURE value %v", c.AI.Temperature)
	}

	switch c.Sentiment.Provider {
	case SentimentLexicon, SentimentLLM, SentimentInference:
	default:
		return fmt.Errorf("invalid SENTIMENT_PROVIDER value %q", c.Sentiment.Provider)
	}

	switch c.Store.Driver {
	case StoreMemory, StoreSQLite:
	default:
		return fmt.Errorf("invalid STORE_DRIVER value %q", c.Store.Driver)
	}
	return nil
}

// normalizeAddr turns a PORT value into a listen address.
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are accepted as-is.
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}
