// Package config loads application configuration from environment variables.
// All variables use the RECALL_ prefix.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/recall/internal/srs"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Cache      CacheConfig
	AI         AIConfig
	Generation GenerationConfig
	Telegram   TelegramConfig
	WebSocket  WebSocketConfig
	Study      StudyConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int
	Host string
}

// DatabaseConfig holds PostgreSQL connection settings. An empty URL
// disables event storage in Postgres.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	MinConns int
}

// CacheConfig holds Redis settings for the generation cache. An empty URL
// disables caching.
type CacheConfig struct {
	URL string
	TTL time.Duration
}

// AIConfig holds configuration for the model providers.
type AIConfig struct {
	OpenAI            OpenAIConfig
	DeepSeek          DeepSeekConfig
	Ollama            OllamaConfig
	OpenRouter        OpenRouterConfig
	RequestsPerMinute int // 0 means unlimited
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// DeepSeekConfig holds DeepSeek provider settings (OpenAI-compatible).
type DeepSeekConfig struct {
	APIKey string
}

// OllamaConfig holds self-hosted Ollama settings.
type OllamaConfig struct {
	Enabled bool
	URL     string
}

// OpenRouterConfig holds OpenRouter provider settings.
type OpenRouterConfig struct {
	APIKey string
}

// GenerationConfig controls how cards are generated from documents.
type GenerationConfig struct {
	ServiceURL    string // external flashcard service; takes precedence over AI
	MaxChunkChars int
	Concurrency   int
	TokenBudget   int64 // per user, 0 means unlimited
	Timeout       time.Duration
}

// TelegramConfig holds Telegram Bot API settings.
type TelegramConfig struct {
	BotToken string
}

// WebSocketConfig holds settings for the WebSocket transport.
type WebSocketConfig struct {
	Enabled        bool
	OriginPatterns []string
}

// StudyConfig holds study session defaults.
type StudyConfig struct {
	DecksPath           string
	DefaultQuestionType string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables with RECALL_ prefix.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("RECALL_SERVER_PORT", 8080),
			Host: envStr("RECALL_SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			URL:      envStr("RECALL_DATABASE_URL", ""),
			MaxConns: envInt("RECALL_DATABASE_MAX_CONNS", 10),
			MinConns: envInt("RECALL_DATABASE_MIN_CONNS", 2),
		},
		Cache: CacheConfig{
			URL: envStr("RECALL_CACHE_URL", ""),
			TTL: envDuration("RECALL_CACHE_TTL", 24*time.Hour),
		},
		AI: AIConfig{
			OpenAI: OpenAIConfig{
				APIKey: envStr("RECALL_AI_OPENAI_API_KEY", ""),
				Model:  envStr("RECALL_AI_OPENAI_MODEL", ""),
			},
			DeepSeek: DeepSeekConfig{
				APIKey: envStr("RECALL_AI_DEEPSEEK_API_KEY", ""),
			},
			Ollama: OllamaConfig{
				Enabled: envBool("RECALL_AI_OLLAMA_ENABLED", false),
				URL:     envStr("RECALL_AI_OLLAMA_URL", "http://localhost:11434"),
			},
			OpenRouter: OpenRouterConfig{
				APIKey: envStr("RECALL_AI_OPENROUTER_API_KEY", ""),
			},
			RequestsPerMinute: envInt("RECALL_AI_REQUESTS_PER_MINUTE", 0),
		},
		Generation: GenerationConfig{
			ServiceURL:    envStr("RECALL_GENERATOR_URL", ""),
			MaxChunkChars: envInt("RECALL_GENERATION_MAX_CHUNK_CHARS", 12000),
			Concurrency:   envInt("RECALL_GENERATION_CONCURRENCY", 4),
			TokenBudget:   int64(envInt("RECALL_GENERATION_TOKEN_BUDGET", 0)),
			Timeout:       envDuration("RECALL_GENERATION_TIMEOUT", 3*time.Minute),
		},
		Telegram: TelegramConfig{
			BotToken: envStr("RECALL_TELEGRAM_BOT_TOKEN", ""),
		},
		WebSocket: WebSocketConfig{
			Enabled:        envBool("RECALL_WEBSOCKET_ENABLED", false),
			OriginPatterns: envList("RECALL_WEBSOCKET_ORIGINS"),
		},
		Study: StudyConfig{
			DecksPath:           envStr("RECALL_DECKS_PATH", ""),
			DefaultQuestionType: envStr("RECALL_DEFAULT_QUESTION_TYPE", string(srs.ShortAnswer)),
		},
		Log: LogConfig{
			Level:  envStr("RECALL_LOG_LEVEL", "info"),
			Format: envStr("RECALL_LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" && !c.WebSocket.Enabled {
		return fmt.Errorf("RECALL_TELEGRAM_BOT_TOKEN or RECALL_WEBSOCKET_ENABLED is required")
	}

	if !c.HasGenerator() && c.Study.DecksPath == "" {
		return fmt.Errorf("configure RECALL_GENERATOR_URL, an AI provider, or RECALL_DECKS_PATH")
	}

	if _, err := srs.ParseQuestionType(c.Study.DefaultQuestionType); err != nil {
		return fmt.Errorf("RECALL_DEFAULT_QUESTION_TYPE: %w", err)
	}

	if c.Generation.MaxChunkChars <= 0 {
		return fmt.Errorf("RECALL_GENERATION_MAX_CHUNK_CHARS must be positive, got %d", c.Generation.MaxChunkChars)
	}
	if c.Generation.Concurrency <= 0 {
		return fmt.Errorf("RECALL_GENERATION_CONCURRENCY must be positive, got %d", c.Generation.Concurrency)
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("RECALL_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	return nil
}

// HasAIProvider returns true if at least one AI provider is configured.
func (c *Config) HasAIProvider() bool {
	return c.AI.OpenAI.APIKey != "" ||
		c.AI.DeepSeek.APIKey != "" ||
		c.AI.OpenRouter.APIKey != "" ||
		c.AI.Ollama.Enabled
}

// HasGenerator returns true if documents can be turned into cards.
func (c *Config) HasGenerator() bool {
	return c.Generation.ServiceURL != "" || c.HasAIProvider()
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		return strings.EqualFold(v, "true") || v == "1"
	}
	return fallback
}

// envDuration accepts Go durations ("90s", "2h") or a plain number of seconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
