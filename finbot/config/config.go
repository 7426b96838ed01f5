package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/finbot-ai/finbot/finbot"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Finbot    FinbotConfig    `mapstructure:"finbot"`
	Market    MarketConfig    `mapstructure:"market"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Harness   HarnessConfig   `mapstructure:"harness"`
	Server    ServerConfig    `mapstructure:"server"`
}

// DatabaseConfig stores the embedded database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"` // Path to the .db file
}

// FinbotConfig stores application-level settings.
type FinbotConfig struct {
	DataDir  string         `mapstructure:"data_dir"`
	Database DatabaseConfig `mapstructure:"database"`

	// Fallback selects what handles queries that match no keyword branch:
	// "rag" (guideline retrieval chain) or "tools" (LLM tool-calling loop).
	// Exactly one is active per deployment.
	Fallback string `mapstructure:"fallback"`
}

// MarketConfig stores market-data provider settings.
type MarketConfig struct {
	BaseURL   string        `mapstructure:"base_url"`   // Provider API root
	Timeout   time.Duration `mapstructure:"timeout"`    // Per-request timeout
	NewsLimit int           `mapstructure:"news_limit"` // Max headlines per lookup
}

// LLMConfig stores chat-completion provider settings. Any OpenAI-compatible
// endpoint works (OpenAI, Groq, a local server).
type LLMConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"` // Usually via FINBOT_LLM_API_KEY
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// EmbeddingConfig stores embedding provider settings.
type EmbeddingConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Dims      int           `mapstructure:"dims"`       // Target embedding dimensions
	BatchSize int           `mapstructure:"batch_size"` // Texts per request during index build
	Timeout   time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig stores guideline-index settings.
type RetrievalConfig struct {
	DocumentPath string `mapstructure:"document_path"` // Guideline source document
	StoreID      string `mapstructure:"store_id"`      // Persisted store identifier
	ChunkSize    int    `mapstructure:"chunk_size"`    // Splitter chunk size in bytes
	ChunkOverlap int    `mapstructure:"chunk_overlap"` // Overlap carried between chunks
	K            int    `mapstructure:"k"`             // Top-k passages per query
}

// HarnessConfig stores tool-calling loop configurations.
type HarnessConfig struct {
	// Cache settings
	CacheEnabled    bool `mapstructure:"cache_enabled"`     // Enable reply memoization
	CacheCapacity   int  `mapstructure:"cache_capacity"`    // LRU cache capacity
	CacheTTLSeconds int  `mapstructure:"cache_ttl_seconds"` // Cache entry TTL

	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`

	// Policies. The loop performs at most one tool-result re-injection round
	// per user turn; ToolTimeout bounds each individual tool execution.
	ToolTimeout time.Duration `mapstructure:"tool_timeout"`

	// ContextTurns is how many audited turns are reloaded when a session
	// resumes with an empty transcript (returning cookie after a restart).
	// Zero disables rehydration.
	ContextTurns int `mapstructure:"context_turns"`

	// Safety and validation
	EnableGuardrails bool     `mapstructure:"enable_guardrails"` // Schema-validate tool arguments
	AllowedTools     []string `mapstructure:"allowed_tools"`     // Whitelist of tool names

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// ServerConfig stores HTTP chat-UI settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetDefault("finbot.data_dir", internal.DefaultDataDir)
	viper.SetDefault("finbot.database.path", internal.DefaultDatabasePath)
	viper.SetDefault("finbot.fallback", "tools")

	// Market defaults
	viper.SetDefault("market.base_url", "https://query1.finance.yahoo.com")
	viper.SetDefault("market.timeout", "10s")
	viper.SetDefault("market.news_limit", 8)

	// LLM defaults (tool-loop tuning from the trading assistant)
	viper.SetDefault("llm.base_url", "https://api.openai.com/v1")
	viper.SetDefault("llm.model", "gpt-4o")
	viper.SetDefault("llm.temperature", 0.2)
	viper.SetDefault("llm.max_tokens", 150)
	viper.SetDefault("llm.timeout", "60s")

	// Embedding defaults
	viper.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dims", 768)
	viper.SetDefault("embedding.batch_size", 32)
	viper.SetDefault("embedding.timeout", "30s")

	// Retrieval defaults (guideline document splitter)
	viper.SetDefault("retrieval.document_path", internal.DefaultGuidelinePath)
	viper.SetDefault("retrieval.store_id", internal.DefaultStoreID)
	viper.SetDefault("retrieval.chunk_size", 768)
	viper.SetDefault("retrieval.chunk_overlap", 128)
	viper.SetDefault("retrieval.k", 2)

	// Harness defaults
	viper.SetDefault("harness.cache_enabled", true)
	viper.SetDefault("harness.cache_capacity", 1000)
	viper.SetDefault("harness.cache_ttl_seconds", 3600)
	viper.SetDefault("harness.rate_limit_enabled", true)
	viper.SetDefault("harness.rate_limit_capacity", 10)
	viper.SetDefault("harness.rate_limit_refill_rate", "1s")
	viper.SetDefault("harness.tool_timeout", "30s")
	viper.SetDefault("harness.context_turns", 12)
	viper.SetDefault("harness.enable_guardrails", true)
	viper.SetDefault("harness.allowed_tools", []string{"get_stock_info", "trade_stock"})
	viper.SetDefault("harness.enable_tracing", true)

	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	viper.AutomaticEnv()
	viper.SetEnvPrefix(strings.ToUpper(internal.DefaultAppName))
	// Replace dots with underscores in env var names e.g. llm.api_key becomes FINBOT_LLM_API_KEY
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and env vars apply.
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := validate(&AppConfig); err != nil {
		return nil, err
	}

	return &AppConfig, nil
}

func validate(cfg *Config) error {
	switch cfg.Finbot.Fallback {
	case "rag", "tools":
	default:
		return fmt.Errorf("finbot.fallback must be \"rag\" or \"tools\", got %q", cfg.Finbot.Fallback)
	}
	if cfg.Retrieval.ChunkOverlap >= cfg.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap (%d) must be smaller than retrieval.chunk_size (%d)",
			cfg.Retrieval.ChunkOverlap, cfg.Retrieval.ChunkSize)
	}
	if cfg.Retrieval.K < 1 {
		return fmt.Errorf("retrieval.k must be at least 1, got %d", cfg.Retrieval.K)
	}
	return nil
}
