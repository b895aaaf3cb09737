// Package config loads and validates the application configuration.
//
// Every component takes its settings from an explicit Config passed at
// construction; nothing reads ambient global state after startup.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// QdrantConfig contains connection details for the Qdrant vector store.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// ProviderConfig configures the market data provider (FinMind-style API).
type ProviderConfig struct {
	BaseURL     string `yaml:"base_url"`
	TokenEnv    string `yaml:"token_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbeddingConfig configures the embeddings endpoint.
// The endpoint must be OpenAI-compatible; VectorSize must match the model's
// output dimension and is used for both ingestion and query paths.
type EmbeddingConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
	Model      string `yaml:"model"`
	VectorSize int    `yaml:"vector_size"`
	BatchSize  int    `yaml:"batch_size"`
}

// LLMConfig configures the generation endpoint (chat completions).
type LLMConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// SyncConfig bounds the ingestion run.
type SyncConfig struct {
	Workers         int     `yaml:"workers"`
	FetchRatePerSec float64 `yaml:"fetch_rate_per_sec"`
	MaxAttempts     int     `yaml:"max_attempts"`
	DefaultDaysBack int     `yaml:"default_days_back"`
}

// RAGConfig bounds retrieval.
type RAGConfig struct {
	TopK           int     `yaml:"top_k"`
	ScoreThreshold float64 `yaml:"score_threshold"`
}

// Config is the root application configuration.
type Config struct {
	Qdrant       QdrantConfig      `yaml:"qdrant"`
	Provider     ProviderConfig    `yaml:"provider"`
	Embedding    EmbeddingConfig   `yaml:"embedding"`
	LLM          LLMConfig         `yaml:"llm"`
	Sync         SyncConfig        `yaml:"sync"`
	RAG          RAGConfig         `yaml:"rag"`
	Securities   map[string]string `yaml:"securities"`
	SystemPrompt string            `yaml:"system_prompt"`
}

// DefaultSystemPrompt is used when the config file does not override it.
const DefaultSystemPrompt = `You are a professional Taiwan stock market analysis assistant.
Analyze only the reference data provided, state the basis for each
conclusion, avoid promises or guarantees, and remind the user of
investment risk.`

// Default returns the built-in configuration, matching a local
// Qdrant + Ollama setup.
func Default() *Config {
	return &Config{
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "stock_analysis",
		},
		Provider: ProviderConfig{
			BaseURL:     "https://api.finmindtrade.com/api/v4/data",
			TokenEnv:    "FINMIND_TOKEN",
			TimeoutSecs: 30,
		},
		Embedding: EmbeddingConfig{
			BaseURL:    "http://localhost:11434/v1",
			APIKeyEnv:  "EMBEDDING_API_KEY",
			Model:      "nomic-embed-text",
			VectorSize: 768,
			BatchSize:  64,
		},
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434/v1",
			APIKeyEnv:   "LLM_API_KEY",
			Model:       "deepseek-r1:1.5b",
			TimeoutSecs: 120,
		},
		Sync: SyncConfig{
			Workers:         4,
			FetchRatePerSec: 2,
			MaxAttempts:     3,
			DefaultDaysBack: 2,
		},
		RAG: RAGConfig{
			TopK:           5,
			ScoreThreshold: 0.3,
		},
		Securities: map[string]string{
			"2330": "台積電",
			"2317": "鴻海",
			"2454": "聯發科",
			"2303": "聯電",
			"3711": "日月光投控",
			"2382": "廣達",
			"2308": "台達電",
			"2357": "華碩",
			"2379": "瑞昱",
			"3034": "聯詠",
			"2327": "國巨",
			"2408": "南亞科",
			"3008": "大立光",
			"2301": "光寶科",
			"2337": "旺宏",
		},
		SystemPrompt: DefaultSystemPrompt,
	}
}

// Load reads the config from path. A missing file yields defaults; a present
// file overrides defaults field by field. The result is validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		// yaml.v3 merges mapping nodes into a pre-populated map, which
		// would extend the default universe instead of replacing it. A
		// file that lists securities must define the whole universe.
		defaultSecurities := cfg.Securities
		cfg.Securities = nil
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if cfg.Securities == nil {
			cfg.Securities = defaultSecurities
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects out-of-range settings at startup instead of clamping.
func (c *Config) Validate() error {
	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag.top_k must be >= 1, got %d", c.RAG.TopK)
	}
	if c.RAG.ScoreThreshold < 0 || c.RAG.ScoreThreshold > 1 {
		return fmt.Errorf("rag.score_threshold must be in [0, 1], got %g", c.RAG.ScoreThreshold)
	}
	if c.Embedding.VectorSize <= 0 {
		return fmt.Errorf("embedding.vector_size must be > 0, got %d", c.Embedding.VectorSize)
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be >= 1, got %d", c.Sync.Workers)
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be >= 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.FetchRatePerSec <= 0 {
		return fmt.Errorf("sync.fetch_rate_per_sec must be > 0, got %g", c.Sync.FetchRatePerSec)
	}
	return nil
}

// ProviderToken resolves the provider API token from the configured
// environment variable. Empty is valid (unauthenticated, lower quota).
func (c *Config) ProviderToken() string {
	if c.Provider.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Provider.TokenEnv)
}
