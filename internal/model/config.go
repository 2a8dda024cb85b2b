package model

import (
	"fmt"
	"time"
)

// Config is the complete TactiMerge configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Corpus      CorpusConfig      `yaml:"corpus" mapstructure:"corpus"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" mapstructure:"retrieval"`
	Prediction  PredictionConfig  `yaml:"prediction" mapstructure:"prediction"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit" mapstructure:"rate_limit"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Eras        EraTaxonomy       `yaml:"eras" mapstructure:"eras"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `yaml:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"` // Caller-side bound per request
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

// CorpusConfig selects and configures the Corpus Store backend.
type CorpusConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"` // sqlite, qdrant
	Path       string `yaml:"path" mapstructure:"path"`     // SQLite file
	QdrantAddr string `yaml:"qdrant_addr" mapstructure:"qdrant_addr"`
	Collection string `yaml:"collection" mapstructure:"collection"` // Qdrant collection prefix
}

// EmbeddingConfig configures the single embedding function of a deployment.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" mapstructure:"provider"` // hashing, openai, ollama
	Model      string        `yaml:"model" mapstructure:"model"`
	Dimensions int           `yaml:"dimensions" mapstructure:"dimensions"`
	APIKey     string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL    string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// LLMConfig configures the evidence summarizer backend.
type LLMConfig struct {
	Provider    string        `yaml:"provider" mapstructure:"provider"` // stats, openai, anthropic, ollama
	Model       string        `yaml:"model" mapstructure:"model"`
	APIKey      string        `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32       `yaml:"temperature" mapstructure:"temperature"`
	HTTPProxy   string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy  string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy     string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// RetrievalConfig bounds evidence sets.
type RetrievalConfig struct {
	DefaultK int `yaml:"default_k" mapstructure:"default_k"`
	MaxK     int `yaml:"max_k" mapstructure:"max_k"`
}

// PredictionConfig tunes the prediction engine.
type PredictionConfig struct {
	MaxGoals      int     `yaml:"max_goals" mapstructure:"max_goals"`           // Poisson grid truncation
	AdjustmentCap float64 `yaml:"adjustment_cap" mapstructure:"adjustment_cap"` // Qualitative factor stays within 1±cap
	PriorGoals    float64 `yaml:"prior_goals" mapstructure:"prior_goals"`       // Shrinkage target per match
	PriorWeight   float64 `yaml:"prior_weight" mapstructure:"prior_weight"`     // Pseudo-matches of prior
	FillMethod    string  `yaml:"fill_method" mapstructure:"fill_method"`       // league_mean, team_median, zero
	Adjuster      string  `yaml:"adjuster" mapstructure:"adjuster"`             // trend, none
}

// RetryConfig bounds retries of transient external failures.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialWait time.Duration `yaml:"initial_wait" mapstructure:"initial_wait"`
	MaxWait     time.Duration `yaml:"max_wait" mapstructure:"max_wait"`
}

// RateLimitConfig limits calls per external backend.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size" mapstructure:"burst_size"`
}

// ConcurrencyConfig sizes worker pools.
type ConcurrencyConfig struct {
	IngestWorkers int `yaml:"ingest_workers" mapstructure:"ingest_workers"`
	SynthWorkers  int `yaml:"synth_workers" mapstructure:"synth_workers"`
}

// CacheConfig configures the embedding cache.
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `yaml:"format" mapstructure:"format"` // text, json
}

// DefaultConfig returns a configuration that runs fully offline.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    90 * time.Second,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Corpus: CorpusConfig{
			Driver:     "sqlite",
			Path:       "tactimerge.db",
			QdrantAddr: "localhost:6334",
			Collection: "match_reports",
		},
		Embedding: EmbeddingConfig{
			Provider:   "hashing",
			Dimensions: 512,
			Timeout:    20 * time.Second,
		},
		LLM: LLMConfig{
			Provider:    "stats",
			Timeout:     45 * time.Second,
			MaxTokens:   800,
			Temperature: 0.2,
		},
		Retrieval: RetrievalConfig{
			DefaultK: 12,
			MaxK:     50,
		},
		Prediction: PredictionConfig{
			MaxGoals:      10,
			AdjustmentCap: 0.15,
			PriorGoals:    1.35,
			PriorWeight:   1,
			FillMethod:    "league_mean",
			Adjuster:      "trend",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     8 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		Concurrency: ConcurrencyConfig{
			IngestWorkers: 4,
			SynthWorkers:  3,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".tactimerge-cache",
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Eras: DefaultEras(),
	}
}

// Validate checks values that would otherwise fail deep inside a component.
func (c Config) Validate() error {
	if err := c.Eras.Validate(); err != nil {
		return fmt.Errorf("eras: %w", err)
	}
	if c.Retrieval.DefaultK <= 0 || c.Retrieval.MaxK < c.Retrieval.DefaultK {
		return fmt.Errorf("retrieval: need 0 < default_k <= max_k, got %d/%d", c.Retrieval.DefaultK, c.Retrieval.MaxK)
	}
	if c.Prediction.AdjustmentCap < 0 || c.Prediction.AdjustmentCap >= 1 {
		return fmt.Errorf("prediction: adjustment_cap must be in [0,1), got %v", c.Prediction.AdjustmentCap)
	}
	if c.Prediction.MaxGoals < 1 {
		return fmt.Errorf("prediction: max_goals must be positive")
	}
	if c.Prediction.PriorGoals <= 0 {
		return fmt.Errorf("prediction: prior_goals must be positive")
	}
	switch c.Prediction.FillMethod {
	case "league_mean", "team_median", "zero":
	default:
		return fmt.Errorf("prediction: unknown fill_method %q", c.Prediction.FillMethod)
	}
	switch c.Prediction.Adjuster {
	case "trend", "none":
	default:
		return fmt.Errorf("prediction: unknown adjuster %q", c.Prediction.Adjuster)
	}
	switch c.Corpus.Driver {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("corpus: unknown driver %q", c.Corpus.Driver)
	}
	return nil
}
