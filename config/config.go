// Package config defines the flowmap configuration: plain data types, defaults
// and validation, plus a viper loader for files and FLOWMAP_* environment
// variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
)

// Database backends.
const (
	BackendXata       = "xata"
	BackendOpenSearch = "opensearch"
	BackendPostgres   = "postgres"
)

// LLMConfig selects the OpenAI-compatible generation endpoint.
type LLMConfig struct {
	APIKey       string `mapstructure:"api_key"`
	Model        string `mapstructure:"model"`
	BaseURL      string `mapstructure:"base_url"`
	Organization string `mapstructure:"organization"`

	// WebSearch gives the synonym expander an internet search tool.
	WebSearch        bool `mapstructure:"web_search"`
	SearchMaxResults int  `mapstructure:"search_max_results"`
}

// RegistryConfig configures the CAS Common Chemistry client.
type RegistryConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
	RetryMax int           `mapstructure:"retry_max"`

	// MaxAttempts is how many synonyms are looked up, in order, until one
	// yields a number.
	MaxAttempts int `mapstructure:"max_attempts"`
}

// XataConfig holds Xata REST API parameters.
type XataConfig struct {
	DatabaseURL string        `mapstructure:"database_url"`
	Branch      string        `mapstructure:"branch"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryMax    int           `mapstructure:"retry_max"`
}

// OpenSearchConfig holds OpenSearch cluster connection parameters.
type OpenSearchConfig struct {
	Addresses     []string `mapstructure:"addresses"`
	Username      string   `mapstructure:"username"`
	Password      string   `mapstructure:"password"`
	TLSSkipVerify bool     `mapstructure:"tls_skip_verify"`
	MaxRetries    int      `mapstructure:"max_retries"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN              string  `mapstructure:"dsn"`
	TextSearchConfig string  `mapstructure:"text_search_config"`
	MinSimilarity    float64 `mapstructure:"min_similarity"`
	MaxConns         int32   `mapstructure:"max_conns"`
}

// DatabaseConfig selects the LCA database backend. Only the block named by
// Backend is read.
type DatabaseConfig struct {
	Backend string `mapstructure:"backend"`

	// Table holds the flows.
	Table string `mapstructure:"table"`

	Xata       XataConfig       `mapstructure:"xata"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
}

// CacheConfig configures the Redis cache in front of the CAS registry.
type CacheConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	TTL       time.Duration `mapstructure:"ttl"`
	EmptyTTL  time.Duration `mapstructure:"empty_ttl"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// TimeoutsConfig bounds each pipeline stage.
type TimeoutsConfig struct {
	Extract  time.Duration `mapstructure:"extract"`
	Synonyms time.Duration `mapstructure:"synonyms"`
	CAS      time.Duration `mapstructure:"cas"`
	Flows    time.Duration `mapstructure:"flows"`
}

// PipelineConfig holds the resolution pipeline tunables.
type PipelineConfig struct {
	TopN        int `mapstructure:"top_n"`
	CompactTopN int `mapstructure:"compact_top_n"`

	// CategoryFallback is "cas_only" or "fuzzy".
	CategoryFallback string `mapstructure:"category_fallback"`
	FuzzyOnEmpty     bool   `mapstructure:"fuzzy_on_empty"`

	MaxSynonymRounds int            `mapstructure:"max_synonym_rounds"`
	Concurrency      int            `mapstructure:"concurrency"`
	Timeouts         TimeoutsConfig `mapstructure:"timeouts"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
	Path string `mapstructure:"path"`
}

// Config is the root configuration.
type Config struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Registry RegistryConfig `mapstructure:"registry"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Log      logging.Config `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// Validate checks cfg after defaults have been applied. Every error wraps
// flowmap.ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return invalid("llm.api_key is required")
	}
	if c.LLM.SearchMaxResults < 1 {
		return invalid("llm.search_max_results must be >= 1, got %d", c.LLM.SearchMaxResults)
	}

	if c.Registry.RetryMax < 0 {
		return invalid("registry.retry_max must be >= 0, got %d", c.Registry.RetryMax)
	}
	if c.Registry.MaxAttempts < 1 || c.Registry.MaxAttempts > flowmap.MaxSynonyms {
		return invalid("registry.max_attempts %d is out of range [1, %d]",
			c.Registry.MaxAttempts, flowmap.MaxSynonyms)
	}

	switch c.Database.Backend {
	case BackendXata:
		if c.Database.Xata.DatabaseURL == "" {
			return invalid("database.xata.database_url is required")
		}
		if c.Database.Xata.APIKey == "" {
			return invalid("database.xata.api_key is required")
		}
	case BackendOpenSearch:
		if len(c.Database.OpenSearch.Addresses) == 0 {
			return invalid("database.opensearch.addresses must contain at least one address")
		}
	case BackendPostgres:
		if c.Database.Postgres.DSN == "" {
			return invalid("database.postgres.dsn is required")
		}
		if s := c.Database.Postgres.MinSimilarity; s < 0 || s > 1 {
			return invalid("database.postgres.min_similarity %g is out of range [0, 1]", s)
		}
	default:
		return invalid("database.backend %q is invalid; expected xata|opensearch|postgres", c.Database.Backend)
	}

	if c.Cache.Enabled {
		if c.Cache.Addr == "" {
			return invalid("cache.addr is required when the cache is enabled")
		}
		if c.Cache.TTL <= 0 {
			return invalid("cache.ttl must be positive")
		}
	}

	p := c.Pipeline
	if p.TopN < 1 {
		return invalid("pipeline.top_n must be >= 1, got %d", p.TopN)
	}
	if p.CompactTopN < 1 {
		return invalid("pipeline.compact_top_n must be >= 1, got %d", p.CompactTopN)
	}
	switch strings.ToLower(p.CategoryFallback) {
	case "cas_only", "fuzzy":
	default:
		return invalid("pipeline.category_fallback %q is invalid; expected cas_only|fuzzy", p.CategoryFallback)
	}
	if p.MaxSynonymRounds < 1 {
		return invalid("pipeline.max_synonym_rounds must be >= 1, got %d", p.MaxSynonymRounds)
	}
	if p.Concurrency < 1 {
		return invalid("pipeline.concurrency must be >= 1, got %d", p.Concurrency)
	}
	for name, d := range map[string]time.Duration{
		"extract":  p.Timeouts.Extract,
		"synonyms": p.Timeouts.Synonyms,
		"cas":      p.Timeouts.CAS,
		"flows":    p.Timeouts.Flows,
	} {
		if d < 0 {
			return invalid("pipeline.timeouts.%s must not be negative", name)
		}
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return invalid("log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", flowmap.ErrInvalidConfig, fmt.Sprintf(format, args...))
}
