package config

import (
	"testing"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{
		LLM: LLMConfig{APIKey: "sk-test"},
		Database: DatabaseConfig{
			Xata: XataConfig{DatabaseURL: "https://ws.xata.sh/db/lca", APIKey: "xau_test"},
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, flowmap.DefaultModel, cfg.LLM.Model)
	assert.Equal(t, "https://commonchemistry.cas.org/api", cfg.Registry.BaseURL)
	assert.Equal(t, 1, cfg.Registry.MaxAttempts)
	assert.Equal(t, BackendXata, cfg.Database.Backend)
	assert.Equal(t, "flow", cfg.Database.Table)
	assert.Equal(t, "main", cfg.Database.Xata.Branch)
	assert.Equal(t, 5, cfg.Pipeline.TopN)
	assert.Equal(t, 3, cfg.Pipeline.CompactTopN)
	assert.Equal(t, "cas_only", cfg.Pipeline.CategoryFallback)
	assert.False(t, cfg.Pipeline.FuzzyOnEmpty)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.Timeouts.Extract)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Backend: BackendPostgres, Table: "flows_v2"},
		Pipeline: PipelineConfig{TopN: 10, CategoryFallback: "fuzzy"},
	}
	ApplyDefaults(cfg)

	assert.Equal(t, BackendPostgres, cfg.Database.Backend)
	assert.Equal(t, "flows_v2", cfg.Database.Table)
	assert.Equal(t, 10, cfg.Pipeline.TopN)
	assert.Equal(t, "fuzzy", cfg.Pipeline.CategoryFallback)
}

func TestApplyDefaults_Nil(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		expected string
	}{
		{
			name:   "valid xata",
			mutate: func(c *Config) {},
		},
		{
			name: "valid opensearch",
			mutate: func(c *Config) {
				c.Database.Backend = BackendOpenSearch
				c.Database.OpenSearch.Addresses = []string{"http://localhost:9200"}
			},
		},
		{
			name: "valid postgres",
			mutate: func(c *Config) {
				c.Database.Backend = BackendPostgres
				c.Database.Postgres.DSN = "postgres://localhost/lca"
			},
		},
		{
			name:     "missing llm key",
			mutate:   func(c *Config) { c.LLM.APIKey = "" },
			expected: "llm.api_key",
		},
		{
			name:     "unknown backend",
			mutate:   func(c *Config) { c.Database.Backend = "sqlite" },
			expected: "database.backend",
		},
		{
			name:     "xata without url",
			mutate:   func(c *Config) { c.Database.Xata.DatabaseURL = "" },
			expected: "database.xata.database_url",
		},
		{
			name:     "opensearch without addresses",
			mutate:   func(c *Config) { c.Database.Backend = BackendOpenSearch },
			expected: "database.opensearch.addresses",
		},
		{
			name: "postgres similarity out of range",
			mutate: func(c *Config) {
				c.Database.Backend = BackendPostgres
				c.Database.Postgres.DSN = "postgres://localhost/lca"
				c.Database.Postgres.MinSimilarity = 1.5
			},
			expected: "min_similarity",
		},
		{
			name:     "too many cas attempts",
			mutate:   func(c *Config) { c.Registry.MaxAttempts = 6 },
			expected: "registry.max_attempts",
		},
		{
			name: "cache without addr",
			mutate: func(c *Config) {
				c.Cache.Enabled = true
				c.Cache.Addr = ""
			},
			expected: "cache.addr",
		},
		{
			name:     "unknown fallback",
			mutate:   func(c *Config) { c.Pipeline.CategoryFallback = "nearest" },
			expected: "pipeline.category_fallback",
		},
		{
			name:     "negative timeout",
			mutate:   func(c *Config) { c.Pipeline.Timeouts.CAS = -time.Second },
			expected: "pipeline.timeouts.cas",
		},
		{
			name:     "bad log level",
			mutate:   func(c *Config) { c.Log.Level = "trace" },
			expected: "log.level",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.expected == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, flowmap.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tc.expected)
		})
	}
}
