package config

import (
	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/cas"
	"github.com/rickchristie/flowmap/lcadb"
)

const (
	DefaultBackend          = BackendXata
	DefaultXataBranch       = "main"
	DefaultRegistryRetryMax = 2
	DefaultMaxAttempts      = 1
	DefaultSearchMaxResults = 5

	DefaultOpenSearchMaxRetries = 3
	DefaultTextSearchConfig     = "english"
	DefaultMinSimilarity        = 0.1
	DefaultPostgresMaxConns     = 4

	DefaultCacheAddr      = "localhost:6379"
	DefaultCacheKeyPrefix = "flowmap:cas:"

	DefaultCategoryFallback = "cas_only"
	DefaultMaxSynonymRounds = 4
	DefaultConcurrency      = 4

	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
	DefaultMetricsPath = "/metrics"
)

// ApplyDefaults fills every zero-value field in cfg with its default. Fields
// already set are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// LLM
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = flowmap.DefaultModel
	}
	if cfg.LLM.SearchMaxResults == 0 {
		cfg.LLM.SearchMaxResults = DefaultSearchMaxResults
	}

	// Registry
	if cfg.Registry.BaseURL == "" {
		cfg.Registry.BaseURL = cas.DefaultCommonChemistryURL
	}
	if cfg.Registry.RetryMax == 0 {
		cfg.Registry.RetryMax = DefaultRegistryRetryMax
	}
	if cfg.Registry.MaxAttempts == 0 {
		cfg.Registry.MaxAttempts = DefaultMaxAttempts
	}

	// Database
	if cfg.Database.Backend == "" {
		cfg.Database.Backend = DefaultBackend
	}
	if cfg.Database.Table == "" {
		cfg.Database.Table = lcadb.DefaultTable
	}
	if cfg.Database.Xata.Branch == "" {
		cfg.Database.Xata.Branch = DefaultXataBranch
	}
	if cfg.Database.OpenSearch.MaxRetries == 0 {
		cfg.Database.OpenSearch.MaxRetries = DefaultOpenSearchMaxRetries
	}
	if cfg.Database.Postgres.TextSearchConfig == "" {
		cfg.Database.Postgres.TextSearchConfig = DefaultTextSearchConfig
	}
	if cfg.Database.Postgres.MinSimilarity == 0 {
		cfg.Database.Postgres.MinSimilarity = DefaultMinSimilarity
	}
	if cfg.Database.Postgres.MaxConns == 0 {
		cfg.Database.Postgres.MaxConns = DefaultPostgresMaxConns
	}

	// Cache
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = DefaultCacheAddr
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = cas.DefaultCacheTTL
	}
	if cfg.Cache.EmptyTTL == 0 {
		cfg.Cache.EmptyTTL = cas.DefaultEmptyCacheTTL
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}

	// Pipeline
	p := &cfg.Pipeline
	if p.TopN == 0 {
		p.TopN = flowmap.DefaultTopN
	}
	if p.CompactTopN == 0 {
		p.CompactTopN = flowmap.CompactTopN
	}
	if p.CategoryFallback == "" {
		p.CategoryFallback = DefaultCategoryFallback
	}
	if p.MaxSynonymRounds == 0 {
		p.MaxSynonymRounds = DefaultMaxSynonymRounds
	}
	if p.Concurrency == 0 {
		p.Concurrency = DefaultConcurrency
	}
	if p.Timeouts.Extract == 0 {
		p.Timeouts.Extract = flowmap.DefaultExtractTimeout
	}
	if p.Timeouts.Synonyms == 0 {
		p.Timeouts.Synonyms = flowmap.DefaultSynonymsTimeout
	}
	if p.Timeouts.CAS == 0 {
		p.Timeouts.CAS = flowmap.DefaultCASTimeout
	}
	if p.Timeouts.Flows == 0 {
		p.Timeouts.Flows = flowmap.DefaultFlowsTimeout
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// Metrics
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
}
