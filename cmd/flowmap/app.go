package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rickchristie/flowmap/cas"
	"github.com/rickchristie/flowmap/category"
	"github.com/rickchristie/flowmap/config"
	"github.com/rickchristie/flowmap/lcadb"
	"github.com/rickchristie/flowmap/logging"
	"github.com/rickchristie/flowmap/models"
	"github.com/rickchristie/flowmap/resolver"
	"github.com/rickchristie/flowmap/toolchain"
	"github.com/tmc/langchaingo/tools/duckduckgo"
)

// app holds the components a command needs, built from one Config.
type app struct {
	cfg      *config.Config
	log      logging.Logger
	registry *prometheus.Registry

	cas      *cas.Resolver
	flows    *resolver.FlowResolver
	pipeline *resolver.Pipeline

	closers []func()
}

// newApp wires every component. Nothing contacts a remote service here except
// the Postgres pool, which pings on creation.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, log: log, registry: prometheus.NewRegistry()}

	registry, err := a.newRegistry()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.cas = cas.NewResolver(registry,
		cas.WithMaxAttempts(cfg.Registry.MaxAttempts),
		cas.WithLogger(log.Named("cas")),
	)

	db, err := a.newDatabase(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	fallback, err := resolver.ParseFallbackPolicy(cfg.Pipeline.CategoryFallback)
	if err != nil {
		a.Close()
		return nil, err
	}
	hierarchy := category.Default()
	a.flows = resolver.NewFlowResolver(db,
		resolver.WithFallback(fallback),
		resolver.WithFuzzyOnEmpty(cfg.Pipeline.FuzzyOnEmpty),
		resolver.WithTable(cfg.Database.Table),
		resolver.WithFlowHierarchy(hierarchy),
		resolver.WithFlowLogger(log.Named("flows")),
	)

	model, err := models.NewOpenAIModel(models.OpenAIConfig{
		APIKey:       cfg.LLM.APIKey,
		Model:        cfg.LLM.Model,
		BaseURL:      cfg.LLM.BaseURL,
		Organization: cfg.LLM.Organization,
		Logger:       log.Named("model"),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	synonymOpts := []resolver.SynonymOption{
		resolver.WithMaxRounds(cfg.Pipeline.MaxSynonymRounds),
		resolver.WithSynonymLogger(log.Named("synonyms")),
	}
	if cfg.LLM.WebSearch {
		ddg, err := duckduckgo.New(cfg.LLM.SearchMaxResults, duckduckgo.DefaultUserAgent)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("web search: %w", err)
		}
		synonymOpts = append(synonymOpts,
			resolver.WithTool(toolchain.FromLangChain(resolver.SearchInternetTool, ddg)))
	}
	expander, err := resolver.NewSynonymExpander(model, synonymOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}

	metrics, err := resolver.NewMetrics(a.registry)
	if err != nil {
		a.Close()
		return nil, err
	}

	t := cfg.Pipeline.Timeouts
	a.pipeline = resolver.NewPipeline(
		resolver.NewExtractor(model,
			resolver.WithHierarchy(hierarchy),
			resolver.WithExtractorLogger(log.Named("extract"))),
		expander,
		a.cas,
		a.flows,
		resolver.WithTopN(cfg.Pipeline.TopN),
		resolver.WithCompactTopN(cfg.Pipeline.CompactTopN),
		resolver.WithConcurrency(cfg.Pipeline.Concurrency),
		resolver.WithTimeouts(resolver.Timeouts{
			Extract:  t.Extract,
			Synonyms: t.Synonyms,
			CAS:      t.CAS,
			Flows:    t.Flows,
		}),
		resolver.WithMetrics(metrics),
		resolver.WithLogger(log.Named("pipeline")),
	)

	if cfg.Metrics.Addr != "" {
		serveMetrics(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, a.registry)
		log.Info("serving metrics", logging.String("addr", cfg.Metrics.Addr))
	}
	return a, nil
}

func (a *app) newRegistry() (cas.Registry, error) {
	rc := a.cfg.Registry
	cc, err := cas.NewCommonChemistry(cas.CommonChemistryConfig{
		BaseURL:  rc.BaseURL,
		APIKey:   rc.APIKey,
		Timeout:  rc.Timeout,
		RetryMax: rc.RetryMax,
	})
	if err != nil {
		return nil, err
	}

	cache := a.cfg.Cache
	if !cache.Enabled {
		return cc, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cache.Addr,
		Password: cache.Password,
		DB:       cache.DB,
	})
	a.closers = append(a.closers, func() { _ = rdb.Close() })
	return cas.NewCachedRegistry(cc, rdb,
		cas.WithPrefix(cache.KeyPrefix),
		cas.WithTTL(cache.TTL),
		cas.WithEmptyTTL(cache.EmptyTTL),
		cas.WithCacheLogger(a.log.Named("cas_cache")),
	), nil
}

func (a *app) newDatabase(ctx context.Context) (lcadb.Database, error) {
	dc := a.cfg.Database
	log := a.log.Named("lcadb")

	switch dc.Backend {
	case config.BackendXata:
		return lcadb.NewXata(lcadb.XataConfig{
			DatabaseURL: dc.Xata.DatabaseURL,
			Branch:      dc.Xata.Branch,
			APIKey:      dc.Xata.APIKey,
			Timeout:     dc.Xata.Timeout,
			RetryMax:    dc.Xata.RetryMax,
		}, log)
	case config.BackendOpenSearch:
		return lcadb.NewOpenSearch(lcadb.OpenSearchConfig{
			Addresses:     dc.OpenSearch.Addresses,
			Username:      dc.OpenSearch.Username,
			Password:      dc.OpenSearch.Password,
			Index:         dc.Table,
			TLSSkipVerify: dc.OpenSearch.TLSSkipVerify,
			MaxRetries:    dc.OpenSearch.MaxRetries,
		}, log)
	case config.BackendPostgres:
		pg, err := lcadb.NewPostgres(ctx, lcadb.PostgresConfig{
			DSN:              dc.Postgres.DSN,
			Table:            dc.Table,
			TextSearchConfig: dc.Postgres.TextSearchConfig,
			MinSimilarity:    dc.Postgres.MinSimilarity,
			MaxConns:         dc.Postgres.MaxConns,
		}, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, nil
	}
	return nil, fmt.Errorf("unknown database backend %q", dc.Backend)
}

// Close releases connections in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// setup loads the config and builds the app for a command.
func setup(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(ctx, cfg)
}
