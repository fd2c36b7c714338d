// Package flowmap resolves free-text chemical substance queries to elementary flow
// records in an LCA (life-cycle assessment) reference database.
//
// A resolution run moves strictly forward through four stages:
//
//	raw text -> extract -> synonyms -> cas -> flows
//
// Each stage hands its output to the next one. A stage that legitimately finds
// nothing produces an explicit "none" value (see [ParsedQuery.Found],
// [SynonymSet.Found] and [CASNumber.Found]) instead of an error, so later stages
// can still do their best. Only capability failures (model errors, schema
// non-conformance, database errors) abort a run, and those are reported through
// the sentinel errors in this package.
//
// This package holds the shared value types, the [Model] and [Tool] interfaces and
// the per-run [ExecutionContext]. The stages themselves live in the resolver
// package:
//
//	model, _ := models.NewOpenAIModel(models.OpenAIConfig{APIKey: apiKey})
//	expander, _ := resolver.NewSynonymExpander(model, resolver.WithTool(searchTool))
//	registry, _ := cas.NewCommonChemistry(cas.CommonChemistryConfig{APIKey: casKey})
//
//	pipeline := resolver.NewPipeline(
//	    resolver.NewExtractor(model),
//	    expander,
//	    cas.NewResolver(registry),
//	    resolver.NewFlowResolver(db),
//	)
//
//	result, err := pipeline.Run(ctx, "carbon dioxide emitted to air")
//	if errors.Is(err, flowmap.ErrDatabase) {
//	    // the LCA database could not be queried
//	}
//
// # Accumulated context
//
// Every run carries an [ExecutionContext]. Models, tools and lookups trace into it,
// so after a run the caller can inspect which stage did what, how many tokens were
// spent and which database path was taken. Independent runs never share an
// ExecutionContext and are safe to execute concurrently.
package flowmap
