package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/category"
	"github.com/rickchristie/flowmap/lcadb"
	"github.com/rickchristie/flowmap/logging"
)

// FallbackPolicy decides what the exact path does when the category label has
// no chain in the taxonomy.
type FallbackPolicy string

const (
	// FallbackCASOnly drops the category filter and keeps the CAS filter.
	FallbackCASOnly FallbackPolicy = "cas_only"
	// FallbackFuzzy abandons the structured query for full-text search.
	FallbackFuzzy FallbackPolicy = "fuzzy"
)

// ParseFallbackPolicy parses a policy name. The empty string is FallbackCASOnly.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", FallbackCASOnly:
		return FallbackCASOnly, nil
	case FallbackFuzzy:
		return FallbackFuzzy, nil
	}
	return "", fmt.Errorf("%w: unknown category fallback %q", flowmap.ErrInvalidConfig, s)
}

// Flows is the outcome of a flow resolution.
type Flows struct {
	Path    flowmap.MatchPath
	Records []lcadb.Record
}

// FlowResolver picks a database access path for a resolved substance and
// returns the best-scoring flows.
type FlowResolver struct {
	db           lcadb.Database
	hierarchy    *category.Hierarchy
	table        string
	fallback     FallbackPolicy
	fuzzyOnEmpty bool
	log          logging.Logger
}

// FlowOption configures a FlowResolver.
type FlowOption func(*FlowResolver)

// WithFallback sets the policy for category labels without a chain.
func WithFallback(p FallbackPolicy) FlowOption {
	return func(f *FlowResolver) { f.fallback = p }
}

// WithFuzzyOnEmpty makes the exact and CAS-only paths retry with full-text
// search when the structured query matches nothing.
func WithFuzzyOnEmpty(enabled bool) FlowOption {
	return func(f *FlowResolver) { f.fuzzyOnEmpty = enabled }
}

// WithTable sets the flow table.
func WithTable(table string) FlowOption {
	return func(f *FlowResolver) { f.table = table }
}

// WithFlowHierarchy sets the taxonomy used to resolve category chains.
func WithFlowHierarchy(h *category.Hierarchy) FlowOption {
	return func(f *FlowResolver) { f.hierarchy = h }
}

// WithFlowLogger sets the logger.
func WithFlowLogger(log logging.Logger) FlowOption {
	return func(f *FlowResolver) { f.log = logging.OrNop(log) }
}

// NewFlowResolver creates a FlowResolver over db.
func NewFlowResolver(db lcadb.Database, opts ...FlowOption) *FlowResolver {
	f := &FlowResolver{
		db:        db,
		hierarchy: category.Default(),
		table:     lcadb.DefaultTable,
		fallback:  FallbackCASOnly,
		log:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Resolve returns the top n flows for a substance.
//
// With a CAS number the flows are selected by a structured query on the CAS
// number and, when label resolves to a chain, the chain. Without one they are
// found by full-text search over the synonyms and the label. Database errors
// are returned wrapped in flowmap.ErrDatabase.
func (f *FlowResolver) Resolve(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	cas flowmap.CASNumber,
	label string,
	synonyms flowmap.SynonymSet,
	n int,
) (*Flows, error) {
	if !cas.Found() {
		return f.fuzzy(ctx, execCtx, label, synonyms, n)
	}

	filter := lcadb.Filter{lcadb.ColumnCAS: cas.Digits()}
	path := flowmap.PathExact
	if chain, ok := f.hierarchy.Resolve(label); ok {
		filter[lcadb.ColumnCategorization] = chain.FilterValue()
	} else {
		f.log.Debug("category has no chain",
			logging.String("category", label), logging.String("fallback", string(f.fallback)))
		if f.fallback == FallbackFuzzy {
			return f.fuzzy(ctx, execCtx, label, synonyms, n)
		}
		path = flowmap.PathCASOnly
	}

	req := lcadb.QueryRequest{Table: f.table, Filter: filter, Limit: n}
	records, err := f.trace(ctx, execCtx, "structured_query", cas.Digits(), func(ctx context.Context) ([]lcadb.Record, error) {
		return f.db.StructuredQuery(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	if len(records) == 0 && f.fuzzyOnEmpty {
		f.log.Debug("structured query matched nothing, falling back to search",
			logging.String("cas", cas.Digits()), logging.String("path", string(path)))
		return f.fuzzy(ctx, execCtx, label, synonyms, n)
	}
	return &Flows{Path: path, Records: lcadb.TopN(records, n)}, nil
}

func (f *FlowResolver) fuzzy(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	label string,
	synonyms flowmap.SynonymSet,
	n int,
) (*Flows, error) {
	query := SearchText(synonyms, label)
	if query == "" {
		return &Flows{Path: flowmap.PathSkipped, Records: []lcadb.Record{}}, nil
	}

	req := lcadb.SearchRequest{Query: query, Limit: n}
	records, err := f.trace(ctx, execCtx, "full_text_search", query, func(ctx context.Context) ([]lcadb.Record, error) {
		return f.db.FullTextSearch(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return &Flows{Path: flowmap.PathFuzzy, Records: lcadb.TopN(records, n)}, nil
}

// SearchText builds the full-text query for the fuzzy path: the synonyms,
// followed by the category label when there is one.
func SearchText(synonyms flowmap.SynonymSet, label string) string {
	parts := synonyms.Names()
	if label = strings.TrimSpace(label); label != "" {
		parts = append(parts, label)
	}
	return strings.Join(parts, ", ")
}

// Classify searches the category column of the flows carrying cas for label and
// returns the top n.
func (f *FlowResolver) Classify(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	cas flowmap.CASNumber,
	label string,
	n int,
) ([]lcadb.Record, error) {
	if !cas.Found() {
		return nil, fmt.Errorf("%w: a cas number is required", flowmap.ErrEmptyQuery)
	}

	req := lcadb.SearchRequest{
		Query:  label,
		Table:  f.table,
		Filter: lcadb.Filter{lcadb.ColumnCAS: cas.Digits()},
		Target: []string{lcadb.ColumnCategorization},
		Limit:  n,
	}
	records, err := f.trace(ctx, execCtx, "full_text_search", label, func(ctx context.Context) ([]lcadb.Record, error) {
		return f.db.FullTextSearch(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return lcadb.TopN(records, n), nil
}

// Ask puts a natural-language question to the flow table.
func (f *FlowResolver) Ask(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	question string,
	n int,
) (*lcadb.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, flowmap.ErrEmptyQuery
	}

	req := lcadb.AskRequest{
		Table:    f.table,
		Question: question,
		Columns:  []string{lcadb.ColumnBaseName, lcadb.ColumnCategorization},
		Limit:    n,
	}
	var answer *lcadb.Answer
	_, err := f.trace(ctx, execCtx, "semantic_ask", question, func(ctx context.Context) ([]lcadb.Record, error) {
		a, err := f.db.SemanticAsk(ctx, req)
		if err != nil {
			return nil, err
		}
		if a == nil {
			return nil, errors.New("backend returned no answer")
		}
		answer = a
		return a.Records, nil
	})
	if err != nil {
		return nil, err
	}
	return answer, nil
}

// trace runs one database call and records it in execCtx.
func (f *FlowResolver) trace(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	operation, query string,
	call func(context.Context) ([]lcadb.Record, error),
) ([]lcadb.Record, error) {
	start := time.Now()
	records, err := call(ctx)
	if err != nil && !errors.Is(err, flowmap.ErrDatabase) {
		err = fmt.Errorf("%w: %s: %w", flowmap.ErrDatabase, operation, err)
	}

	if execCtx != nil {
		execCtx.Trace(flowmap.LookupTrace{
			Service:   lcadb.ServiceName,
			Operation: operation,
			Query:     query,
			Results:   len(records),
			Duration:  time.Since(start),
			Error:     err,
		})
	}
	return records, err
}
