// Package lcadb is the read-only LCA reference database capability the flow
// resolver queries. It exposes three operations, full-text search, structured
// query and semantic ask, with interchangeable backends: Xata (the hosted
// database the flow table originally lives in), OpenSearch and PostgreSQL.
//
// Every backend error wraps flowmap.ErrDatabase.
package lcadb

import (
	"context"
	"fmt"
	"sort"

	"github.com/rickchristie/flowmap"
)

// ServiceName identifies database lookups in traces.
const ServiceName = "lca_db"

// DefaultTable is the table holding elementary flows.
const DefaultTable = "flow"

// DefaultLimit is used when a request does not set one.
const DefaultLimit = 20

// Flow table columns.
const (
	ColumnID             = "id"
	ColumnBaseName       = "base_name"
	ColumnCategorization = "elementary_flow_categorization"
	ColumnCAS            = "cas_number"
	ColumnUUID           = "uuid"
)

// Columns lists the projected flow columns in output order.
var Columns = []string{ColumnBaseName, ColumnCategorization, ColumnCAS, ColumnUUID}

// Record is one flow row with the backend's relevance score. Structured queries
// have no relevance and leave Score at zero.
type Record struct {
	flowmap.FlowRecord

	ID    string  `json:"id" yaml:"id"`
	Score float64 `json:"score" yaml:"score"`
}

// Filter is a set of column equality conditions joined with AND.
type Filter map[string]string

// Keys returns the filtered columns in sorted order.
func (f Filter) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SearchRequest is a free-text relevance search.
type SearchRequest struct {
	Query string

	// Table restricts the search to one table. Filter and Target only apply
	// when it is set.
	Table  string
	Filter Filter

	// Target is the set of columns matched against Query. Empty means all
	// text columns.
	Target []string

	Limit int
}

// QueryRequest selects rows by exact column values.
type QueryRequest struct {
	Table  string
	Filter Filter
	Limit  int
}

// AskRequest is a natural-language question answered over a table.
type AskRequest struct {
	Table    string
	Question string

	// Columns holds the content the question is matched against.
	Columns []string

	Limit int
}

// Answer is the result of a semantic ask. Text is empty for backends that only
// retrieve records.
type Answer struct {
	Text    string   `json:"text,omitempty" yaml:"text,omitempty"`
	Records []Record `json:"records" yaml:"records"`
}

// Database is the LCA database capability.
type Database interface {
	FullTextSearch(ctx context.Context, req SearchRequest) ([]Record, error)
	StructuredQuery(ctx context.Context, req QueryRequest) ([]Record, error)
	SemanticAsk(ctx context.Context, req AskRequest) (*Answer, error)
}

// Projection returns the flow records of records, in order.
func Projection(records []Record) []flowmap.FlowRecord {
	out := make([]flowmap.FlowRecord, len(records))
	for i, r := range records {
		out[i] = r.FlowRecord
	}
	return out
}

// TopN returns at most n records ordered by descending score. Records with equal
// scores keep their database order.
func TopN(records []Record, n int) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func wrap(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", flowmap.ErrDatabase, op, err)
}

func tableOr(table string) string {
	if table == "" {
		return DefaultTable
	}
	return table
}

func limitOr(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

func columnsOr(cols []string) []string {
	if len(cols) == 0 {
		return []string{ColumnBaseName, ColumnCategorization}
	}
	return cols
}
