package lcadb

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
)

// OpenSearchConfig configures the OpenSearch backend.
type OpenSearchConfig struct {
	Addresses []string
	Username  string
	Password  string

	// Index holds the flow documents. Defaults to DefaultTable.
	Index string

	// KeywordSuffix is appended to a column name for exact-match filters.
	// Defaults to ".keyword", the subfield dynamic mapping creates for text.
	KeywordSuffix string

	TLSSkipVerify bool
	MaxRetries    int
	RetryBackoff  time.Duration
}

// OpenSearch is a Database backed by an OpenSearch index of flow documents.
type OpenSearch struct {
	client  *opensearch.Client
	index   string
	keyword string
	log     logging.Logger
}

// NewOpenSearch creates an OpenSearch backend. It does not contact the cluster.
func NewOpenSearch(cfg OpenSearchConfig, log logging.Logger) (*OpenSearch, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("%w: opensearch addresses are required", flowmap.ErrInvalidConfig)
	}
	if cfg.Index == "" {
		cfg.Index = DefaultTable
	}
	if cfg.KeywordSuffix == "" {
		cfg.KeywordSuffix = ".keyword"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		Transport:     transport,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  func(int) time.Duration { return cfg.RetryBackoff },
		RetryOnStatus: []int{502, 503, 504, 429},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: opensearch: %v", flowmap.ErrInvalidConfig, err)
	}

	return &OpenSearch{
		client:  client,
		index:   cfg.Index,
		keyword: cfg.KeywordSuffix,
		log:     logging.OrNop(log),
	}, nil
}

// FullTextSearch runs a multi_match query over req.Target. With req.Table set,
// req.Filter is added as non-scoring term filters.
func (o *OpenSearch) FullTextSearch(ctx context.Context, req SearchRequest) ([]Record, error) {
	boolQuery := map[string]any{
		"must": map[string]any{
			"multi_match": map[string]any{
				"query":     req.Query,
				"fields":    searchFields(req.Target),
				"fuzziness": "AUTO",
			},
		},
	}
	if req.Table != "" {
		if filters := o.termFilters(req.Filter); len(filters) > 0 {
			boolQuery["filter"] = filters
		}
	}

	dsl := map[string]any{
		"query": map[string]any{"bool": boolQuery},
		"size":  limitOr(req.Limit),
	}
	return o.search(ctx, "opensearch search", o.indexFor(req.Table), dsl)
}

// StructuredQuery matches every filter column exactly. Hits are returned in
// index order.
func (o *OpenSearch) StructuredQuery(ctx context.Context, req QueryRequest) ([]Record, error) {
	var query map[string]any
	if filters := o.termFilters(req.Filter); len(filters) > 0 {
		query = map[string]any{"bool": map[string]any{"filter": filters}}
	} else {
		query = map[string]any{"match_all": map[string]any{}}
	}

	dsl := map[string]any{
		"query": query,
		"size":  limitOr(req.Limit),
		"sort":  []any{"_doc"},
	}
	records, err := o.search(ctx, "opensearch query", o.indexFor(req.Table), dsl)
	if err != nil {
		return nil, err
	}
	for i := range records {
		records[i].Score = 0
	}
	return records, nil
}

// SemanticAsk retrieves documents similar to the question with more_like_this.
// No answer text is generated.
func (o *OpenSearch) SemanticAsk(ctx context.Context, req AskRequest) (*Answer, error) {
	dsl := map[string]any{
		"query": map[string]any{
			"more_like_this": map[string]any{
				"fields":          columnsOr(req.Columns),
				"like":            req.Question,
				"min_term_freq":   1,
				"min_doc_freq":    1,
				"max_query_terms": 25,
			},
		},
		"size": limitOr(req.Limit),
	}
	records, err := o.search(ctx, "opensearch ask", o.indexFor(req.Table), dsl)
	if err != nil {
		return nil, err
	}
	return &Answer{Records: records}, nil
}

func (o *OpenSearch) search(ctx context.Context, op, index string, dsl map[string]any) ([]Record, error) {
	body, err := json.Marshal(dsl)
	if err != nil {
		return nil, wrap(op, fmt.Errorf("failed to marshal query: %w", err))
	}

	start := time.Now()
	resp, err := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, o.client)
	if err != nil {
		return nil, wrap(op, err)
	}
	defer resp.Body.Close()

	if resp.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, wrap(op, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg)))
	}

	records, err := parseHits(resp.Body)
	if err != nil {
		return nil, wrap(op, err)
	}
	o.log.Debug(op,
		logging.String("index", index),
		logging.Int("hits", len(records)),
		logging.Duration("took", time.Since(start)))
	return records, nil
}

func (o *OpenSearch) indexFor(table string) string {
	if table == "" || table == DefaultTable {
		return o.index
	}
	return table
}

func (o *OpenSearch) termFilters(filter Filter) []any {
	out := make([]any, 0, len(filter))
	for _, col := range filter.Keys() {
		out = append(out, map[string]any{
			"term": map[string]any{col + o.keyword: filter[col]},
		})
	}
	return out
}

func searchFields(target []string) []string {
	if len(target) == 0 {
		return []string{ColumnBaseName + "^2", ColumnCategorization}
	}
	return target
}

type flowSource struct {
	BaseName                     string `json:"base_name"`
	ElementaryFlowCategorization string `json:"elementary_flow_categorization"`
	CASNumber                    string `json:"cas_number"`
	UUID                         string `json:"uuid"`
}

func parseHits(body io.Reader) ([]Record, error) {
	var resp struct {
		Hits struct {
			Hits []struct {
				ID     string     `json:"_id"`
				Score  float64    `json:"_score"`
				Source flowSource `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	out := make([]Record, len(resp.Hits.Hits))
	for i, h := range resp.Hits.Hits {
		out[i] = Record{
			FlowRecord: flowmap.FlowRecord{
				BaseName:                     h.Source.BaseName,
				ElementaryFlowCategorization: h.Source.ElementaryFlowCategorization,
				CASNumber:                    h.Source.CASNumber,
				UUID:                         h.Source.UUID,
			},
			ID:    h.ID,
			Score: h.Score,
		}
	}
	return out, nil
}

var _ Database = (*OpenSearch)(nil)
