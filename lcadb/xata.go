package lcadb

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/internal/restclient"
	"github.com/rickchristie/flowmap/logging"
)

// XataConfig configures the Xata backend.
type XataConfig struct {
	// DatabaseURL is the database endpoint without branch, e.g.
	// https://workspace-abc123.us-east-1.xata.sh/db/lca.
	DatabaseURL string
	Branch      string
	APIKey      string

	Timeout    time.Duration
	RetryMax   int
	HTTPClient *http.Client
}

// Xata is a Database backed by the Xata REST API.
type Xata struct {
	client *restclient.Client
	log    logging.Logger
}

// NewXata creates a Xata backend. The branch defaults to "main".
func NewXata(cfg XataConfig, log logging.Logger) (*Xata, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: xata database url is required", flowmap.ErrInvalidConfig)
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + cfg.APIKey
	}

	client, err := restclient.New(restclient.Config{
		BaseURL:    strings.TrimSuffix(cfg.DatabaseURL, "/") + ":" + cfg.Branch,
		HTTPClient: httpClient,
		Headers:    headers,
		RetryMax:   cfg.RetryMax,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: xata: %v", flowmap.ErrInvalidConfig, err)
	}
	return &Xata{client: client, log: logging.OrNop(log)}, nil
}

type xataRecord struct {
	ID                           string `json:"id"`
	BaseName                     string `json:"base_name"`
	ElementaryFlowCategorization string `json:"elementary_flow_categorization"`
	CASNumber                    string `json:"cas_number"`
	UUID                         string `json:"uuid"`
	Xata                         struct {
		Table string  `json:"table"`
		Score float64 `json:"score"`
	} `json:"xata"`
}

func (r xataRecord) record() Record {
	return Record{
		FlowRecord: flowmap.FlowRecord{
			BaseName:                     r.BaseName,
			ElementaryFlowCategorization: r.ElementaryFlowCategorization,
			CASNumber:                    r.CASNumber,
			UUID:                         r.UUID,
		},
		ID:    r.ID,
		Score: r.Xata.Score,
	}
}

type xataRecords struct {
	Records []xataRecord `json:"records"`
}

func (r xataRecords) records() []Record {
	out := make([]Record, len(r.Records))
	for i, rec := range r.Records {
		out[i] = rec.record()
	}
	return out
}

type xataPage struct {
	Size int `json:"size"`
}

type xataSearchTable struct {
	Table  string            `json:"table"`
	Filter map[string]string `json:"filter,omitempty"`
	Target []string          `json:"target,omitempty"`
}

type xataSearchBody struct {
	Query  string            `json:"query"`
	Tables []xataSearchTable `json:"tables,omitempty"`
	Page   xataPage          `json:"page"`
}

// FullTextSearch runs a branch-wide search. With req.Table set the search is
// limited to that table, with req.Filter and req.Target applied to it.
func (x *Xata) FullTextSearch(ctx context.Context, req SearchRequest) ([]Record, error) {
	body := xataSearchBody{Query: req.Query, Page: xataPage{Size: limitOr(req.Limit)}}
	if req.Table != "" {
		body.Tables = []xataSearchTable{{
			Table:  req.Table,
			Filter: req.Filter,
			Target: req.Target,
		}}
	}

	var resp xataRecords
	if err := x.client.Post(ctx, "/search", body, &resp); err != nil {
		return nil, wrap("xata search", describe(err))
	}
	x.log.Debug("xata search",
		logging.String("query", req.Query), logging.Int("records", len(resp.Records)))
	return resp.records(), nil
}

type xataQueryBody struct {
	Columns []string          `json:"columns"`
	Filter  map[string]string `json:"filter,omitempty"`
	Page    xataPage          `json:"page"`
}

// StructuredQuery selects rows of req.Table matching every filter column exactly.
func (x *Xata) StructuredQuery(ctx context.Context, req QueryRequest) ([]Record, error) {
	body := xataQueryBody{
		Columns: append([]string{ColumnID}, Columns...),
		Filter:  req.Filter,
		Page:    xataPage{Size: limitOr(req.Limit)},
	}

	var resp xataRecords
	path := "/tables/" + tableOr(req.Table) + "/query"
	if err := x.client.Post(ctx, path, body, &resp); err != nil {
		return nil, wrap("xata query", describe(err))
	}
	x.log.Debug("xata query",
		logging.Strings("filter", req.Filter.Keys()), logging.Int("records", len(resp.Records)))
	return resp.records(), nil
}

type xataVectorSearch struct {
	ContentColumns []string `json:"contentColumn"`
}

type xataAskBody struct {
	Question     string           `json:"question"`
	SearchType   string           `json:"searchType"`
	VectorSearch xataVectorSearch `json:"vectorSearch"`
}

type xataAskResponse struct {
	Answer    string   `json:"answer"`
	Records   []string `json:"records"`
	SessionID string   `json:"sessionId"`
}

// SemanticAsk asks Xata's vector-backed question answering over req.Columns.
// Xata answers with record IDs only; they are returned as records without
// fields.
func (x *Xata) SemanticAsk(ctx context.Context, req AskRequest) (*Answer, error) {
	body := xataAskBody{
		Question:     req.Question,
		SearchType:   "vector",
		VectorSearch: xataVectorSearch{ContentColumns: columnsOr(req.Columns)},
	}

	var resp xataAskResponse
	path := "/tables/" + tableOr(req.Table) + "/ask"
	if err := x.client.Post(ctx, path, body, &resp); err != nil {
		return nil, wrap("xata ask", describe(err))
	}

	ids := resp.Records
	if req.Limit > 0 && len(ids) > req.Limit {
		ids = ids[:req.Limit]
	}
	answer := &Answer{Text: resp.Answer, Records: make([]Record, len(ids))}
	for i, id := range ids {
		answer.Records[i] = Record{ID: id}
	}
	return answer, nil
}

func describe(err error) error {
	var apiErr *restclient.APIError
	if errors.As(err, &apiErr) && (apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
		return fmt.Errorf("unauthorized, check the api key: %w", err)
	}
	return err
}

var _ Database = (*Xata)(nil)
