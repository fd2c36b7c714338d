package lcadb

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rickchristie/flowmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hitsResponse = `{
	"took": 3,
	"hits": {
		"total": {"value": 2},
		"max_score": 4.2,
		"hits": [
			{"_id": "1", "_score": 4.2, "_source": {"base_name": "carbon dioxide", "elementary_flow_categorization": "air", "cas_number": "00000124389", "uuid": "u1"}},
			{"_id": "2", "_score": 1.1, "_source": {"base_name": "carbon dioxide, fossil", "cas_number": "00000124389", "uuid": "u2"}}
		]
	}
}`

func newOpenSearchServer(t *testing.T, status int, response string) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "_search") {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{}`))
			return
		}
		captured.Method = r.Method
		captured.Path = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &captured.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestOpenSearch(t *testing.T, url string) *OpenSearch {
	t.Helper()
	o, err := NewOpenSearch(OpenSearchConfig{Addresses: []string{url}, Index: "lca-flows"}, nil)
	require.NoError(t, err)
	return o
}

func TestOpenSearch_FullTextSearch(t *testing.T) {
	srv, captured := newOpenSearchServer(t, http.StatusOK, hitsResponse)
	o := newTestOpenSearch(t, srv.URL)

	got, err := o.FullTextSearch(context.Background(), SearchRequest{
		Query:  "Emissions to air",
		Table:  "flow",
		Filter: Filter{ColumnCAS: "00000124389"},
		Target: []string{ColumnCategorization},
		Limit:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, "/lca-flows/_search", captured.Path)
	assert.Equal(t, float64(3), captured.Body["size"])
	boolQuery := captured.Body["query"].(map[string]any)["bool"].(map[string]any)
	assert.Equal(t, map[string]any{
		"multi_match": map[string]any{
			"query":     "Emissions to air",
			"fields":    []any{"elementary_flow_categorization"},
			"fuzziness": "AUTO",
		},
	}, boolQuery["must"])
	assert.Equal(t, []any{
		map[string]any{"term": map[string]any{"cas_number.keyword": "00000124389"}},
	}, boolQuery["filter"])

	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, 4.2, got[0].Score)
	assert.Equal(t, "carbon dioxide", got[0].BaseName)
}

func TestOpenSearch_FullTextSearchWithoutTableIgnoresFilter(t *testing.T) {
	srv, captured := newOpenSearchServer(t, http.StatusOK, hitsResponse)
	o := newTestOpenSearch(t, srv.URL)

	_, err := o.FullTextSearch(context.Background(), SearchRequest{
		Query:  "carbon dioxide",
		Filter: Filter{ColumnCAS: "00000124389"},
	})
	require.NoError(t, err)

	assert.Equal(t, "/lca-flows/_search", captured.Path)
	boolQuery := captured.Body["query"].(map[string]any)["bool"].(map[string]any)
	assert.NotContains(t, boolQuery, "filter")
	assert.Equal(t, []any{"base_name^2", "elementary_flow_categorization"},
		boolQuery["must"].(map[string]any)["multi_match"].(map[string]any)["fields"])
}

func TestOpenSearch_StructuredQuery(t *testing.T) {
	srv, captured := newOpenSearchServer(t, http.StatusOK, hitsResponse)
	o := newTestOpenSearch(t, srv.URL)

	got, err := o.StructuredQuery(context.Background(), QueryRequest{
		Filter: Filter{ColumnCAS: "00000124389", ColumnCategorization: "chain"},
	})
	require.NoError(t, err)

	query := captured.Body["query"].(map[string]any)
	assert.Equal(t, map[string]any{"filter": []any{
		map[string]any{"term": map[string]any{"cas_number.keyword": "00000124389"}},
		map[string]any{"term": map[string]any{"elementary_flow_categorization.keyword": "chain"}},
	}}, query["bool"])
	assert.Equal(t, []any{"_doc"}, captured.Body["sort"])

	require.Len(t, got, 2)
	for _, r := range got {
		assert.Zero(t, r.Score)
	}
}

func TestOpenSearch_SemanticAsk(t *testing.T) {
	srv, captured := newOpenSearchServer(t, http.StatusOK, hitsResponse)
	o := newTestOpenSearch(t, srv.URL)

	got, err := o.SemanticAsk(context.Background(), AskRequest{Question: "co2 from coal"})
	require.NoError(t, err)

	mlt := captured.Body["query"].(map[string]any)["more_like_this"].(map[string]any)
	assert.Equal(t, "co2 from coal", mlt["like"])
	assert.Empty(t, got.Text)
	assert.Len(t, got.Records, 2)
}

func TestOpenSearch_ErrorStatus(t *testing.T) {
	srv, _ := newOpenSearchServer(t, http.StatusBadRequest, `{"error": {"type": "parsing_exception"}}`)
	o := newTestOpenSearch(t, srv.URL)

	_, err := o.FullTextSearch(context.Background(), SearchRequest{Query: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, flowmap.ErrDatabase))
	assert.Contains(t, err.Error(), "parsing_exception")
}

func TestNewOpenSearch_RequiresAddresses(t *testing.T) {
	_, err := NewOpenSearch(OpenSearchConfig{}, nil)
	assert.True(t, errors.Is(err, flowmap.ErrInvalidConfig))
}
