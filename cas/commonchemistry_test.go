package cas

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommonChemistry_Search(t *testing.T) {
	type expected struct {
		results []Result
		err     bool
	}

	tests := []struct {
		name     string
		status   int
		body     string
		expected expected
	}{
		{
			name:   "hits",
			status: http.StatusOK,
			body:   `{"count": 2, "results": [{"rn": "124-38-9", "name": "Carbon dioxide"}, {"rn": "7440-44-0", "name": "Carbon"}]}`,
			expected: expected{results: []Result{
				{RN: "124-38-9", Name: "Carbon dioxide"},
				{RN: "7440-44-0", Name: "Carbon"},
			}},
		},
		{
			name:     "no hits",
			status:   http.StatusOK,
			body:     `{"count": 0, "results": []}`,
			expected: expected{results: []Result{}},
		},
		{
			name:     "server error",
			status:   http.StatusInternalServerError,
			body:     `oops`,
			expected: expected{err: true},
		},
		{
			name:     "unauthorized",
			status:   http.StatusUnauthorized,
			body:     `{"message": "missing api key"}`,
			expected: expected{err: true},
		},
		{
			name:     "malformed body",
			status:   http.StatusOK,
			body:     `{"results": [`,
			expected: expected{err: true},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/search", r.URL.Path)
				assert.Equal(t, "carbon dioxide", r.URL.Query().Get("q"))
				assert.Equal(t, "secret", r.Header.Get("X-API-KEY"))
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			}))
			defer srv.Close()

			client, err := NewCommonChemistry(CommonChemistryConfig{BaseURL: srv.URL + "/api", APIKey: "secret"})
			require.NoError(t, err)

			results, err := client.Search(context.Background(), "carbon dioxide")
			if tc.expected.err {
				assert.True(t, errors.Is(err, ErrRegistry))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.results, results)
		})
	}
}

func TestNewCommonChemistry_Defaults(t *testing.T) {
	client, err := NewCommonChemistry(CommonChemistryConfig{})
	require.NoError(t, err)
	assert.NotNil(t, client)

	_, err = NewCommonChemistry(CommonChemistryConfig{BaseURL: "not a url"})
	assert.Error(t, err)
}
