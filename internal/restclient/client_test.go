package restclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ValidatesBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: ""})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "https://example.com/api/"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api", c.baseURL)
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/search", r.URL.Path)
		assert.Equal(t, "carbon dioxide", r.URL.Query().Get("q"))
		assert.Equal(t, "k1", r.Header.Get("X-API-KEY"))
		fmt.Fprint(w, `{"count": 1}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL + "/api", Headers: map[string]string{"X-API-KEY": "k1"}})
	require.NoError(t, err)

	var out struct {
		Count int `json:"count"`
	}
	require.NoError(t, c.Get(context.Background(), "search", url.Values{"q": {"carbon dioxide"}}, &out))
	assert.Equal(t, 1, out.Count)
}

func TestClient_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"message": "invalid filter"}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, RetryMax: 3})
	require.NoError(t, err)

	err = c.Post(context.Background(), "/q", map[string]any{"a": 1}, nil)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid filter", apiErr.Message)
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, RetryMax: 2, RetryWaitMin: time.Millisecond, RetryWaitMax: time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, c.Get(context.Background(), "/", nil, nil))
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{not json`)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	var out map[string]any
	assert.ErrorContains(t, c.Get(context.Background(), "/", nil, &out), "unmarshal")
}
