package cas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rickchristie/flowmap/internal/restclient"
)

// DefaultCommonChemistryURL is the CAS Common Chemistry API root.
const DefaultCommonChemistryURL = "https://commonchemistry.cas.org/api"

// CommonChemistryConfig configures a CommonChemistry client.
type CommonChemistryConfig struct {
	BaseURL string

	// APIKey is sent as X-API-KEY. Common Chemistry issues keys on request.
	APIKey string

	Timeout    time.Duration
	RetryMax   int
	HTTPClient *http.Client
}

// CommonChemistry is a Registry backed by the CAS Common Chemistry search API.
type CommonChemistry struct {
	client *restclient.Client
}

// NewCommonChemistry creates a client, applying defaults for empty fields.
func NewCommonChemistry(cfg CommonChemistryConfig) (*CommonChemistry, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultCommonChemistryURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-API-KEY"] = cfg.APIKey
	}

	client, err := restclient.New(restclient.Config{
		BaseURL:    cfg.BaseURL,
		HTTPClient: httpClient,
		Headers:    headers,
		RetryMax:   cfg.RetryMax,
	})
	if err != nil {
		return nil, fmt.Errorf("cas: %w", err)
	}
	return &CommonChemistry{client: client}, nil
}

type searchResponse struct {
	Count   int      `json:"count"`
	Results []Result `json:"results"`
}

// Search implements Registry.
func (c *CommonChemistry) Search(ctx context.Context, query string) ([]Result, error) {
	var resp searchResponse
	if err := c.client.Get(ctx, "/search", url.Values{"q": {query}}, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegistry, err)
	}
	return resp.Results, nil
}
