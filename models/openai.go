package models

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey       string
	Model        string
	BaseURL      string
	Organization string

	// HTTPClient overrides the transport, e.g. for tests or proxies.
	HTTPClient *http.Client

	Logger logging.Logger
}

// NewOpenAIModel creates a Model backed by the OpenAI chat completions API or any
// compatible endpoint (set BaseURL).
//
// Additional openai.Option values are applied last and may override the config.
func NewOpenAIModel(cfg OpenAIConfig, opts ...openai.Option) (*LCGWrapper, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = flowmap.DefaultModel
	}

	baseOpts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		baseOpts = append(baseOpts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Organization != "" {
		baseOpts = append(baseOpts, openai.WithOrganization(cfg.Organization))
	}
	if cfg.HTTPClient != nil {
		baseOpts = append(baseOpts, openai.WithHTTPClient(cfg.HTTPClient))
	}

	llm, err := openai.New(append(baseOpts, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI client: %w", err)
	}

	return NewLCGWrapper(llm).WithModelName(cfg.Model).WithLogger(cfg.Logger), nil
}
