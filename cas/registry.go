// Package cas resolves substance names to CAS registry numbers.
//
// A Registry answers name searches. CommonChemistry talks to the CAS Common
// Chemistry API, CachedRegistry adds a Redis read-through cache in front of any
// Registry, and Resolver turns a synonym set into one normalized number, demoting
// every registry failure to "none".
package cas

import (
	"context"
	"errors"
)

// ErrRegistry wraps failures talking to a registry.
var ErrRegistry = errors.New("cas: registry lookup failed")

// Result is one search hit.
type Result struct {
	// RN is the registry number as the registry formats it, e.g. "124-38-9".
	RN   string `json:"rn"`
	Name string `json:"name"`
}

// Registry searches a CAS registry by free-text name.
type Registry interface {
	// Search returns hits ranked by the registry. No hits is not an error.
	Search(ctx context.Context, query string) ([]Result, error)
}

// CacheReporter is implemented by a Registry that can tell whether a search
// was answered from its cache. Resolver records the answer in its traces.
type CacheReporter interface {
	SearchCached(ctx context.Context, query string) (results []Result, hit bool, err error)
}
