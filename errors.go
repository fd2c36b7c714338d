package flowmap

import (
	"errors"
	"fmt"
)

// Capability failures. These abort a run and are wrapped with context, so match
// them with errors.Is.
var (
	// ErrExtractionFailed means the extraction model call failed or its output did
	// not conform to the extraction schema.
	ErrExtractionFailed = errors.New("flowmap: query extraction failed")

	// ErrExpansionFailed means the synonym model call failed or its answer could
	// not be parsed.
	ErrExpansionFailed = errors.New("flowmap: synonym expansion failed")

	// ErrDatabase means the LCA database could not be queried.
	ErrDatabase = errors.New("flowmap: lca database error")
)

// Parsing, tool and configuration errors.
var (
	ErrInvalidJSON     = errors.New("invalid JSON")
	ErrMissingToolName = errors.New("missing tool name")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrInvalidToolArgs = errors.New("invalid tool arguments")
	ErrNilToolResult   = errors.New("tool returned a nil result")
	ErrNoChoices       = errors.New("model returned no choices")
	ErrEmptyQuery      = errors.New("empty query")
	ErrInvalidConfig   = errors.New("invalid configuration")
)

// StageError records which pipeline stage aborted a run.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
