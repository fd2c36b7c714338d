package flowmap

import (
	"time"

	"github.com/tmc/langchaingo/llms"
)

// TraceEvent is a single entry in an ExecutionContext's append-only trace log.
type TraceEvent interface {
	Base() BaseTrace
	withBase(BaseTrace) TraceEvent
}

// BaseTrace holds the fields every trace event carries.
// Timestamp and Stage are filled in by ExecutionContext.Trace when left empty.
type BaseTrace struct {
	Timestamp time.Time
	Stage     Stage
}

// Base returns the common fields.
func (b BaseTrace) Base() BaseTrace { return b }

func (e ModelCallTrace) withBase(b BaseTrace) TraceEvent { e.BaseTrace = b; return e }
func (e ToolCallTrace) withBase(b BaseTrace) TraceEvent  { e.BaseTrace = b; return e }
func (e LookupTrace) withBase(b BaseTrace) TraceEvent    { e.BaseTrace = b; return e }
func (e StageTrace) withBase(b BaseTrace) TraceEvent     { e.BaseTrace = b; return e }
func (e CustomTrace) withBase(b BaseTrace) TraceEvent    { e.BaseTrace = b; return e }

// ModelCallTrace records one generation call.
type ModelCallTrace struct {
	BaseTrace

	Model        string
	Request      []llms.MessageContent
	Response     *ContentResponse
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	Error        error
}

// ToolCallTrace records one tool invocation requested by a model.
type ToolCallTrace struct {
	BaseTrace

	ToolName string
	CallID   string
	Input    any
	Output   any
	Duration time.Duration
	Error    error
}

// LookupTrace records one call to an external service that is not a model,
// such as the CAS registry or the LCA database.
type LookupTrace struct {
	BaseTrace

	// Service is the external system, e.g. "cas_registry" or "lca_db".
	Service string

	// Operation is the capability invoked, e.g. "search" or "structured_query".
	Operation string

	Query    string
	Results  int
	CacheHit bool
	Duration time.Duration
	Error    error
}

// StageTrace records the outcome of one pipeline stage.
type StageTrace struct {
	BaseTrace

	// Outcome is one of the Outcome* constants.
	Outcome  string
	Detail   string
	Duration time.Duration
	Error    error
}

// Stage outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeNone   = "none"
	OutcomeFailed = "failed"
)

// CustomTrace records free-form data.
type CustomTrace struct {
	BaseTrace

	Name string
	Data map[string]any
}
