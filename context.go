package flowmap

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ExecutionContext is the accumulated context of one resolution run. Models, tools
// and lookups trace into it, and it keeps running aggregates of what they did.
//
// One ExecutionContext belongs to one run. It is safe for concurrent use, but runs
// must not share it.
type ExecutionContext struct {
	mu sync.RWMutex

	id   string
	name string

	// Stage currently executing, stamped onto events that don't set one.
	stage Stage

	// All trace events (append-only log)
	events []TraceEvent

	stats ExecutionStats

	startTime time.Time
	endTime   time.Time
	err       error
}

// ExecutionStats contains aggregates derived from trace events.
type ExecutionStats struct {
	ModelCalls          int
	TotalInputTokens    int
	TotalOutputTokens   int
	InputTokensByModel  map[string]int
	OutputTokensByModel map[string]int
	ToolCallCount       int
	ToolCallsByName     map[string]int
	ToolErrorCount      int
	LookupCount         int
	LookupsByService    map[string]int
	CacheHits           int
	StageDurations      map[Stage]time.Duration
}

// NewExecutionContext creates an ExecutionContext with a fresh run ID.
func NewExecutionContext(name string) *ExecutionContext {
	return &ExecutionContext{
		id:        uuid.NewString(),
		name:      name,
		events:    make([]TraceEvent, 0),
		startTime: time.Now(),
		stats:     newExecutionStats(),
	}
}

func newExecutionStats() ExecutionStats {
	return ExecutionStats{
		InputTokensByModel:  make(map[string]int),
		OutputTokensByModel: make(map[string]int),
		ToolCallsByName:     make(map[string]int),
		LookupsByService:    make(map[string]int),
		StageDurations:      make(map[Stage]time.Duration),
	}
}

// ID returns the run ID.
func (ctx *ExecutionContext) ID() string {
	return ctx.id
}

// Name returns the name given at construction.
func (ctx *ExecutionContext) Name() string {
	return ctx.name
}

// -----------------------------------------------------------------------------
// Stages
// -----------------------------------------------------------------------------

// EnterStage marks stage as the one currently executing.
func (ctx *ExecutionContext) EnterStage(stage Stage) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.stage = stage
}

// CurrentStage returns the stage currently executing.
func (ctx *ExecutionContext) CurrentStage() Stage {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.stage
}

// -----------------------------------------------------------------------------
// Tracing
// -----------------------------------------------------------------------------

// Trace records a trace event and updates the aggregates based on its type.
func (ctx *ExecutionContext) Trace(event TraceEvent) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	event = ctx.populateBaseTrace(event)

	switch e := event.(type) {
	case ModelCallTrace:
		ctx.stats.ModelCalls++
		ctx.stats.TotalInputTokens += e.InputTokens
		ctx.stats.TotalOutputTokens += e.OutputTokens
		if e.Model != "" {
			ctx.stats.InputTokensByModel[e.Model] += e.InputTokens
			ctx.stats.OutputTokensByModel[e.Model] += e.OutputTokens
		}
	case ToolCallTrace:
		ctx.stats.ToolCallCount++
		if e.ToolName != "" {
			ctx.stats.ToolCallsByName[e.ToolName]++
		}
		if e.Error != nil {
			ctx.stats.ToolErrorCount++
		}
	case LookupTrace:
		ctx.stats.LookupCount++
		if e.Service != "" {
			ctx.stats.LookupsByService[e.Service]++
		}
		if e.CacheHit {
			ctx.stats.CacheHits++
		}
	case StageTrace:
		ctx.stats.StageDurations[e.Stage] += e.Duration
	}

	ctx.events = append(ctx.events, event)
}

// TraceCustom is a convenience method for recording custom trace events.
func (ctx *ExecutionContext) TraceCustom(name string, data map[string]any) {
	ctx.Trace(CustomTrace{Name: name, Data: data})
}

// populateBaseTrace stamps the time and current stage onto event where unset.
// Must be called with lock held.
func (ctx *ExecutionContext) populateBaseTrace(event TraceEvent) TraceEvent {
	base := event.Base()
	if !base.Timestamp.IsZero() && base.Stage != "" {
		return event
	}
	if base.Timestamp.IsZero() {
		base.Timestamp = time.Now()
	}
	if base.Stage == "" {
		base.Stage = ctx.stage
	}
	return event.withBase(base)
}

// Events returns a copy of all recorded trace events.
func (ctx *ExecutionContext) Events() []TraceEvent {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	out := make([]TraceEvent, len(ctx.events))
	copy(out, ctx.events)
	return out
}

// Stats returns a snapshot of the aggregates.
func (ctx *ExecutionContext) Stats() ExecutionStats {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()

	out := ctx.stats
	out.InputTokensByModel = copyMap(ctx.stats.InputTokensByModel)
	out.OutputTokensByModel = copyMap(ctx.stats.OutputTokensByModel)
	out.ToolCallsByName = copyMap(ctx.stats.ToolCallsByName)
	out.LookupsByService = copyMap(ctx.stats.LookupsByService)
	out.StageDurations = copyMap(ctx.stats.StageDurations)
	return out
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// End marks the run as finished with the given error (nil on success).
// Only the first call has an effect.
func (ctx *ExecutionContext) End(err error) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if !ctx.endTime.IsZero() {
		return
	}
	ctx.endTime = time.Now()
	ctx.err = err
}

// Err returns the error the run ended with.
func (ctx *ExecutionContext) Err() error {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	return ctx.err
}

// StartTime returns when the run started.
func (ctx *ExecutionContext) StartTime() time.Time {
	return ctx.startTime
}

// Duration returns the run's duration so far, or its total duration once ended.
func (ctx *ExecutionContext) Duration() time.Duration {
	ctx.mu.RLock()
	defer ctx.mu.RUnlock()
	if ctx.endTime.IsZero() {
		return time.Since(ctx.startTime)
	}
	return ctx.endTime.Sub(ctx.startTime)
}
