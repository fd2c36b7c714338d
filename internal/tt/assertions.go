package tt

import (
	"testing"

	"github.com/rickchristie/flowmap"
	"github.com/stretchr/testify/assert"
)

// StageOutcomes returns the outcome recorded for each stage, in trace order.
func StageOutcomes(execCtx *flowmap.ExecutionContext) map[flowmap.Stage]string {
	out := make(map[flowmap.Stage]string)
	for _, event := range execCtx.Events() {
		if st, ok := event.(flowmap.StageTrace); ok {
			out[st.Stage] = st.Outcome
		}
	}
	return out
}

// ToolCalls returns the tool call traces of execCtx.
func ToolCalls(execCtx *flowmap.ExecutionContext) []flowmap.ToolCallTrace {
	var out []flowmap.ToolCallTrace
	for _, event := range execCtx.Events() {
		if tc, ok := event.(flowmap.ToolCallTrace); ok {
			out = append(out, tc)
		}
	}
	return out
}

// Lookups returns the lookup traces of execCtx for service.
func Lookups(execCtx *flowmap.ExecutionContext, service string) []flowmap.LookupTrace {
	var out []flowmap.LookupTrace
	for _, event := range execCtx.Events() {
		if lt, ok := event.(flowmap.LookupTrace); ok && lt.Service == service {
			out = append(out, lt)
		}
	}
	return out
}

// AssertStageOutcomes asserts the outcome of every stage in expected.
func AssertStageOutcomes(t *testing.T, expected map[flowmap.Stage]string, execCtx *flowmap.ExecutionContext) {
	t.Helper()
	assert.Equal(t, expected, StageOutcomes(execCtx), "stage outcomes")
}

// AssertStats asserts the call counters of execCtx.
func AssertStats(t *testing.T, modelCalls, toolCalls, lookups int, execCtx *flowmap.ExecutionContext) {
	t.Helper()
	stats := execCtx.Stats()
	assert.Equal(t, modelCalls, stats.ModelCalls, "model calls")
	assert.Equal(t, toolCalls, stats.ToolCallCount, "tool calls")
	assert.Equal(t, lookups, stats.LookupCount, "lookups")
}
