package main

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/internal/tt"
	"github.com/stretchr/testify/assert"
)

func TestTraceWriter_Write(t *testing.T) {
	execCtx := flowmap.NewExecutionContext("resolve")
	execCtx.EnterStage(flowmap.StageCAS)
	execCtx.Trace(flowmap.LookupTrace{
		Service:   "cas_registry",
		Operation: "search",
		Query:     "water",
		Results:   1,
		Duration:  20 * time.Millisecond,
	})
	execCtx.Trace(flowmap.ToolCallTrace{
		ToolName: "search_internet",
		CallID:   "call_1",
		Input:    map[string]any{"query": "water synonyms"},
		Error:    errors.New("rate limited"),
	})
	execCtx.Trace(flowmap.StageTrace{Outcome: flowmap.OutcomeOK, Detail: "00007732185"})
	execCtx.End(nil)

	var buf bytes.Buffer
	w := &traceWriter{out: &buf}
	w.Write(execCtx)

	out := buf.String()
	assert.Contains(t, out, "RUN "+execCtx.ID())
	assert.Contains(t, out, ">>> [Lookup]")
	assert.Contains(t, out, "service: cas_registry")
	assert.Contains(t, out, ">>> [ToolCall]")
	assert.Contains(t, out, "error: rate limited")
	assert.Contains(t, out, ">>> [Stage]")
	assert.Contains(t, out, "stage: cas")
	assert.Contains(t, out, "tool_errors: 1")
}

func TestTraceWriter_ModelCall(t *testing.T) {
	execCtx := flowmap.NewExecutionContext("resolve")
	model := tt.NewMockModel().AddResponse(`{"synonyms": ["water"]}`, 12, 4)

	_, err := model.GenerateContent(t.Context(), execCtx, nil)
	assert.NoError(t, err)

	var buf bytes.Buffer
	(&traceWriter{out: &buf}).Write(execCtx)
	assert.Contains(t, buf.String(), ">>> [ModelCall]")
	assert.Contains(t, buf.String(), "input_tokens: 12")
}

func TestTraceWriter_NilIsNoop(t *testing.T) {
	var w *traceWriter
	assert.NotPanics(t, func() { w.Write(flowmap.NewExecutionContext("x")) })
}
