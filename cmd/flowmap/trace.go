package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/tmc/langchaingo/llms"
	"gopkg.in/yaml.v3"
)

// traceWriter dumps execution traces as YAML documents, one block per event.
// Nothing is truncated.
type traceWriter struct {
	mu  sync.Mutex
	out io.Writer
}

// openTrace opens the --trace destination. It returns nil when tracing is off.
func openTrace(path string) (*traceWriter, func(), error) {
	switch path {
	case "":
		return nil, func() {}, nil
	case "-":
		return &traceWriter{out: os.Stderr}, func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	return &traceWriter{out: f}, func() { _ = f.Close() }, nil
}

func (w *traceWriter) logEvent(name string, ts time.Time) {
	fmt.Fprintf(w.out, "\n>>> [%s]: %s\n", name, ts.Format("2006-01-02 15:04:05.000"))
}

func (w *traceWriter) logYAML(v any) {
	data, err := yaml.Marshal(v)
	if err != nil {
		fmt.Fprintf(w.out, "(failed to marshal: %v)\n", err)
		return
	}
	fmt.Fprint(w.out, string(data))
}

// Write dumps every event of execCtx followed by its stats. Safe to call from
// concurrent batch runs; each run is written as one block.
func (w *traceWriter) Write(execCtx *flowmap.ExecutionContext) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	fmt.Fprintln(w.out, "================================================================================")
	fmt.Fprintf(w.out, "RUN %s (%s)\n", execCtx.ID(), execCtx.Name())
	fmt.Fprintln(w.out, "================================================================================")

	for _, event := range execCtx.Events() {
		name, ts, data := describeEvent(event)
		w.logEvent(name, ts)
		w.logYAML(data)
	}

	stats := execCtx.Stats()
	stageDurations := make(map[string]string, len(stats.StageDurations))
	for stage, d := range stats.StageDurations {
		stageDurations[string(stage)] = d.String()
	}
	w.logEvent("Stats", time.Now())
	summary := map[string]any{
		"duration":            execCtx.Duration().String(),
		"model_calls":         stats.ModelCalls,
		"total_input_tokens":  stats.TotalInputTokens,
		"total_output_tokens": stats.TotalOutputTokens,
		"tool_calls":          stats.ToolCallCount,
		"tool_errors":         stats.ToolErrorCount,
		"lookups":             stats.LookupsByService,
		"cache_hits":          stats.CacheHits,
		"stage_durations":     stageDurations,
	}
	if err := execCtx.Err(); err != nil {
		summary["error"] = err.Error()
	}
	w.logYAML(summary)
}

func describeEvent(event flowmap.TraceEvent) (string, time.Time, map[string]any) {
	switch e := event.(type) {
	case flowmap.StageTrace:
		return "Stage", e.Timestamp, withError(map[string]any{
			"stage":    string(e.Stage),
			"outcome":  e.Outcome,
			"detail":   e.Detail,
			"duration": e.Duration.String(),
		}, e.Error)
	case flowmap.ModelCallTrace:
		data := map[string]any{
			"stage":         string(e.Stage),
			"model":         e.Model,
			"request":       messagesData(e.Request),
			"input_tokens":  e.InputTokens,
			"output_tokens": e.OutputTokens,
			"duration":      e.Duration.String(),
		}
		if e.Response != nil && len(e.Response.Choices) > 0 {
			choice := e.Response.Choices[0]
			data["response"] = map[string]any{
				"content":    choice.Content,
				"tool_calls": toolCallsData(choice.ToolCalls),
			}
		}
		return "ModelCall", e.Timestamp, withError(data, e.Error)
	case flowmap.ToolCallTrace:
		return "ToolCall", e.Timestamp, withError(map[string]any{
			"stage":    string(e.Stage),
			"tool":     e.ToolName,
			"call_id":  e.CallID,
			"input":    e.Input,
			"output":   e.Output,
			"duration": e.Duration.String(),
		}, e.Error)
	case flowmap.LookupTrace:
		return "Lookup", e.Timestamp, withError(map[string]any{
			"stage":     string(e.Stage),
			"service":   e.Service,
			"operation": e.Operation,
			"query":     e.Query,
			"results":   e.Results,
			"cache_hit": e.CacheHit,
			"duration":  e.Duration.String(),
		}, e.Error)
	case flowmap.CustomTrace:
		return e.Name, e.Timestamp, e.Data
	}
	return fmt.Sprintf("%T", event), time.Time{}, nil
}

func withError(data map[string]any, err error) map[string]any {
	if err != nil {
		data["error"] = err.Error()
	}
	return data
}

func messagesData(messages []llms.MessageContent) []map[string]any {
	out := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		var parts []any
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llms.TextContent:
				parts = append(parts, p.Text)
			case llms.ToolCall:
				parts = append(parts, toolCallsData([]llms.ToolCall{p})[0])
			case llms.ToolCallResponse:
				parts = append(parts, map[string]any{
					"tool_call_id": p.ToolCallID,
					"name":         p.Name,
					"content":      p.Content,
				})
			default:
				parts = append(parts, fmt.Sprintf("%T", part))
			}
		}
		out = append(out, map[string]any{"role": string(msg.Role), "parts": parts})
	}
	return out
}

func toolCallsData(calls []llms.ToolCall) []map[string]any {
	out := make([]map[string]any, 0, len(calls))
	for _, call := range calls {
		data := map[string]any{"id": call.ID}
		if call.FunctionCall != nil {
			data["name"] = call.FunctionCall.Name
			data["arguments"] = call.FunctionCall.Arguments
		}
		out = append(out, data)
	}
	return out
}
