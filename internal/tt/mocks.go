// Package tt holds test doubles shared across flowmap packages.
package tt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/cas"
	"github.com/rickchristie/flowmap/lcadb"
	"github.com/tmc/langchaingo/llms"
)

// -----------------------------------------------------------------------------
// MockModel - implements flowmap.Model with tracing
// -----------------------------------------------------------------------------

// MockModel is a scripted flowmap.Model. Queued responses and errors are
// returned in call order.
type MockModel struct {
	mu        sync.Mutex
	name      string
	responses []*flowmap.ContentResponse
	errors    []error
	delays    []time.Duration
	callCount int

	// CapturedMessages stores the messages passed to each GenerateContent call.
	CapturedMessages [][]llms.MessageContent

	// CapturedOptions stores the call options resolved for each call.
	CapturedOptions []llms.CallOptions
}

// NewMockModel creates a new MockModel with the default name "test-model".
func NewMockModel() *MockModel {
	return &MockModel{name: "test-model"}
}

// WithName sets the model name used in traces.
func (m *MockModel) WithName(name string) *MockModel {
	m.name = name
	return m
}

func (m *MockModel) push(resp *flowmap.ContentResponse, err error, delay time.Duration) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resp)
	m.errors = append(m.errors, err)
	m.delays = append(m.delays, delay)
	return m
}

// AddResponse queues a text response with the specified token counts.
func (m *MockModel) AddResponse(content string, inputTokens, outputTokens int) *MockModel {
	return m.push(&flowmap.ContentResponse{
		Choices: []*flowmap.ContentChoice{{Content: content}},
		Info: &flowmap.GenerationInfo{
			InputTokens:  inputTokens,
			OutputTokens: outputTokens,
			TotalTokens:  inputTokens + outputTokens,
		},
	}, nil, 0)
}

// AddToolCall queues a response asking for one tool call. args is encoded as
// JSON unless it is already a string.
func (m *MockModel) AddToolCall(name string, args any) *MockModel {
	return m.AddToolCalls(ToolCall(fmt.Sprintf("call_%d", len(m.responses)+1), name, args))
}

// AddToolCalls queues a response asking for several tool calls at once.
func (m *MockModel) AddToolCalls(calls ...llms.ToolCall) *MockModel {
	return m.push(&flowmap.ContentResponse{
		Choices: []*flowmap.ContentChoice{{ToolCalls: calls, StopReason: "tool_calls"}},
		Info:    &flowmap.GenerationInfo{InputTokens: 10, OutputTokens: 5, TotalTokens: 15},
	}, nil, 0)
}

// AddRawResponse queues a raw ContentResponse.
// Use this when you need full control over the response structure (e.g., empty
// Choices slice).
func (m *MockModel) AddRawResponse(resp *flowmap.ContentResponse) *MockModel {
	return m.push(resp, nil, 0)
}

// AddError queues an error for the next call.
func (m *MockModel) AddError(err error) *MockModel {
	return m.push(nil, err, 0)
}

// AddDelayedResponse queues a text response that is only returned after delay,
// or the context error if the context ends first.
func (m *MockModel) AddDelayedResponse(content string, delay time.Duration) *MockModel {
	return m.push(&flowmap.ContentResponse{
		Choices: []*flowmap.ContentChoice{{Content: content}},
		Info:    &flowmap.GenerationInfo{},
	}, nil, delay)
}

// CallCount returns the number of times GenerateContent has been called.
func (m *MockModel) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// GenerateContent implements flowmap.Model.
func (m *MockModel) GenerateContent(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	messages []llms.MessageContent,
	opts ...llms.CallOption,
) (*flowmap.ContentResponse, error) {
	var callOpts llms.CallOptions
	for _, opt := range opts {
		opt(&callOpts)
	}

	m.mu.Lock()
	idx := m.callCount
	m.callCount++
	m.CapturedMessages = append(m.CapturedMessages, messages)
	m.CapturedOptions = append(m.CapturedOptions, callOpts)

	var (
		resp  *flowmap.ContentResponse
		err   error
		delay time.Duration
	)
	if idx < len(m.responses) {
		resp, err, delay = m.responses[idx], m.errors[idx], m.delays[idx]
	} else {
		err = fmt.Errorf("mock model: no response queued for call %d", idx+1)
	}
	m.mu.Unlock()

	startTime := time.Now()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			resp, err = nil, ctx.Err()
		}
	}

	if execCtx != nil {
		trace := flowmap.ModelCallTrace{
			Model:    m.name,
			Request:  messages,
			Response: resp,
			Duration: time.Since(startTime),
			Error:    err,
		}
		if resp != nil && resp.Info != nil {
			trace.InputTokens = resp.Info.InputTokens
			trace.OutputTokens = resp.Info.OutputTokens
		}
		execCtx.Trace(trace)
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// ToolCall builds an llms.ToolCall. args is encoded as JSON unless it is
// already a string.
func ToolCall(id, name string, args any) llms.ToolCall {
	var encoded string
	switch v := args.(type) {
	case string:
		encoded = v
	default:
		b, _ := json.Marshal(v)
		encoded = string(b)
	}
	return llms.ToolCall{
		ID:           id,
		Type:         "function",
		FunctionCall: &llms.FunctionCall{Name: name, Arguments: encoded},
	}
}

// MessageText concatenates the text parts of msg.
func MessageText(msg llms.MessageContent) string {
	var b strings.Builder
	for _, part := range msg.Parts {
		if text, ok := part.(llms.TextContent); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

// -----------------------------------------------------------------------------
// FakeRegistry - implements cas.Registry
// -----------------------------------------------------------------------------

// FakeRegistry is an in-memory cas.Registry keyed by lowercase query.
type FakeRegistry struct {
	mu      sync.Mutex
	results map[string][]cas.Result
	err     error
	queries []string
}

// NewFakeRegistry creates an empty FakeRegistry. Unknown queries have no hits.
func NewFakeRegistry() *FakeRegistry {
	return &FakeRegistry{results: make(map[string][]cas.Result)}
}

// With registers the registry numbers returned for query.
func (r *FakeRegistry) With(query string, rns ...string) *FakeRegistry {
	results := make([]cas.Result, len(rns))
	for i, rn := range rns {
		results[i] = cas.Result{RN: rn, Name: query}
	}
	r.results[strings.ToLower(query)] = results
	return r
}

// WithError makes every search fail with err.
func (r *FakeRegistry) WithError(err error) *FakeRegistry {
	r.err = err
	return r
}

// Queries returns the queries searched so far.
func (r *FakeRegistry) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries...)
}

// Search implements cas.Registry.
func (r *FakeRegistry) Search(_ context.Context, query string) ([]cas.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, query)
	if r.err != nil {
		return nil, r.err
	}
	return r.results[strings.ToLower(query)], nil
}

// -----------------------------------------------------------------------------
// FakeDatabase - implements lcadb.Database
// -----------------------------------------------------------------------------

// FakeDatabase is a scripted lcadb.Database that records every request.
type FakeDatabase struct {
	mu sync.Mutex

	SearchRecords []lcadb.Record
	QueryRecords  []lcadb.Record
	Answer        *lcadb.Answer
	Err           error

	Searches []lcadb.SearchRequest
	Queries  []lcadb.QueryRequest
	Asks     []lcadb.AskRequest
}

// NewFakeDatabase creates a FakeDatabase with no records.
func NewFakeDatabase() *FakeDatabase {
	return &FakeDatabase{}
}

// FullTextSearch implements lcadb.Database.
func (d *FakeDatabase) FullTextSearch(_ context.Context, req lcadb.SearchRequest) ([]lcadb.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Searches = append(d.Searches, req)
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]lcadb.Record(nil), d.SearchRecords...), nil
}

// StructuredQuery implements lcadb.Database.
func (d *FakeDatabase) StructuredQuery(_ context.Context, req lcadb.QueryRequest) ([]lcadb.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Queries = append(d.Queries, req)
	if d.Err != nil {
		return nil, d.Err
	}
	return append([]lcadb.Record(nil), d.QueryRecords...), nil
}

// SemanticAsk implements lcadb.Database.
func (d *FakeDatabase) SemanticAsk(_ context.Context, req lcadb.AskRequest) (*lcadb.Answer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Asks = append(d.Asks, req)
	if d.Err != nil {
		return nil, d.Err
	}
	if d.Answer == nil {
		return &lcadb.Answer{}, nil
	}
	return d.Answer, nil
}

// Flow builds a scored record.
func Flow(name, cas, uuid string, score float64) lcadb.Record {
	return lcadb.Record{
		FlowRecord: flowmap.FlowRecord{
			BaseName:                     name,
			ElementaryFlowCategorization: "[]",
			CASNumber:                    cas,
			UUID:                         uuid,
		},
		ID:    uuid,
		Score: score,
	}
}
