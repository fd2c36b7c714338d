package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/cas"
	"github.com/rickchristie/flowmap/internal/tt"
	"github.com/rickchristie/flowmap/lcadb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type pipelineFixture struct {
	model    *tt.MockModel
	registry *tt.FakeRegistry
	db       *tt.FakeDatabase
	pipeline *Pipeline
}

func newPipelineFixture(t *testing.T, registry cas.Registry, opts ...PipelineOption) *pipelineFixture {
	t.Helper()
	f := &pipelineFixture{
		model: tt.NewMockModel(),
		db:    tt.NewFakeDatabase(),
	}
	if registry == nil {
		f.registry = tt.NewFakeRegistry()
		registry = f.registry
	}

	expander, err := NewSynonymExpander(f.model)
	require.NoError(t, err)
	f.pipeline = NewPipeline(
		NewExtractor(f.model),
		expander,
		cas.NewResolver(registry),
		NewFlowResolver(f.db),
		opts...,
	)
	return f
}

func (f *pipelineFixture) script(name, category, synonymsAnswer string) {
	f.model.AddToolCall(ParseQueryTool, map[string]any{"name": name, "category": category})
	if synonymsAnswer != "" {
		f.model.AddResponse(synonymsAnswer, 30, 20)
	}
}

func TestPipeline_Scenarios(t *testing.T) {
	type expected struct {
		query    flowmap.ParsedQuery
		synonyms []string
		cas      string
		path     flowmap.MatchPath
		filter   lcadb.Filter
		search   string
		flows    int
		outcomes map[flowmap.Stage]string
	}

	tests := []struct {
		name     string
		text     string
		setup    func(f *pipelineFixture)
		expected expected
	}{
		{
			name: "cas found without category uses cas only filter",
			text: "carbon dioxide from coal combustion",
			setup: func(f *pipelineFixture) {
				f.script("carbon dioxide", "", `{"synonyms": ["carbon dioxide", "CO2"]}`)
				f.registry.With("carbon dioxide", "124-38-9")
				f.db.QueryRecords = []lcadb.Record{tt.Flow("carbon dioxide", "00000124389", "u1", 0)}
			},
			expected: expected{
				query:    flowmap.ParsedQuery{Name: "carbon dioxide"},
				synonyms: []string{"carbon dioxide", "CO2"},
				cas:      "00000124389",
				path:     flowmap.PathCASOnly,
				filter:   lcadb.Filter{lcadb.ColumnCAS: "00000124389"},
				flows:    1,
				outcomes: map[flowmap.Stage]string{
					flowmap.StageExtract:  flowmap.OutcomeOK,
					flowmap.StageSynonyms: flowmap.OutcomeOK,
					flowmap.StageCAS:      flowmap.OutcomeOK,
					flowmap.StageFlows:    flowmap.OutcomeOK,
				},
			},
		},
		{
			name: "cas and category use the exact filter",
			text: "methane emitted to air",
			setup: func(f *pipelineFixture) {
				f.script("methane", "emissions to air, unspecified", `{"synonyms": ["methane", "CH4"]}`)
				f.registry.With("methane", "74-82-8")
				f.db.QueryRecords = []lcadb.Record{tt.Flow("methane", "00000074828", "u1", 0)}
			},
			expected: expected{
				query:    flowmap.ParsedQuery{Name: "methane", Category: "emissions to air, unspecified"},
				synonyms: []string{"methane", "CH4"},
				cas:      "00000074828",
				path:     flowmap.PathExact,
				filter:   lcadb.Filter{lcadb.ColumnCAS: "00000074828", lcadb.ColumnCategorization: airChain(t)},
				flows:    1,
				outcomes: map[flowmap.Stage]string{
					flowmap.StageExtract:  flowmap.OutcomeOK,
					flowmap.StageSynonyms: flowmap.OutcomeOK,
					flowmap.StageCAS:      flowmap.OutcomeOK,
					flowmap.StageFlows:    flowmap.OutcomeOK,
				},
			},
		},
		{
			name: "no cas selects full text search",
			text: "coal ash to soil",
			setup: func(f *pipelineFixture) {
				f.script("coal ash", "emissions to soil, unspecified", `{"synonyms": ["coal ash", "fly ash"]}`)
				f.db.SearchRecords = []lcadb.Record{tt.Flow("ash", "", "u1", 2), tt.Flow("fly ash", "", "u2", 3)}
			},
			expected: expected{
				query:    flowmap.ParsedQuery{Name: "coal ash", Category: "emissions to soil, unspecified"},
				synonyms: []string{"coal ash", "fly ash"},
				cas:      "",
				path:     flowmap.PathFuzzy,
				search:   "coal ash, fly ash, emissions to soil, unspecified",
				flows:    2,
				outcomes: map[flowmap.Stage]string{
					flowmap.StageExtract:  flowmap.OutcomeOK,
					flowmap.StageSynonyms: flowmap.OutcomeOK,
					flowmap.StageCAS:      flowmap.OutcomeNone,
					flowmap.StageFlows:    flowmap.OutcomeOK,
				},
			},
		},
		{
			name: "no synonyms still searches the extracted name",
			text: "zorblax",
			setup: func(f *pipelineFixture) {
				f.script("zorblax", "", "None")
			},
			expected: expected{
				query:  flowmap.ParsedQuery{Name: "zorblax"},
				path:   flowmap.PathFuzzy,
				search: "zorblax",
				outcomes: map[flowmap.Stage]string{
					flowmap.StageExtract:  flowmap.OutcomeOK,
					flowmap.StageSynonyms: flowmap.OutcomeNone,
					flowmap.StageCAS:      flowmap.OutcomeNone,
					flowmap.StageFlows:    flowmap.OutcomeNone,
				},
			},
		},
		{
			name: "no substance degrades to a skipped run",
			text: "what is the weather like",
			setup: func(f *pipelineFixture) {
				f.script("None", "", "")
			},
			expected: expected{
				path: flowmap.PathSkipped,
				outcomes: map[flowmap.Stage]string{
					flowmap.StageExtract:  flowmap.OutcomeNone,
					flowmap.StageSynonyms: flowmap.OutcomeNone,
					flowmap.StageCAS:      flowmap.OutcomeNone,
					flowmap.StageFlows:    flowmap.OutcomeNone,
				},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newPipelineFixture(t, nil)
			tc.setup(f)

			execCtx := flowmap.NewExecutionContext("test")
			got, err := f.pipeline.Execute(context.Background(), execCtx, tc.text, flowmap.DefaultTopN)
			require.NoError(t, err)

			assert.Equal(t, execCtx.ID(), got.RunID)
			assert.Equal(t, tc.text, got.Text)
			assert.Equal(t, tc.expected.query, got.Query)
			assert.Equal(t, tc.expected.synonyms, got.Synonyms.Names())
			assert.Equal(t, tc.expected.cas, got.CAS.Digits())
			assert.Equal(t, tc.expected.path, got.Path)
			assert.Len(t, got.Flows, tc.expected.flows)

			if tc.expected.filter != nil {
				require.Len(t, f.db.Queries, 1)
				assert.Equal(t, tc.expected.filter, f.db.Queries[0].Filter)
				assert.Empty(t, f.db.Searches, "structured path never searches")
			}
			if tc.expected.search != "" {
				require.Len(t, f.db.Searches, 1)
				assert.Equal(t, tc.expected.search, f.db.Searches[0].Query)
				assert.Empty(t, f.db.Queries, "fuzzy path never filters")
			}
			tt.AssertStageOutcomes(t, tc.expected.outcomes, execCtx)
			assert.NoError(t, execCtx.Err())
		})
	}
}

func TestPipeline_RegistryFailureIsNone(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
		},
		{
			name: "timeout",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"results": [`)
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			registry, err := cas.NewCommonChemistry(cas.CommonChemistryConfig{BaseURL: srv.URL})
			require.NoError(t, err)

			f := newPipelineFixture(t, registry, WithTimeouts(Timeouts{CAS: 50 * time.Millisecond}))
			f.script("water", "", `{"synonyms": ["water", "H2O"]}`)
			f.db.SearchRecords = []lcadb.Record{tt.Flow("water", "00007732185", "u1", 1)}

			got, err := f.pipeline.Run(context.Background(), "water")
			require.NoError(t, err)

			assert.False(t, got.CAS.Found())
			assert.Equal(t, flowmap.PathFuzzy, got.Path)
			assert.Len(t, got.Flows, 1)
		})
	}
}

func TestPipeline_CapabilityFailuresAbort(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(f *pipelineFixture)
		expectedErr   error
		expectedStage flowmap.Stage
	}{
		{
			name: "extraction",
			setup: func(f *pipelineFixture) {
				f.model.AddError(errors.New("401 unauthorized"))
			},
			expectedErr:   flowmap.ErrExtractionFailed,
			expectedStage: flowmap.StageExtract,
		},
		{
			name: "expansion",
			setup: func(f *pipelineFixture) {
				f.model.AddToolCall(ParseQueryTool, map[string]any{"name": "water", "category": ""})
				f.model.AddError(errors.New("connection reset"))
			},
			expectedErr:   flowmap.ErrExpansionFailed,
			expectedStage: flowmap.StageSynonyms,
		},
		{
			name: "database",
			setup: func(f *pipelineFixture) {
				f.script("water", "", `{"synonyms": ["water"]}`)
				f.registry.With("water", "7732-18-5")
				f.db.Err = errors.New("HTTP 500: internal error")
			},
			expectedErr:   flowmap.ErrDatabase,
			expectedStage: flowmap.StageFlows,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newPipelineFixture(t, nil)
			tc.setup(f)

			execCtx := flowmap.NewExecutionContext("test")
			got, err := f.pipeline.Execute(context.Background(), execCtx, "water", 5)

			require.Error(t, err)
			assert.ErrorIs(t, err, tc.expectedErr)
			assert.True(t, IsCapabilityFailure(err))

			var stageErr *flowmap.StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, tc.expectedStage, stageErr.Stage)

			require.NotNil(t, got)
			assert.Empty(t, got.Flows)
			assert.Equal(t, flowmap.OutcomeFailed, tt.StageOutcomes(execCtx)[tc.expectedStage])
			assert.ErrorIs(t, execCtx.Err(), tc.expectedErr)
		})
	}
}

func TestPipeline_ExtractionTimeoutAborts(t *testing.T) {
	f := newPipelineFixture(t, nil, WithTimeouts(Timeouts{Extract: 20 * time.Millisecond}))
	f.model.AddDelayedResponse(`{"name": "water", "category": ""}`, time.Second)

	_, err := f.pipeline.Run(context.Background(), "water")
	assert.ErrorIs(t, err, flowmap.ErrExtractionFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPipeline_SynonymTimeoutIsNone(t *testing.T) {
	f := newPipelineFixture(t, nil, WithTimeouts(Timeouts{Synonyms: 20 * time.Millisecond}))
	f.model.AddToolCall(ParseQueryTool, map[string]any{"name": "water", "category": ""})
	f.model.AddDelayedResponse(`{"synonyms": ["water"]}`, time.Second)
	f.registry.With("water", "7732-18-5")

	got, err := f.pipeline.Run(context.Background(), "water")
	require.NoError(t, err)
	assert.False(t, got.Synonyms.Found())
	assert.Equal(t, "00007732185", got.CAS.Digits(), "the extracted name is still looked up")
	assert.Equal(t, []string{"water"}, f.registry.Queries())
}

func TestPipeline_RunCompactReturnsThree(t *testing.T) {
	records := []lcadb.Record{
		tt.Flow("a", "", "u1", 5), tt.Flow("b", "", "u2", 4), tt.Flow("c", "", "u3", 3),
		tt.Flow("d", "", "u4", 2), tt.Flow("e", "", "u5", 1), tt.Flow("f", "", "u6", 0.5),
	}

	tests := []struct {
		name     string
		run      func(p *Pipeline) (*flowmap.ResolutionResult, error)
		expected int
	}{
		{name: "default", run: func(p *Pipeline) (*flowmap.ResolutionResult, error) { return p.Run(context.Background(), "x") }, expected: 5},
		{name: "compact", run: func(p *Pipeline) (*flowmap.ResolutionResult, error) { return p.RunCompact(context.Background(), "x") }, expected: 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newPipelineFixture(t, nil)
			f.script("x", "", `{"synonyms": ["x"]}`)
			f.db.SearchRecords = records

			got, err := tc.run(f.pipeline)
			require.NoError(t, err)
			assert.Len(t, got.Flows, tc.expected)
			assert.Equal(t, "a", got.Flows[0].BaseName)
			assert.Equal(t, tc.expected, f.db.Searches[0].Limit)
		})
	}
}

func TestPipeline_RunBatch(t *testing.T) {
	model := &routingModel{answers: map[string]string{
		"water":   `{"synonyms": ["water"]}`,
		"ethanol": `{"synonyms": ["ethanol", "ethyl alcohol"]}`,
	}}
	registry := tt.NewFakeRegistry().With("water", "7732-18-5").With("ethanol", "64-17-5")
	db := tt.NewFakeDatabase()
	db.QueryRecords = []lcadb.Record{tt.Flow("flow", "", "u1", 0)}

	expander, err := NewSynonymExpander(model)
	require.NoError(t, err)
	pipeline := NewPipeline(NewExtractor(model), expander, cas.NewResolver(registry), NewFlowResolver(db),
		WithConcurrency(2))

	items, err := pipeline.RunBatch(context.Background(), []string{"water", "fail", "ethanol"})
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "water", items[0].Text)
	require.NoError(t, items[0].Err)
	assert.Equal(t, "00007732185", items[0].Result.CAS.Digits())

	assert.ErrorIs(t, items[1].Err, flowmap.ErrExtractionFailed)

	require.NoError(t, items[2].Err)
	assert.Equal(t, "00000064175", items[2].Result.CAS.Digits())
	assert.Equal(t, []string{"ethanol", "ethyl alcohol"}, items[2].Result.Synonyms.Names())

	for _, item := range items {
		assert.NotNil(t, item.Trace)
	}
	assert.NotEqual(t, items[0].Trace.ID(), items[2].Trace.ID())
}

func TestPipeline_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	f := newPipelineFixture(t, nil, WithMetrics(metrics))
	f.script("water", "", `{"synonyms": ["water"]}`)
	f.registry.With("water", "7732-18-5")
	f.script("zorblax", "", "None")

	_, err = f.pipeline.Run(context.Background(), "water")
	require.NoError(t, err)
	_, err = f.pipeline.Run(context.Background(), "zorblax")
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.runs.WithLabelValues(flowmap.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.paths.WithLabelValues(string(flowmap.PathCASOnly))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.paths.WithLabelValues(string(flowmap.PathFuzzy))))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.casLookups.WithLabelValues("found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.casLookups.WithLabelValues("none")))

	_, err = NewMetrics(reg)
	assert.Error(t, err, "collectors register once")
}

// routingModel answers by the substance in the prompt, so concurrent runs can
// share it.
type routingModel struct {
	answers map[string]string
}

func (m *routingModel) GenerateContent(
	_ context.Context,
	_ *flowmap.ExecutionContext,
	messages []llms.MessageContent,
	opts ...llms.CallOption,
) (*flowmap.ContentResponse, error) {
	var callOpts llms.CallOptions
	for _, opt := range opts {
		opt(&callOpts)
	}
	prompt := tt.MessageText(messages[len(messages)-1])

	for name, answer := range m.answers {
		if !strings.Contains(prompt, "<"+name+">") {
			continue
		}
		if callOpts.ToolChoice != nil {
			call := tt.ToolCall("call_1", ParseQueryTool, map[string]any{"name": name, "category": ""})
			return &flowmap.ContentResponse{Choices: []*flowmap.ContentChoice{{ToolCalls: []llms.ToolCall{call}}}}, nil
		}
		return &flowmap.ContentResponse{Choices: []*flowmap.ContentChoice{{Content: answer}}}, nil
	}
	return nil, errors.New("no route")
}
