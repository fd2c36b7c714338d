package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/internal/tt"
	"github.com/rickchristie/flowmap/toolchain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

func newSearchTool(answer string, queries *[]string) *flowmap.ToolFunc[toolchain.TextQuery, string] {
	return flowmap.NewToolFunc(
		SearchInternetTool,
		"Search the internet",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"query": map[string]any{"type": "string"}},
			"required":   []string{"query"},
		},
		func(_ context.Context, in toolchain.TextQuery) (string, error) {
			*queries = append(*queries, in.Query)
			return answer, nil
		},
	)
}

func TestSynonymExpander_Expand(t *testing.T) {
	type expected struct {
		names      []string
		err        error
		modelCalls int
	}

	tests := []struct {
		name     string
		query    flowmap.ParsedQuery
		setup    func(m *tt.MockModel)
		expected expected
	}{
		{
			name:  "json object answer",
			query: flowmap.ParsedQuery{Name: "carbon dioxide"},
			setup: func(m *tt.MockModel) {
				m.AddResponse(`{"synonyms": ["carbon dioxide", "CO2", "carbonic anhydride", "carbon(IV) oxide", "dry ice"]}`, 20, 15)
			},
			expected: expected{
				names:      []string{"carbon dioxide", "CO2", "carbonic anhydride", "carbon(IV) oxide", "dry ice"},
				modelCalls: 1,
			},
		},
		{
			name:  "original name is placed first",
			query: flowmap.ParsedQuery{Name: "water"},
			setup: func(m *tt.MockModel) {
				m.AddResponse(`{"synonyms": ["dihydrogen monoxide", "H2O", "Water", "oxidane"]}`, 20, 15)
			},
			expected: expected{
				names:      []string{"water", "dihydrogen monoxide", "H2O", "oxidane"},
				modelCalls: 1,
			},
		},
		{
			name:  "original name added and capped",
			query: flowmap.ParsedQuery{Name: "ethanol"},
			setup: func(m *tt.MockModel) {
				m.AddResponse("```json\n[\"ethyl alcohol\", \"alcohol\", \"EtOH\", \"grain alcohol\", \"hydroxyethane\"]\n```", 20, 15)
			},
			expected: expected{
				names:      []string{"ethanol", "ethyl alcohol", "alcohol", "EtOH", "grain alcohol"},
				modelCalls: 1,
			},
		},
		{
			name:  "none answer",
			query: flowmap.ParsedQuery{Name: "zorblax"},
			setup: func(m *tt.MockModel) {
				m.AddResponse("None", 20, 1)
			},
			expected: expected{names: nil, modelCalls: 1},
		},
		{
			name:  "empty list",
			query: flowmap.ParsedQuery{Name: "zorblax"},
			setup: func(m *tt.MockModel) {
				m.AddResponse(`{"synonyms": []}`, 20, 1)
			},
			expected: expected{names: nil, modelCalls: 1},
		},
		{
			name:  "list of none literals",
			query: flowmap.ParsedQuery{Name: "zorblax"},
			setup: func(m *tt.MockModel) {
				m.AddResponse(`["None"]`, 20, 1)
			},
			expected: expected{names: nil, modelCalls: 1},
		},
		{
			name:  "object of none literals",
			query: flowmap.ParsedQuery{Name: "zorblax"},
			setup: func(m *tt.MockModel) {
				m.AddResponse(`{"synonyms": ["None", " "]}`, 20, 1)
			},
			expected: expected{names: nil, modelCalls: 1},
		},
		{
			name:  "none literals mixed with names are dropped",
			query: flowmap.ParsedQuery{Name: "methane"},
			setup: func(m *tt.MockModel) {
				m.AddResponse(`["None", "CH4", "marsh gas"]`, 20, 3)
			},
			expected: expected{names: []string{"methane", "CH4", "marsh gas"}, modelCalls: 1},
		},
		{
			name:     "no name skips the model",
			query:    flowmap.ParsedQuery{},
			setup:    func(m *tt.MockModel) {},
			expected: expected{names: nil, modelCalls: 0},
		},
		{
			name:  "prose answer fails",
			query: flowmap.ParsedQuery{Name: "water"},
			setup: func(m *tt.MockModel) {
				m.AddResponse("Water is also called H2O.", 20, 5)
			},
			expected: expected{err: flowmap.ErrExpansionFailed, modelCalls: 1},
		},
		{
			name:  "model error fails",
			query: flowmap.ParsedQuery{Name: "water"},
			setup: func(m *tt.MockModel) {
				m.AddError(errors.New("upstream 503"))
			},
			expected: expected{err: flowmap.ErrExpansionFailed, modelCalls: 1},
		},
		{
			name:  "deadline is none",
			query: flowmap.ParsedQuery{Name: "water"},
			setup: func(m *tt.MockModel) {
				m.AddError(context.DeadlineExceeded)
			},
			expected: expected{names: nil, modelCalls: 1},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			model := tt.NewMockModel()
			tc.setup(model)
			expander, err := NewSynonymExpander(model)
			require.NoError(t, err)

			got, err := expander.Expand(context.Background(), flowmap.NewExecutionContext("test"), tc.query)

			assert.Equal(t, tc.expected.modelCalls, model.CallCount())
			if tc.expected.err != nil {
				assert.ErrorIs(t, err, tc.expected.err)
				assert.False(t, got.Found())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected.names, got.Names())
			assert.LessOrEqual(t, got.Len(), flowmap.MaxSynonyms)
		})
	}
}

func TestSynonymExpander_UsesSearchTool(t *testing.T) {
	var queries []string
	model := tt.NewMockModel().
		AddToolCall(SearchInternetTool, map[string]any{"query": "acetone synonyms"}).
		AddResponse(`{"synonyms": ["acetone", "propanone", "dimethyl ketone"]}`, 40, 10)

	expander, err := NewSynonymExpander(model, WithTool(newSearchTool("Acetone, also propanone ...", &queries)))
	require.NoError(t, err)

	execCtx := flowmap.NewExecutionContext("test")
	got, err := expander.Expand(context.Background(), execCtx, flowmap.ParsedQuery{Name: "acetone"})
	require.NoError(t, err)

	assert.Equal(t, []string{"acetone", "propanone", "dimethyl ketone"}, got.Names())
	assert.Equal(t, []string{"acetone synonyms"}, queries)

	require.Len(t, model.CapturedOptions, 2)
	require.Len(t, model.CapturedOptions[0].Tools, 1)
	assert.Equal(t, SearchInternetTool, model.CapturedOptions[0].Tools[0].Function.Name)

	second := model.CapturedMessages[1]
	require.Len(t, second, 4)
	assert.Equal(t, llms.ChatMessageTypeAI, second[2].Role)
	assert.Equal(t, llms.ChatMessageTypeTool, second[3].Role)
	response := second[3].Parts[0].(llms.ToolCallResponse)
	assert.Equal(t, "Acetone, also propanone ...", response.Content)

	tt.AssertStats(t, 2, 1, 0, execCtx)
}

func TestSynonymExpander_RoundLimit(t *testing.T) {
	var queries []string
	model := tt.NewMockModel().
		AddToolCall(SearchInternetTool, map[string]any{"query": "a"}).
		AddToolCall(SearchInternetTool, map[string]any{"query": "b"})

	expander, err := NewSynonymExpander(model,
		WithTool(newSearchTool("nothing", &queries)),
		WithMaxRounds(2))
	require.NoError(t, err)

	_, err = expander.Expand(context.Background(), nil, flowmap.ParsedQuery{Name: "x"})
	assert.ErrorIs(t, err, flowmap.ErrExpansionFailed)
	assert.Equal(t, 2, model.CallCount())
}

func TestSynonymExpander_TimeoutIsNone(t *testing.T) {
	model := tt.NewMockModel().AddDelayedResponse(`{"synonyms": ["water"]}`, time.Second)
	expander, err := NewSynonymExpander(model)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := expander.Expand(ctx, nil, flowmap.ParsedQuery{Name: "water"})
	require.NoError(t, err)
	assert.False(t, got.Found())
}

func TestNewSynonymExpander_InvalidOptions(t *testing.T) {
	_, err := NewSynonymExpander(tt.NewMockModel(), WithMaxRounds(0))
	assert.ErrorIs(t, err, flowmap.ErrInvalidConfig)

	tool := newSearchTool("", new([]string))
	_, err = NewSynonymExpander(tt.NewMockModel(), WithTool(tool), WithTool(tool))
	assert.Error(t, err)
}
