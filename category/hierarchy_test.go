package category

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	type expected struct {
		found  bool
		labels []string
	}

	tests := []struct {
		name     string
		input    string
		expected expected
	}{
		{
			name:  "air emission key",
			input: "emissions to air, unspecified",
			expected: expected{
				found:  true,
				labels: []string{"Emissions", "Emissions to air", "Emissions to air, unspecified"},
			},
		},
		{
			name:  "display label",
			input: "Emissions to fresh water",
			expected: expected{
				found:  true,
				labels: []string{"Emissions", "Emissions to water", "Emissions to fresh water"},
			},
		},
		{
			name:  "resource from ground",
			input: "non-renewable element resources from ground",
			expected: expected{
				found:  true,
				labels: []string{"Resources", "Resources from ground", "Non-renewable element resources from ground"},
			},
		},
		{
			name:  "biosphere",
			input: "renewable genetic resources from biosphere",
			expected: expected{
				found:  true,
				labels: []string{"Resources", "Resources from biosphere", "Renewable genetic resources from biosphere"},
			},
		},
		{
			name:     "empty label",
			input:    "",
			expected: expected{found: false},
		},
		{
			name:     "unknown label",
			input:    "not a real category",
			expected: expected{found: false},
		},
		{
			name:     "case-sensitive",
			input:    "EMISSIONS TO AIR, UNSPECIFIED",
			expected: expected{found: false},
		},
		{
			name:     "no whitespace normalization",
			input:    " emissions to air, unspecified",
			expected: expected{found: false},
		},
		{
			name:     "level-1 label is not a leaf",
			input:    "Emissions to air",
			expected: expected{found: false},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			chain, ok := Resolve(tc.input)

			assert.Equal(t, tc.expected.found, ok)
			if tc.expected.found {
				assert.Equal(t, tc.expected.labels, chain.Labels())
			} else {
				assert.Empty(t, chain.Entries())
			}
		})
	}
}

func TestHierarchy_EveryLeafResolves(t *testing.T) {
	h := New()
	keys := h.Keys()
	require.Len(t, keys, 42)

	for _, key := range keys {
		chain, ok := h.Resolve(key)
		require.True(t, ok, key)

		entries := chain.Entries()
		require.Len(t, entries, 3, key)
		for i, e := range entries {
			assert.Equal(t, i, e.Level, key)
		}
		assert.True(t, strings.EqualFold(key, chain.Leaf().Label), key)
		assert.Equal(t, key, chain.Key())
		assert.Contains(t, []string{RootEmissions, RootResources}, entries[0].Label)
		assert.True(t, strings.HasPrefix(entries[1].Label, entries[0].Label), key)

		byLabel, ok := h.Resolve(chain.Leaf().Label)
		require.True(t, ok)
		assert.Equal(t, chain, byLabel)
	}
}

func TestHierarchy_KeysAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range Default().Keys() {
		assert.False(t, seen[k], k)
		seen[k] = true
	}
}

func TestBuild_RejectsDuplicates(t *testing.T) {
	_, err := build([]group{
		{root: RootEmissions, label: "Emissions to air", leaves: []string{"emissions to air, unspecified"}},
		{root: RootEmissions, label: "Emissions to air", leaves: []string{"emissions to air, unspecified"}},
	})
	assert.Error(t, err)
}

func TestExtractionVocabulary(t *testing.T) {
	vocab := Default().ExtractionVocabulary()
	require.Len(t, vocab, 43)
	assert.Equal(t, "", vocab[0])
	assert.Equal(t, "emissions to fresh water", vocab[1])
	assert.Equal(t, "renewable resources from biosphere, unspecified", vocab[42])
}

func TestChain_FilterValue(t *testing.T) {
	chain, ok := Resolve("emissions to air, unspecified")
	require.True(t, ok)

	assert.JSONEq(t, `[
		{"@level":"0","#text":"Emissions"},
		{"@level":"1","#text":"Emissions to air"},
		{"@level":"2","#text":"Emissions to air, unspecified"}
	]`, chain.FilterValue())

	assert.Equal(t, "Emissions / Emissions to air / Emissions to air, unspecified", chain.Path())

	data, err := json.Marshal(chain)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"label":"Emissions","level":0},
		{"label":"Emissions to air","level":1},
		{"label":"Emissions to air, unspecified","level":2}
	]`, string(data))
}
