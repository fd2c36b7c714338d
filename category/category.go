// Package category maps elementary flow category labels to their full ILCD
// hierarchy (root, compartment, sub-compartment), the form flows are stored under
// in the LCA database.
//
//	chain, ok := category.Resolve("emissions to air, unspecified")
//	// chain.Labels() == ["Emissions", "Emissions to air", "Emissions to air, unspecified"]
package category

import (
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entry is one level of a category chain.
type Entry struct {
	Label string
	Level int
}

// Chain is the root-to-leaf path of one leaf category.
type Chain struct {
	key     string
	entries []Entry
}

// Key returns the lower-case leaf label the chain is looked up by.
func (c Chain) Key() string {
	return c.key
}

// Entries returns a copy of the levels, root first.
func (c Chain) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Labels returns the display labels, root first.
func (c Chain) Labels() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Label
	}
	return out
}

// Leaf returns the deepest entry.
func (c Chain) Leaf() Entry {
	if len(c.entries) == 0 {
		return Entry{}
	}
	return c.entries[len(c.entries)-1]
}

// Path joins the labels with " / ", for display.
func (c Chain) Path() string {
	return strings.Join(c.Labels(), " / ")
}

// ilcdCategory is the JSON shape of an ILCD <category level="n"> element.
type ilcdCategory struct {
	Level string `json:"@level"`
	Text  string `json:"#text"`
}

// FilterValue serializes the chain the way the elementary_flow_categorization
// column stores it: the ILCD category list rendered as JSON.
//
//	[{"@level":"0","#text":"Emissions"},{"@level":"1","#text":"Emissions to air"},...]
func (c Chain) FilterValue() string {
	cats := make([]ilcdCategory, len(c.entries))
	for i, e := range c.entries {
		cats[i] = ilcdCategory{Level: strconv.Itoa(e.Level), Text: e.Label}
	}
	b, _ := json.Marshal(cats)
	return string(b)
}

// MarshalJSON encodes the chain as its list of entries.
func (c Chain) MarshalJSON() ([]byte, error) {
	type entry struct {
		Label string `json:"label"`
		Level int    `json:"level"`
	}
	out := make([]entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = entry{Label: e.Label, Level: e.Level}
	}
	return json.Marshal(out)
}

// capitalize upper-cases the first letter of a label.
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
