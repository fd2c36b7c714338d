package category

import "fmt"

// Hierarchy indexes a fixed set of category chains by leaf label. It is immutable
// after construction and safe for concurrent use.
type Hierarchy struct {
	chains []Chain
	index  map[string]int
}

// New builds a Hierarchy from the built-in ILCD taxonomy.
func New() *Hierarchy {
	h, err := build(taxonomy)
	if err != nil {
		panic(err)
	}
	return h
}

func build(groups []group) (*Hierarchy, error) {
	h := &Hierarchy{index: make(map[string]int)}
	for _, g := range groups {
		for _, key := range g.leaves {
			chain := Chain{
				key: key,
				entries: []Entry{
					{Label: g.root, Level: 0},
					{Label: g.label, Level: 1},
					{Label: capitalize(key), Level: 2},
				},
			}
			if err := h.add(chain); err != nil {
				return nil, err
			}
		}
	}
	return h, nil
}

// add indexes a chain under its key and its leaf display label. Both must be
// unique across the hierarchy.
func (h *Hierarchy) add(chain Chain) error {
	i := len(h.chains)
	for _, k := range []string{chain.key, chain.Leaf().Label} {
		if prev, dup := h.index[k]; dup && prev != i {
			return fmt.Errorf("category: duplicate leaf label %q", k)
		}
		h.index[k] = i
	}
	h.chains = append(h.chains, chain)
	return nil
}

// Resolve returns the chain whose leaf matches label exactly. label may be the
// lower-case key or the capitalized display label; no other normalization is
// applied, so matching is case-sensitive. The empty label and unknown labels are
// not found.
func (h *Hierarchy) Resolve(label string) (Chain, bool) {
	if label == "" {
		return Chain{}, false
	}
	i, ok := h.index[label]
	if !ok {
		return Chain{}, false
	}
	return h.chains[i], true
}

// Keys returns every leaf key in taxonomy order.
func (h *Hierarchy) Keys() []string {
	out := make([]string, len(h.chains))
	for i, c := range h.chains {
		out[i] = c.key
	}
	return out
}

// Chains returns every chain in taxonomy order.
func (h *Hierarchy) Chains() []Chain {
	out := make([]Chain, len(h.chains))
	copy(out, h.chains)
	return out
}

// ExtractionVocabulary returns the allowed values of the extraction schema's
// category field: the empty string followed by every leaf key.
func (h *Hierarchy) ExtractionVocabulary() []string {
	return append([]string{""}, h.Keys()...)
}

var defaultHierarchy = New()

// Default returns the built-in hierarchy.
func Default() *Hierarchy {
	return defaultHierarchy
}

// Resolve looks label up in the built-in hierarchy.
func Resolve(label string) (Chain, bool) {
	return defaultHierarchy.Resolve(label)
}
