package flowmap

import (
	"encoding/json"
	"strings"
)

// NoneLiteral is the literal a model answers with when it found nothing.
const NoneLiteral = "None"

// IsNoneLiteral reports whether s is an answer meaning "nothing found".
// Matching is case-insensitive and ignores surrounding whitespace and a trailing period.
func IsNoneLiteral(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, ".")
	return s == "" || strings.EqualFold(s, NoneLiteral) || strings.EqualFold(s, "null")
}

// -----------------------------------------------------------------------------
// ParsedQuery
// -----------------------------------------------------------------------------

// ParsedQuery is the structured form of a free-text query.
//
// An empty Name means no substance name could be extracted. Category is either
// empty or one of the fixed leaf labels of the category taxonomy.
type ParsedQuery struct {
	Name     string `json:"name" yaml:"name"`
	Category string `json:"category" yaml:"category"`
}

// NewParsedQuery builds a ParsedQuery, mapping the "None" literal to the empty name.
func NewParsedQuery(name, category string) ParsedQuery {
	name = strings.TrimSpace(name)
	if IsNoneLiteral(name) {
		name = ""
	}
	return ParsedQuery{Name: name, Category: strings.TrimSpace(category)}
}

// Found reports whether a substance name was extracted.
func (q ParsedQuery) Found() bool {
	return q.Name != ""
}

// -----------------------------------------------------------------------------
// SynonymSet
// -----------------------------------------------------------------------------

// SynonymSet is an ordered list of at most MaxSynonyms alternative names for one
// substance. The first entry is the primary name. The zero value is the "none" set.
type SynonymSet struct {
	names []string
}

// NoSynonyms is the explicit "none" synonym set.
var NoSynonyms = SynonymSet{}

// NewSynonymSet builds a set from names in priority order. Blank entries and
// "None" literals are dropped, duplicates are removed case-insensitively keeping
// the first occurrence, and the result is capped at MaxSynonyms.
func NewSynonymSet(names ...string) SynonymSet {
	out := make([]string, 0, MaxSynonyms)
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if IsNoneLiteral(n) {
			continue
		}
		key := strings.ToLower(n)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, n)
		if len(out) == MaxSynonyms {
			break
		}
	}
	if len(out) == 0 {
		return NoSynonyms
	}
	return SynonymSet{names: out}
}

// Found reports whether the set holds at least one name.
func (s SynonymSet) Found() bool {
	return len(s.names) > 0
}

// Len returns the number of names in the set.
func (s SynonymSet) Len() int {
	return len(s.names)
}

// Primary returns the first name, or "" for the none set.
func (s SynonymSet) Primary() string {
	if len(s.names) == 0 {
		return ""
	}
	return s.names[0]
}

// Names returns a copy of the names in priority order.
func (s SynonymSet) Names() []string {
	if len(s.names) == 0 {
		return nil
	}
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Contains reports whether name is in the set, ignoring case.
func (s SynonymSet) Contains(name string) bool {
	for _, n := range s.names {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func (s SynonymSet) String() string {
	if !s.Found() {
		return NoneLiteral
	}
	return strings.Join(s.names, ", ")
}

// MarshalJSON encodes the set as a list of names, or null for the none set.
func (s SynonymSet) MarshalJSON() ([]byte, error) {
	if !s.Found() {
		return []byte("null"), nil
	}
	return json.Marshal(s.names)
}

// UnmarshalJSON decodes a list of names. null yields the none set.
func (s *SynonymSet) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	*s = NewSynonymSet(names...)
	return nil
}

// MarshalYAML encodes the set as a list of names, or null for the none set.
func (s SynonymSet) MarshalYAML() (any, error) {
	if !s.Found() {
		return nil, nil
	}
	return s.names, nil
}

// -----------------------------------------------------------------------------
// CASNumber
// -----------------------------------------------------------------------------

// CASNumber is an optional CAS registry number.
//
// When present it holds exactly CASLength ASCII digits, left-padded with zeros
// (water, 7732-18-5, is "00007732185"). The zero value is the "none" number.
type CASNumber struct {
	digits string
}

// NoCAS is the explicit "none" CAS number.
var NoCAS = CASNumber{}

// NormalizeCAS strips every non-digit from raw and left-pads the remainder with
// zeros to CASLength digits. Input with no digits, only zeros, or more than
// CASLength digits yields NoCAS.
func NormalizeCAS(raw string) CASNumber {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) == 0 || len(digits) > CASLength {
		return NoCAS
	}
	if strings.Trim(digits, "0") == "" {
		return NoCAS
	}
	return CASNumber{digits: strings.Repeat("0", CASLength-len(digits)) + digits}
}

// Found reports whether a number is present.
func (c CASNumber) Found() bool {
	return c.digits != ""
}

// Digits returns the zero-padded digit string, or "" for NoCAS.
func (c CASNumber) Digits() string {
	return c.digits
}

// String returns the digit string, or "None".
func (c CASNumber) String() string {
	if !c.Found() {
		return NoneLiteral
	}
	return c.digits
}

// Formatted returns the hyphenated registry form without padding, e.g. "7732-18-5".
func (c CASNumber) Formatted() string {
	if !c.Found() {
		return ""
	}
	d := strings.TrimLeft(c.digits, "0")
	for len(d) < 5 {
		d = "0" + d
	}
	return d[:len(d)-3] + "-" + d[len(d)-3:len(d)-1] + "-" + d[len(d)-1:]
}

// ValidCheckDigit reports whether the last digit is the CAS checksum of the others:
// the sum of each preceding digit times its position counted from the right,
// modulo 10.
func (c CASNumber) ValidCheckDigit() bool {
	if !c.Found() {
		return false
	}
	body := c.digits[:len(c.digits)-1]
	check := int(c.digits[len(c.digits)-1] - '0')
	sum := 0
	for i := 0; i < len(body); i++ {
		d := int(body[len(body)-1-i] - '0')
		sum += d * (i + 1)
	}
	return sum%10 == check
}

// MarshalJSON encodes the digit string, or null for NoCAS.
func (c CASNumber) MarshalJSON() ([]byte, error) {
	if !c.Found() {
		return []byte("null"), nil
	}
	return json.Marshal(c.digits)
}

// UnmarshalJSON accepts any string NormalizeCAS accepts. null yields NoCAS.
func (c *CASNumber) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*c = NoCAS
		return nil
	}
	*c = NormalizeCAS(*raw)
	return nil
}

// MarshalYAML encodes the digit string, or null for NoCAS.
func (c CASNumber) MarshalYAML() (any, error) {
	if !c.Found() {
		return nil, nil
	}
	return c.digits, nil
}

// -----------------------------------------------------------------------------
// Flow records
// -----------------------------------------------------------------------------

// FlowRecord is the fixed projection of a flow row returned to callers.
type FlowRecord struct {
	BaseName                     string `json:"base_name" yaml:"base_name"`
	ElementaryFlowCategorization string `json:"elementary_flow_categorization" yaml:"elementary_flow_categorization"`
	CASNumber                    string `json:"cas_number" yaml:"cas_number"`
	UUID                         string `json:"uuid" yaml:"uuid"`
}

// MatchPath names the database path a flow resolution took.
type MatchPath string

const (
	// PathExact filters on both CAS number and category chain.
	PathExact MatchPath = "exact"
	// PathCASOnly filters on CAS number alone because the category had no chain.
	PathCASOnly MatchPath = "cas_only"
	// PathFuzzy runs full-text search over synonym and category text.
	PathFuzzy MatchPath = "fuzzy"
	// PathSkipped means there was nothing to search for.
	PathSkipped MatchPath = "skipped"
)

// ResolutionResult is the output of one pipeline run: the ranked flows plus the
// intermediate values each stage produced.
type ResolutionResult struct {
	RunID    string       `json:"run_id" yaml:"run_id"`
	Text     string       `json:"text" yaml:"text"`
	Query    ParsedQuery  `json:"query" yaml:"query"`
	Synonyms SynonymSet   `json:"synonyms" yaml:"synonyms"`
	CAS      CASNumber    `json:"cas" yaml:"cas"`
	Path     MatchPath    `json:"path" yaml:"path"`
	Flows    []FlowRecord `json:"flows" yaml:"flows"`
}
