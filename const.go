package flowmap

import "time"

// Stage names one step of a resolution run.
type Stage string

const (
	StageExtract  Stage = "extract"
	StageSynonyms Stage = "synonyms"
	StageCAS      Stage = "cas"
	StageFlows    Stage = "flows"
)

// Stages lists the stages in execution order.
var Stages = []Stage{StageExtract, StageSynonyms, StageCAS, StageFlows}

const (
	// CASLength is the number of digits in a normalized CAS number.
	CASLength = 11

	// MaxSynonyms caps the size of a SynonymSet.
	MaxSynonyms = 5

	// DefaultTopN is the number of flows returned by the default entry point.
	DefaultTopN = 5

	// CompactTopN is the number of flows returned by the compact entry point.
	CompactTopN = 3
)

// Default per-stage timeouts.
const (
	DefaultExtractTimeout  = 60 * time.Second
	DefaultSynonymsTimeout = 120 * time.Second
	DefaultCASTimeout      = 15 * time.Second
	DefaultFlowsTimeout    = 30 * time.Second
)

// =============================================================================
// OpenAI Models
// https://platform.openai.com/docs/models/
// =============================================================================

const (
	ModelOpenAIGPT41     = "gpt-4.1"
	ModelOpenAIGPT41Mini = "gpt-4.1-mini"
	ModelOpenAIGPT4o     = "gpt-4o"
	ModelOpenAIGPT4oMini = "gpt-4o-mini"
	ModelOpenAIO4Mini    = "o4-mini"
)

// DefaultModel is used when no model is configured.
const DefaultModel = ModelOpenAIGPT4oMini
