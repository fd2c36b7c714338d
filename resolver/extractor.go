package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/category"
	"github.com/rickchristie/flowmap/logging"
	"github.com/rickchristie/flowmap/schema"
	"github.com/tmc/langchaingo/llms"
)

// ParseQueryTool is the function the extraction model is forced to call.
const ParseQueryTool = "parse_query"

// Extractor turns free text into a flowmap.ParsedQuery with one schema-constrained
// model call.
type Extractor struct {
	model  flowmap.Model
	schema *schema.Schema
	tool   llms.Tool
	log    logging.Logger
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*extractorConfig)

type extractorConfig struct {
	hierarchy *category.Hierarchy
	log       logging.Logger
}

// WithHierarchy sets the taxonomy whose leaves form the category vocabulary.
func WithHierarchy(h *category.Hierarchy) ExtractorOption {
	return func(c *extractorConfig) { c.hierarchy = h }
}

// WithExtractorLogger sets the logger.
func WithExtractorLogger(log logging.Logger) ExtractorOption {
	return func(c *extractorConfig) { c.log = log }
}

// NewExtractor creates an Extractor backed by model.
func NewExtractor(model flowmap.Model, opts ...ExtractorOption) *Extractor {
	cfg := extractorConfig{hierarchy: category.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	params := schema.Object(map[string]*schema.Property{
		"name": schema.String("The chemical substance name in English without any description."),
		"category": schema.String("The category of the substance. Leave it blank if not provided.").
			Enum(schema.StringEnum(cfg.hierarchy.ExtractionVocabulary())...),
	}, "name", "category")

	return &Extractor{
		model:  model,
		schema: schema.MustCompile(params),
		tool: llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        ParseQueryTool,
				Description: "Record the substance name and category extracted from the query.",
				Parameters:  params,
			},
		},
		log: logging.OrNop(cfg.log),
	}
}

// Extract parses text. Empty text, or text naming no substance, yields a query
// without a name. Model errors, timeouts and answers that do not conform to the
// schema are returned wrapped in flowmap.ErrExtractionFailed.
func (e *Extractor) Extract(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	text string,
) (flowmap.ParsedQuery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return flowmap.ParsedQuery{}, nil
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, extractSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, extractUserPrompt(text)),
	}

	resp, err := e.model.GenerateContent(ctx, execCtx, messages,
		llms.WithTools([]llms.Tool{e.tool}),
		llms.WithToolChoice(llms.ToolChoice{
			Type:     "function",
			Function: &llms.FunctionReference{Name: ParseQueryTool},
		}),
		llms.WithTemperature(0),
	)
	if err != nil {
		return flowmap.ParsedQuery{}, fmt.Errorf("%w: %w", flowmap.ErrExtractionFailed, err)
	}

	choice, err := resp.FirstChoice()
	if err != nil {
		return flowmap.ParsedQuery{}, fmt.Errorf("%w: %w", flowmap.ErrExtractionFailed, err)
	}

	payload, ok := choice.ToolArguments(ParseQueryTool)
	if !ok {
		content := strings.TrimSpace(choice.Content)
		switch {
		case len(choice.ToolCalls) > 0 || choice.FuncCall != nil:
			return flowmap.ParsedQuery{}, fmt.Errorf("%w: model called a tool other than %s",
				flowmap.ErrExtractionFailed, ParseQueryTool)
		case content == "":
			return flowmap.ParsedQuery{}, fmt.Errorf("%w: empty answer", flowmap.ErrExtractionFailed)
		case flowmap.IsNoneLiteral(content):
			e.log.Debug("no substance in query", logging.String("text", text))
			return flowmap.ParsedQuery{}, nil
		}
		payload = stripCodeFence(content)
	}

	args, err := e.schema.Decode([]byte(payload))
	if err != nil {
		return flowmap.ParsedQuery{}, fmt.Errorf("%w: %w", flowmap.ErrExtractionFailed, err)
	}

	name, _ := args["name"].(string)
	label, _ := args["category"].(string)
	return flowmap.NewParsedQuery(name, label), nil
}

// stripCodeFence removes a surrounding markdown code fence, which models add to
// JSON answers despite instructions.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
