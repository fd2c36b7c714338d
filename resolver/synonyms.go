package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
	"github.com/rickchristie/flowmap/schema"
	"github.com/rickchristie/flowmap/toolchain"
	"github.com/tmc/langchaingo/llms"
)

// SearchInternetTool is the name under which web search is offered to the model.
const SearchInternetTool = "search_internet"

// DefaultMaxRounds bounds the tool-calling rounds of one expansion.
const DefaultMaxRounds = 4

var synonymsSchema = schema.MustCompile(schema.Object(map[string]*schema.Property{
	"synonyms": schema.Array("English synonyms of the substance", map[string]any{"type": "string"}),
}, "synonyms"))

// SynonymExpander asks a model, optionally equipped with search tools, for
// alternative names of a substance.
type SynonymExpander struct {
	model     flowmap.Model
	tools     *toolchain.Native
	maxRounds int
	log       logging.Logger
}

// SynonymOption configures a SynonymExpander.
type SynonymOption func(*SynonymExpander) error

// WithTool offers a flowmap.Tool to the model during expansion.
func WithTool(tool flowmap.Invoker) SynonymOption {
	return func(s *SynonymExpander) error {
		return s.tools.RegisterTool(tool)
	}
}

// WithMaxRounds sets how many model calls one expansion may make.
func WithMaxRounds(n int) SynonymOption {
	return func(s *SynonymExpander) error {
		if n < 1 {
			return fmt.Errorf("%w: max rounds must be positive", flowmap.ErrInvalidConfig)
		}
		s.maxRounds = n
		return nil
	}
}

// WithSynonymLogger sets the logger.
func WithSynonymLogger(log logging.Logger) SynonymOption {
	return func(s *SynonymExpander) error {
		s.log = logging.OrNop(log)
		return nil
	}
}

// NewSynonymExpander creates a SynonymExpander backed by model.
func NewSynonymExpander(model flowmap.Model, opts ...SynonymOption) (*SynonymExpander, error) {
	s := &SynonymExpander{
		model:     model,
		tools:     toolchain.New(),
		maxRounds: DefaultMaxRounds,
		log:       logging.NewNop(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Expand returns up to flowmap.MaxSynonyms names for q, the extracted name
// first. A query without a name, a "None" answer and a deadline expiry all
// yield flowmap.NoSynonyms. Model errors and malformed answers are wrapped in
// flowmap.ErrExpansionFailed.
func (s *SynonymExpander) Expand(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	q flowmap.ParsedQuery,
) (flowmap.SynonymSet, error) {
	if !q.Found() {
		return flowmap.NoSynonyms, nil
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, synonymsSystemPrompt),
		llms.TextParts(llms.ChatMessageTypeHuman, synonymsUserPrompt(q.Name, flowmap.MaxSynonyms)),
	}
	opts := []llms.CallOption{llms.WithTemperature(0)}
	if s.tools.Len() > 0 {
		opts = append(opts, llms.WithTools(s.tools.Definitions()))
	}

	for round := 0; round < s.maxRounds; round++ {
		resp, err := s.model.GenerateContent(ctx, execCtx, messages, opts...)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				s.log.Info("synonym expansion timed out, treating as none",
					logging.String("name", q.Name))
				return flowmap.NoSynonyms, nil
			}
			return flowmap.NoSynonyms, fmt.Errorf("%w: %w", flowmap.ErrExpansionFailed, err)
		}

		choice, err := resp.FirstChoice()
		if err != nil {
			return flowmap.NoSynonyms, fmt.Errorf("%w: %w", flowmap.ErrExpansionFailed, err)
		}

		if len(choice.ToolCalls) > 0 {
			messages = append(messages, toolchain.AssistantMessage(choice.Content, choice.ToolCalls))
			for _, result := range s.tools.Execute(ctx, execCtx, choice.ToolCalls) {
				if result.Err != nil {
					s.log.Debug("synonym tool call failed",
						logging.String("call_id", result.Call.ID), logging.Err(result.Err))
				}
				messages = append(messages, result.Message())
			}
			continue
		}

		names, err := parseSynonyms(choice.Content)
		if err != nil {
			return flowmap.NoSynonyms, fmt.Errorf("%w: %w", flowmap.ErrExpansionFailed, err)
		}
		if len(names) == 0 {
			return flowmap.NoSynonyms, nil
		}
		return flowmap.NewSynonymSet(append([]string{q.Name}, names...)...), nil
	}

	return flowmap.NoSynonyms, fmt.Errorf("%w: no answer after %d rounds",
		flowmap.ErrExpansionFailed, s.maxRounds)
}

// parseSynonyms reads a synonym answer. It accepts the "None" literal, a JSON
// object with a "synonyms" list, or a bare JSON list of names.
func parseSynonyms(content string) ([]string, error) {
	if flowmap.IsNoneLiteral(content) {
		return nil, nil
	}
	payload := []byte(stripCodeFence(content))

	var list []string
	if err := json.Unmarshal(payload, &list); err == nil {
		return dropNone(list), nil
	}

	obj, err := synonymsSchema.Decode(payload)
	if err != nil {
		return nil, err
	}
	raw, _ := obj["synonyms"].([]any)
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		if name, ok := v.(string); ok {
			names = append(names, name)
		}
	}
	return dropNone(names), nil
}

// dropNone removes blank entries and "None" literals from names.
func dropNone(names []string) []string {
	out := names[:0]
	for _, n := range names {
		if !flowmap.IsNoneLiteral(n) {
			out = append(out, n)
		}
	}
	return out
}
