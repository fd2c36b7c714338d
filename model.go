package flowmap

import (
	"context"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// Model is the generation capability behind query extraction and synonym
// expansion. Implementations trace each call into execCtx when it is non-nil.
type Model interface {
	GenerateContent(
		ctx context.Context,
		execCtx *ExecutionContext,
		messages []llms.MessageContent,
		options ...llms.CallOption,
	) (*ContentResponse, error)
}

// ContentResponse is one model answer with provider-neutral usage figures.
type ContentResponse struct {
	Choices []*ContentChoice
	Info    *GenerationInfo
}

// ContentChoice is one candidate answer. A model asking for tools sets
// ToolCalls; older function-calling providers set FuncCall instead.
type ContentChoice struct {
	Content          string
	StopReason       string
	FuncCall         *llms.FunctionCall
	ToolCalls        []llms.ToolCall
	ReasoningContent string
}

// ToolArguments returns the raw JSON arguments the choice passed to the named
// tool, looking at ToolCalls first and FuncCall second.
func (c *ContentChoice) ToolArguments(name string) (string, bool) {
	for _, call := range c.ToolCalls {
		if call.FunctionCall != nil && call.FunctionCall.Name == name {
			return call.FunctionCall.Arguments, true
		}
	}
	if c.FuncCall != nil && c.FuncCall.Name == name {
		return c.FuncCall.Arguments, true
	}
	return "", false
}

// GenerationInfo holds token usage normalized across providers. TotalTokens is
// InputTokens+OutputTokens when the provider does not report it.
type GenerationInfo struct {
	InputTokens       int
	OutputTokens      int
	TotalTokens       int
	CachedInputTokens int
	ReasoningTokens   int

	// RawGenerationInfo is the provider map the figures were read from.
	RawGenerationInfo map[string]any

	Duration time.Duration
}

// FirstChoice returns the first choice, or ErrNoChoices for an empty response.
func (r *ContentResponse) FirstChoice() (*ContentChoice, error) {
	if r == nil || len(r.Choices) == 0 || r.Choices[0] == nil {
		return nil, ErrNoChoices
	}
	return r.Choices[0], nil
}
