package models

import (
	"context"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/logging"
	"github.com/tmc/langchaingo/llms"
)

// LCGWrapper adapts a LangChainGo llms.Model to flowmap.Model: token usage is
// read from whichever keys the provider reports, and every call is traced into
// the ExecutionContext when one is given.
//
//	llm, _ := openai.New(openai.WithToken(apiKey))
//	model := models.NewLCGWrapper(llm).WithModelName(flowmap.ModelOpenAIGPT4oMini)
type LCGWrapper struct {
	model llms.Model
	name  string
	log   logging.Logger
}

// NewLCGWrapper wraps model.
func NewLCGWrapper(model llms.Model) *LCGWrapper {
	return &LCGWrapper{model: model, log: logging.NewNop()}
}

// WithModelName sets the name recorded in traces and logs.
func (m *LCGWrapper) WithModelName(name string) *LCGWrapper {
	m.name = name
	return m
}

// WithLogger sets the logger. Calls are logged at debug level.
func (m *LCGWrapper) WithLogger(log logging.Logger) *LCGWrapper {
	m.log = logging.OrNop(log)
	return m
}

// ModelName returns the name recorded in traces.
func (m *LCGWrapper) ModelName() string {
	return m.name
}

// Unwrap returns the wrapped llms.Model.
func (m *LCGWrapper) Unwrap() llms.Model {
	return m.model
}

// GenerateContent implements flowmap.Model.
func (m *LCGWrapper) GenerateContent(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	messages []llms.MessageContent,
	options ...llms.CallOption,
) (*flowmap.ContentResponse, error) {
	start := time.Now()
	raw, err := m.model.GenerateContent(ctx, messages, options...)
	elapsed := time.Since(start)

	var resp *flowmap.ContentResponse
	if raw != nil {
		resp = fromLangChain(raw, elapsed)
	}

	trace := flowmap.ModelCallTrace{
		Model:    m.name,
		Request:  messages,
		Response: resp,
		Duration: elapsed,
		Error:    err,
	}
	if resp != nil {
		trace.InputTokens = resp.Info.InputTokens
		trace.OutputTokens = resp.Info.OutputTokens
	}
	if execCtx != nil {
		execCtx.Trace(trace)
	}

	if err != nil {
		m.log.Debug("model call failed",
			logging.String("model", m.name),
			logging.Duration("duration", elapsed),
			logging.Err(err))
		return nil, err
	}
	m.log.Debug("model call",
		logging.String("model", m.name),
		logging.Int("input_tokens", trace.InputTokens),
		logging.Int("output_tokens", trace.OutputTokens),
		logging.Duration("duration", elapsed))
	return resp, nil
}

func fromLangChain(raw *llms.ContentResponse, elapsed time.Duration) *flowmap.ContentResponse {
	resp := &flowmap.ContentResponse{
		Choices: make([]*flowmap.ContentChoice, 0, len(raw.Choices)),
		Info:    &flowmap.GenerationInfo{Duration: elapsed},
	}
	for _, c := range raw.Choices {
		resp.Choices = append(resp.Choices, &flowmap.ContentChoice{
			Content:          c.Content,
			StopReason:       c.StopReason,
			FuncCall:         c.FuncCall,
			ToolCalls:        c.ToolCalls,
			ReasoningContent: c.ReasoningContent,
		})
	}

	if len(raw.Choices) == 0 || raw.Choices[0].GenerationInfo == nil {
		return resp
	}
	info := raw.Choices[0].GenerationInfo
	resp.Info.RawGenerationInfo = info
	resp.Info.InputTokens = usage(info, inputKeys)
	resp.Info.OutputTokens = usage(info, outputKeys)
	resp.Info.TotalTokens = usage(info, totalKeys)
	if resp.Info.TotalTokens == 0 {
		resp.Info.TotalTokens = resp.Info.InputTokens + resp.Info.OutputTokens
	}
	resp.Info.CachedInputTokens = usage(info, cachedKeys)
	resp.Info.ReasoningTokens = usage(info, reasoningKeys)
	return resp
}

// GenerationInfo keys per usage figure, in lookup order. OpenAI-compatible
// providers come first, then Anthropic, then Google and Bedrock.
var (
	inputKeys     = []string{"PromptTokens", "InputTokens", "input_tokens"}
	outputKeys    = []string{"CompletionTokens", "OutputTokens", "output_tokens"}
	totalKeys     = []string{"TotalTokens", "total_tokens"}
	cachedKeys    = []string{"PromptCachedTokens", "CacheReadInputTokens", "CachedTokens"}
	reasoningKeys = []string{"ReasoningTokens", "CompletionReasoningTokens", "ThinkingTokens"}
)

// usage returns the first positive count stored under one of keys.
func usage(info map[string]any, keys []string) int {
	for _, key := range keys {
		if n := toInt(info[key]); n > 0 {
			return n
		}
	}
	return 0
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

var _ flowmap.Model = (*LCGWrapper)(nil)
