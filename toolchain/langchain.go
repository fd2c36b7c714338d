package toolchain

import (
	"context"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/schema"
	"github.com/tmc/langchaingo/tools"
)

// TextQuery is the input of a tool that takes a single free-text query.
type TextQuery struct {
	Query string `json:"query" description:"The search query" minLength:"1"`
}

// FromLangChain adapts a LangChainGo text tool (web search, Wikipedia, ...) into a
// flowmap tool. name replaces the LangChainGo name, which may contain characters
// function-calling APIs reject.
func FromLangChain(name string, t tools.Tool) *flowmap.ToolFunc[TextQuery, string] {
	return flowmap.NewToolFunc(
		name,
		t.Description(),
		schema.For[TextQuery](),
		func(ctx context.Context, in TextQuery) (string, error) {
			return t.Call(ctx, in.Query)
		},
	)
}
