// Package toolchain exposes flowmap tools to a model through its native
// function-calling interface and executes the tool calls the model returns.
//
//	chain := toolchain.New()
//	if err := chain.RegisterTool(search); err != nil {
//	    return err
//	}
//	resp, err := model.GenerateContent(ctx, execCtx, messages, llms.WithTools(chain.Definitions()))
//	...
//	for _, r := range chain.Execute(ctx, execCtx, choice.ToolCalls) {
//	    messages = append(messages, r.Message())
//	}
package toolchain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rickchristie/flowmap"
	"github.com/rickchristie/flowmap/schema"
	"github.com/tmc/langchaingo/llms"
)

// Native is a registry of tools offered to a model as function tools.
type Native struct {
	tools     []flowmap.Invoker
	toolMap   map[string]flowmap.Invoker
	schemaMap map[string]*schema.Schema // compiled schemas for validation
}

// New creates an empty Native toolchain.
func New() *Native {
	return &Native{
		tools:     make([]flowmap.Invoker, 0),
		toolMap:   make(map[string]flowmap.Invoker),
		schemaMap: make(map[string]*schema.Schema),
	}
}

// RegisterTool adds a tool. Its parameter schema is compiled so arguments can be
// validated before the tool runs. Wrap a custom flowmap.Tool with flowmap.Erase.
func (c *Native) RegisterTool(tool flowmap.Invoker) error {
	if tool == nil || tool.Name() == "" {
		return flowmap.ErrMissingToolName
	}
	name := tool.Name()
	if _, dup := c.toolMap[name]; dup {
		return fmt.Errorf("tool %q already registered", name)
	}

	if rawSchema := tool.ParameterSchema(); rawSchema != nil {
		compiled, err := schema.Compile(rawSchema)
		if err != nil {
			return fmt.Errorf("tool %q: %w", name, err)
		}
		c.schemaMap[name] = compiled
	}

	c.tools = append(c.tools, tool)
	c.toolMap[name] = tool
	return nil
}

// Len returns the number of registered tools.
func (c *Native) Len() int {
	return len(c.tools)
}

// Definitions returns the registered tools in the form passed to llms.WithTools.
func (c *Native) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(c.tools))
	for _, tool := range c.tools {
		params := tool.ParameterSchema()
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        tool.Name(),
				Description: tool.Description(),
				Parameters:  params,
			},
		})
	}
	return defs
}

// Result is the outcome of executing one tool call.
type Result struct {
	Call llms.ToolCall

	// Output is the tool's raw typed output. Nil when Err is set.
	Output any

	// Content is the text returned to the model: the formatted output, or the
	// error message so the model can correct itself.
	Content string

	Err error
}

// Message returns the tool-role message that answers the call.
func (r Result) Message() llms.MessageContent {
	name := ""
	if r.Call.FunctionCall != nil {
		name = r.Call.FunctionCall.Name
	}
	return llms.MessageContent{
		Role: llms.ChatMessageTypeTool,
		Parts: []llms.ContentPart{
			llms.ToolCallResponse{
				ToolCallID: r.Call.ID,
				Name:       name,
				Content:    r.Content,
			},
		},
	}
}

// Execute runs every call in order. Failures are reported per call and never
// abort the remaining calls.
func (c *Native) Execute(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	calls []llms.ToolCall,
) []Result {
	results := make([]Result, len(calls))
	for i, call := range calls {
		results[i] = c.executeOne(ctx, execCtx, call)
	}
	return results
}

func (c *Native) executeOne(
	ctx context.Context,
	execCtx *flowmap.ExecutionContext,
	call llms.ToolCall,
) Result {
	result := Result{Call: call}

	fail := func(err error, input any) Result {
		result.Err = err
		result.Content = "error: " + err.Error()
		if execCtx != nil {
			execCtx.Trace(flowmap.ToolCallTrace{
				ToolName: toolName(call),
				CallID:   call.ID,
				Input:    input,
				Error:    err,
			})
		}
		return result
	}

	if call.FunctionCall == nil || call.FunctionCall.Name == "" {
		return fail(flowmap.ErrMissingToolName, nil)
	}

	tool, ok := c.toolMap[call.FunctionCall.Name]
	if !ok {
		return fail(fmt.Errorf("%w: %s", flowmap.ErrUnknownTool, call.FunctionCall.Name), nil)
	}

	var args map[string]any
	if compiled, hasSchema := c.schemaMap[tool.Name()]; hasSchema {
		decoded, err := compiled.Decode([]byte(call.FunctionCall.Arguments))
		if err != nil {
			return fail(fmt.Errorf("%w: %v", flowmap.ErrInvalidToolArgs, err), call.FunctionCall.Arguments)
		}
		args = decoded
	} else if call.FunctionCall.Arguments != "" {
		if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil {
			return fail(fmt.Errorf("%w: %v", flowmap.ErrInvalidJSON, err), call.FunctionCall.Arguments)
		}
	}

	input, err := tool.Decode(args)
	if err != nil {
		return fail(err, args)
	}

	startTime := time.Now()
	output, err := tool.Invoke(ctx, input)
	duration := time.Since(startTime)

	if err != nil {
		result.Err = err
		result.Content = "error: " + err.Error()
	} else {
		result.Output = output
		result.Content = formatOutput(output)
	}

	if execCtx != nil {
		execCtx.Trace(flowmap.ToolCallTrace{
			ToolName: tool.Name(),
			CallID:   call.ID,
			Input:    input,
			Output:   output,
			Duration: duration,
			Error:    err,
		})
	}

	return result
}

func toolName(call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return ""
	}
	return call.FunctionCall.Name
}

// formatOutput renders tool output for the model. Strings pass through as-is,
// anything else is encoded as JSON.
func formatOutput(output any) string {
	switch v := output.(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	}
	b, err := json.Marshal(output)
	if err != nil {
		return fmt.Sprintf("%v", output)
	}
	return string(b)
}

// AssistantMessage rebuilds the assistant turn that requested calls, so it can be
// placed before the tool responses in the next request.
func AssistantMessage(content string, calls []llms.ToolCall) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(calls)+1)
	if content != "" {
		parts = append(parts, llms.TextContent{Text: content})
	}
	for _, call := range calls {
		parts = append(parts, call)
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}
