package flowmap

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is a capability a model may call while a stage runs, such as the web
// search offered during synonym expansion. Tools hold business logic only;
// argument validation and output rendering live in the toolchain package.
type Tool[I, O any] interface {
	Name() string
	Description() string

	// ParameterSchema is the JSON Schema of I, or nil when the tool takes no
	// arguments.
	ParameterSchema() map[string]any

	Call(ctx context.Context, input I) (*ToolResult[O], error)
}

// ToolResult wraps a tool's typed output.
type ToolResult[O any] struct {
	Output O
}

// Invoker is a Tool with its input and output types erased, which is the form
// a toolchain registers and executes.
type Invoker interface {
	Name() string
	Description() string
	ParameterSchema() map[string]any

	// Decode converts model-supplied arguments into the tool's input value.
	Decode(args map[string]any) (any, error)

	// Invoke calls the tool with a value previously returned by Decode.
	Invoke(ctx context.Context, input any) (any, error)
}

// Erase adapts any Tool to an Invoker. ToolFunc values are already Invokers.
func Erase[I, O any](tool Tool[I, O]) Invoker {
	return erased[I, O]{tool}
}

type erased[I, O any] struct {
	Tool[I, O]
}

func (e erased[I, O]) Decode(args map[string]any) (any, error) {
	return decodeArgs[I](args)
}

func (e erased[I, O]) Invoke(ctx context.Context, input any) (any, error) {
	return invoke(ctx, e.Tool.Call, input)
}

// ToolFunc is a Tool backed by a plain function.
type ToolFunc[I, O any] struct {
	name        string
	description string
	schema      map[string]any
	fn          func(ctx context.Context, input I) (O, error)
}

func NewToolFunc[I, O any](
	name, description string,
	schema map[string]any,
	fn func(ctx context.Context, input I) (O, error),
) *ToolFunc[I, O] {
	return &ToolFunc[I, O]{name: name, description: description, schema: schema, fn: fn}
}

func (t *ToolFunc[I, O]) Name() string                    { return t.name }
func (t *ToolFunc[I, O]) Description() string             { return t.description }
func (t *ToolFunc[I, O]) ParameterSchema() map[string]any { return t.schema }

func (t *ToolFunc[I, O]) Call(ctx context.Context, input I) (*ToolResult[O], error) {
	out, err := t.fn(ctx, input)
	if err != nil {
		return nil, err
	}
	return &ToolResult[O]{Output: out}, nil
}

func (t *ToolFunc[I, O]) Decode(args map[string]any) (any, error) {
	return decodeArgs[I](args)
}

func (t *ToolFunc[I, O]) Invoke(ctx context.Context, input any) (any, error) {
	return invoke(ctx, t.Call, input)
}

// decodeArgs moves args into I through encoding/json so struct tags apply.
func decodeArgs[I any](args map[string]any) (any, error) {
	var in I
	if args == nil {
		return in, nil
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToolArgs, err)
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToolArgs, err)
	}
	return in, nil
}

func invoke[I, O any](
	ctx context.Context,
	call func(context.Context, I) (*ToolResult[O], error),
	input any,
) (any, error) {
	in, ok := input.(I)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", ErrInvalidToolArgs, input)
	}
	res, err := call(ctx, in)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, ErrNilToolResult
	}
	return res.Output, nil
}

var _ Invoker = (*ToolFunc[struct{}, string])(nil)
