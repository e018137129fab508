package tools

import (
	"context"
	"errors"
)

// ErrUnrecoverable marks a tool failure that must abort the session instead of being
// reported back to the model as a failed result.
var ErrUnrecoverable = errors.New("unrecoverable tool failure")

// Tool describes an invocable tool as shown to agents.
type Tool struct {
	Name            string                 `json:"name" yaml:"name"`
	Description     string                 `json:"description" yaml:"description"`
	ParameterSchema map[string]interface{} `json:"parameters,omitempty" yaml:"parameters,omitempty"`
}

// ToolResult is the outcome of one execution. Success=false results are evidence, not errors.
type ToolResult struct {
	Success         bool        `json:"success"`
	Data            interface{} `json:"data,omitempty"`
	Error           string      `json:"error,omitempty"`
	ExecutionTimeMs int64       `json:"executionTimeMs"`
}

// Request is a tool invocation requested by a model.
type Request struct {
	Tool       string                 `json:"tool"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Call pairs a request with its result.
type Call struct {
	AgentID string     `json:"agentId,omitempty"`
	Round   int        `json:"round,omitempty"`
	Request Request    `json:"request"`
	Result  ToolResult `json:"result"`
}

// Executor runs tools by name. A non-nil error means the failure is unrecoverable.
type Executor interface {
	Execute(ctx context.Context, name string, params map[string]interface{}) (ToolResult, error)
}

// Handler implements a single tool.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

type callerKey struct{}

// Caller identifies who is invoking a tool; it is passed to the policy engine.
type Caller struct {
	SessionID string
	AgentID   string
	Phase     string
}

// WithCaller attaches caller identity to ctx.
func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, c)
}

// CallerFrom returns the caller attached to ctx, if any.
func CallerFrom(ctx context.Context) Caller {
	c, _ := ctx.Value(callerKey{}).(Caller)
	return c
}
