package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/policy"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
)

// Registry holds tool definitions and their handlers.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]Tool
	handlers map[string]Handler
	policy   policy.Engine
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy gates every execution through the given policy engine.
func WithPolicy(e policy.Engine) Option {
	return func(r *Registry) { r.policy = e }
}

// WithTimeout bounds each tool execution.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) { r.timeout = d }
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger, opts ...Option) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		tools:    make(map[string]Tool),
		handlers: make(map[string]Handler),
		timeout:  30 * time.Second,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(tool Tool, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
	r.handlers[tool.Name] = h
}

// Tools returns the catalog sorted by name.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named tool. Unknown tools, policy denials and handler failures come
// back as ToolResult{Success: false}; only ErrUnrecoverable failures and fail-closed
// policy errors are returned as errors.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]interface{}) (ToolResult, error) {
	start := time.Now()
	caller := CallerFrom(ctx)

	ctx, span := tracing.StartSpan(ctx, "debate.tool",
		attribute.String("tool", name),
		attribute.String("agent_id", caller.AgentID),
	)
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	r.mu.RLock()
	h, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		metrics.RecordToolExecution(name, "unknown", 0)
		return ToolResult{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}, nil
	}

	if r.policy != nil {
		decision, err := r.policy.Evaluate(ctx, &policy.ToolInput{
			SessionID:  caller.SessionID,
			AgentID:    caller.AgentID,
			Phase:      caller.Phase,
			Tool:       name,
			Parameters: params,
		})
		if err != nil {
			spanErr = err
			metrics.RecordToolExecution(name, "policy_error", 0)
			return ToolResult{}, fmt.Errorf("%w: policy evaluation for %s: %v", ErrUnrecoverable, name, err)
		}
		if !decision.Allow {
			r.logger.Info("Tool call denied by policy",
				zap.String("tool", name),
				zap.String("agent_id", caller.AgentID),
				zap.String("reason", decision.Reason),
			)
			metrics.RecordToolExecution(name, "denied", 0)
			return ToolResult{Success: false, Error: "denied by policy: " + decision.Reason}, nil
		}
	}

	execCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	data, err := h(execCtx, params)
	elapsed := time.Since(start)
	result := ToolResult{Data: data, ExecutionTimeMs: elapsed.Milliseconds()}

	if err != nil {
		if errors.Is(err, ErrUnrecoverable) {
			spanErr = err
			metrics.RecordToolExecution(name, "fatal", elapsed.Seconds())
			return result, err
		}
		r.logger.Debug("Tool execution failed", zap.String("tool", name), zap.Error(err))
		result.Error = err.Error()
		metrics.RecordToolExecution(name, "failure", elapsed.Seconds())
		return result, nil
	}

	result.Success = true
	metrics.RecordToolExecution(name, "success", elapsed.Seconds())
	return result, nil
}
