package agents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Fallback tries each capability in order and returns the first success.
type Fallback struct {
	chain  []Capability
	names  []string
	logger *zap.Logger
}

// NewFallback builds a chain; names label log lines and must match chain in length.
func NewFallback(chain []Capability, names []string, logger *zap.Logger) (*Fallback, error) {
	if len(chain) == 0 {
		return nil, fmt.Errorf("fallback chain is empty")
	}
	if len(names) != len(chain) {
		return nil, fmt.Errorf("fallback chain has %d capabilities but %d names", len(chain), len(names))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fallback{chain: chain, names: names, logger: logger}, nil
}

func (f *Fallback) GenerateInitialPosition(ctx context.Context, topic string, dctx DebateContext) (*DebateResponse, error) {
	return f.try(ctx, dctx, func(c Capability) (*DebateResponse, error) {
		return c.GenerateInitialPosition(ctx, topic, dctx)
	})
}

func (f *Fallback) GenerateDebateResponse(ctx context.Context, topic string, dctx DebateContext, neighbors []PeerPosition) (*DebateResponse, error) {
	return f.try(ctx, dctx, func(c Capability) (*DebateResponse, error) {
		return c.GenerateDebateResponse(ctx, topic, dctx, neighbors)
	})
}

func (f *Fallback) try(ctx context.Context, dctx DebateContext, call func(Capability) (*DebateResponse, error)) (*DebateResponse, error) {
	var errs []error
	for i, c := range f.chain {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		resp, err := call(c)
		if err == nil {
			return resp, nil
		}
		f.logger.Warn("Capability failed, trying next in chain",
			zap.String("agent_id", dctx.AgentID),
			zap.String("backend", f.names[i]),
			zap.Error(err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", f.names[i], err))
	}
	return nil, errors.Join(errs...)
}
