package agents

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to an underlying capability.
type RateLimited struct {
	next    Capability
	limiter *rate.Limiter
}

// NewRateLimited allows rpm requests per minute with the given burst.
func NewRateLimited(next Capability, rpm, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)}
}

func (r *RateLimited) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (r *RateLimited) GenerateInitialPosition(ctx context.Context, topic string, dctx DebateContext) (*DebateResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GenerateInitialPosition(ctx, topic, dctx)
}

func (r *RateLimited) GenerateDebateResponse(ctx context.Context, topic string, dctx DebateContext, neighbors []PeerPosition) (*DebateResponse, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.next.GenerateDebateResponse(ctx, topic, dctx, neighbors)
}
