package agents

import (
	"context"
	"fmt"
	"sync"
)

// Scripted replays canned raw outputs, one per call, repeating the last one when the
// script runs out. It is used for dry runs and tests.
type Scripted struct {
	mu      sync.Mutex
	outputs []string
	calls   int
}

// NewScripted returns a Scripted capability. At least one output is required.
func NewScripted(outputs ...string) (*Scripted, error) {
	if len(outputs) == 0 {
		return nil, fmt.Errorf("scripted capability needs at least one output")
	}
	return &Scripted{outputs: outputs}, nil
}

// Complete implements Backend.
func (s *Scripted) Complete(ctx context.Context, _ Completion) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	s.calls++
	return s.outputs[i], nil
}

// Calls returns how many completions were served.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Scripted) GenerateInitialPosition(ctx context.Context, _ string, _ DebateContext) (*DebateResponse, error) {
	raw, err := s.Complete(ctx, Completion{})
	if err != nil {
		return nil, err
	}
	return ParseResponse(raw), nil
}

func (s *Scripted) GenerateDebateResponse(ctx context.Context, topic string, dctx DebateContext, _ []PeerPosition) (*DebateResponse, error) {
	return s.GenerateInitialPosition(ctx, topic, dctx)
}
