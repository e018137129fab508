package debate

import (
	"context"
	"fmt"
	"sync"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
)

// fakeAgent is a scriptable capability that records every call it receives.
type fakeAgent struct {
	mu        sync.Mutex
	initial   func(ctx context.Context, topic string, dctx agents.DebateContext) (*agents.DebateResponse, error)
	refine    func(ctx context.Context, topic string, dctx agents.DebateContext, neighbors []agents.PeerPosition) (*agents.DebateResponse, error)
	topics    []string
	contexts  []agents.DebateContext
	neighbors [][]agents.PeerPosition
}

func (f *fakeAgent) GenerateInitialPosition(ctx context.Context, topic string, dctx agents.DebateContext) (*agents.DebateResponse, error) {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	f.contexts = append(f.contexts, dctx)
	f.mu.Unlock()
	return f.initial(ctx, topic, dctx)
}

func (f *fakeAgent) GenerateDebateResponse(ctx context.Context, topic string, dctx agents.DebateContext, neighbors []agents.PeerPosition) (*agents.DebateResponse, error) {
	f.mu.Lock()
	f.topics = append(f.topics, topic)
	f.contexts = append(f.contexts, dctx)
	f.neighbors = append(f.neighbors, neighbors)
	f.mu.Unlock()
	if f.refine == nil {
		return f.initial(ctx, topic, dctx)
	}
	return f.refine(ctx, topic, dctx, neighbors)
}

func (f *fakeAgent) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.contexts)
}

func (f *fakeAgent) lastTopic() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.topics) == 0 {
		return ""
	}
	return f.topics[len(f.topics)-1]
}

func answering(position string, confidence float64) *fakeAgent {
	return &fakeAgent{initial: func(context.Context, string, agents.DebateContext) (*agents.DebateResponse, error) {
		return &agents.DebateResponse{Position: position, Confidence: confidence}, nil
	}}
}

func failing(msg string) *fakeAgent {
	return &fakeAgent{initial: func(context.Context, string, agents.DebateContext) (*agents.DebateResponse, error) {
		return nil, fmt.Errorf("%s", msg)
	}}
}

func rawOutput(raw string) *fakeAgent {
	return &fakeAgent{initial: func(context.Context, string, agents.DebateContext) (*agents.DebateResponse, error) {
		return agents.ParseResponse(raw), nil
	}}
}

func debaters(caps ...agents.Capability) []Agent {
	out := make([]Agent, len(caps))
	for i, c := range caps {
		out[i] = Agent{ID: fmt.Sprintf("agent-%d", i), Name: fmt.Sprintf("Agent %d", i), Capability: c}
	}
	return out
}

const mediatorJSON = `{"answer": "Final answer", "keyPoints": ["one", "two"], "confidence": 0.9}`

type recordingSink struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingSink) Emit(_ context.Context, evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingSink) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fakeExecutor struct {
	mu    sync.Mutex
	calls []tools.Call
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, name string, params map[string]interface{}) (tools.ToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, tools.Call{AgentID: tools.CallerFrom(ctx).AgentID, Request: tools.Request{Tool: name, Parameters: params}})
	if f.err != nil {
		return tools.ToolResult{}, f.err
	}
	return tools.ToolResult{Success: true, Data: "evidence for " + name}, nil
}

func (f *fakeExecutor) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
