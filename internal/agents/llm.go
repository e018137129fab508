package agents

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/util"
)

// Completion is a single prompt sent to a backend.
type Completion struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
	AgentID     string
	SessionID   string
}

// Backend turns a prompt into text.
type Backend interface {
	Complete(ctx context.Context, c Completion) (string, error)
}

// LLMAgent adapts a Backend to the Capability interface.
type LLMAgent struct {
	backend     Backend
	name        string
	temperature float64
	maxTokens   int
	debug       bool
	logger      *zap.Logger
}

// NewLLMAgent wraps backend. name labels logs, spans and metrics.
func NewLLMAgent(name string, backend Backend, temperature float64, maxTokens int, debug bool, logger *zap.Logger) *LLMAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LLMAgent{
		backend:     backend,
		name:        name,
		temperature: temperature,
		maxTokens:   maxTokens,
		debug:       debug,
		logger:      logger.With(zap.String("capability", name)),
	}
}

func (a *LLMAgent) GenerateInitialPosition(ctx context.Context, topic string, dctx DebateContext) (*DebateResponse, error) {
	return a.call(ctx, topic, dctx, nil)
}

func (a *LLMAgent) GenerateDebateResponse(ctx context.Context, topic string, dctx DebateContext, neighbors []PeerPosition) (*DebateResponse, error) {
	return a.call(ctx, topic, dctx, neighbors)
}

func (a *LLMAgent) call(ctx context.Context, topic string, dctx DebateContext, neighbors []PeerPosition) (*DebateResponse, error) {
	role := dctx.Role
	if role == "" {
		role = RoleDebater
	}
	ctx, span := tracing.StartSpan(ctx, "debate.agent_call",
		attribute.String("capability", a.name),
		attribute.String("agent_id", dctx.AgentID),
		attribute.String("role", string(role)),
		attribute.Int("round", dctx.Round),
	)

	system, user := BuildPrompt(topic, dctx, neighbors)
	temp := a.temperature
	maxTokens := a.maxTokens
	if p := dctx.Persona; p != nil && role == RoleDebater {
		if p.Temperature > 0 {
			temp = p.Temperature
		}
		if p.MaxTokens > 0 {
			maxTokens = p.MaxTokens
		}
	}

	if a.debug {
		a.logger.Debug("LLM prompt",
			zap.String("agent_id", dctx.AgentID),
			zap.Int("round", dctx.Round),
			zap.String("system", util.TruncateString(system, 500, false)),
			zap.String("user", util.TruncateString(user, 2000, false)),
		)
	}

	start := time.Now()
	raw, err := a.backend.Complete(ctx, Completion{
		System:      system,
		User:        user,
		Temperature: temp,
		MaxTokens:   maxTokens,
		AgentID:     dctx.AgentID,
		SessionID:   dctx.SessionID,
	})
	metrics.RecordAgentCall(string(role), err == nil, time.Since(start).Seconds())
	if err == nil && strings.TrimSpace(raw) == "" {
		err = fmt.Errorf("%s returned an empty response", a.name)
	}
	tracing.EndSpan(span, err)
	if err != nil {
		return nil, err
	}

	if a.debug {
		a.logger.Debug("LLM response",
			zap.String("agent_id", dctx.AgentID),
			zap.String("raw", util.TruncateString(raw, 2000, false)),
		)
	}

	return ParseResponse(raw), nil
}
