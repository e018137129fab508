package debate

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/metrics"
)

// State is the read-only snapshot handed to a HitlHandler.
type State struct {
	SessionID string          `json:"sessionId"`
	Topic     string          `json:"topic"`
	Round     int             `json:"round"`
	Positions []Position      `json:"positions"`
	Consensus ConsensusResult `json:"consensus"`
}

// HitlDecision is a human's response to an escalation. SelectedAgentID or CustomAnswer
// replace synthesis; Feedback is passed to the mediator.
type HitlDecision struct {
	SelectedAgentID string `json:"selectedAgentId,omitempty"`
	CustomAnswer    string `json:"customAnswer,omitempty"`
	Feedback        string `json:"feedback,omitempty"`
}

// HitlHandler is awaited without a timeout; bound it through ctx if needed.
type HitlHandler func(ctx context.Context, state State) (HitlDecision, error)

// shouldEscalate reports whether a consensus verdict needs a human.
func (c *Coordinator) shouldEscalate(cr ConsensusResult) bool {
	return c.cfg.HitlEnabled && c.hitl != nil && !cr.Reached && cr.Divergence > c.cfg.HitlThreshold
}

// applyDecision turns a decision into a final answer when it short-circuits synthesis.
// It returns nil when the mediator should still run.
func (c *Coordinator) applyDecision(s *Session, d HitlDecision, positions []Position) *SynthesizedAnswer {
	if answer := strings.TrimSpace(d.CustomAnswer); answer != "" {
		metrics.HitlRequests.WithLabelValues("custom").Inc()
		return &SynthesizedAnswer{
			Answer:     answer,
			KeyPoints:  []string{},
			Confidence: 1.0,
			Source:     "hitl_custom",
		}
	}
	if id := strings.TrimSpace(d.SelectedAgentID); id != "" {
		for _, p := range positions {
			if p.AgentID == id && !p.Failed() {
				metrics.HitlRequests.WithLabelValues("selected").Inc()
				return &SynthesizedAnswer{
					Answer:     p.Position,
					KeyPoints:  []string{},
					Citations:  p.Citations,
					Confidence: p.Confidence,
					Source:     "hitl_selected",
				}
			}
		}
		c.logger.Warn("HITL selected an unknown or failed agent, falling back to synthesis",
			zap.String("session_id", s.ID),
			zap.String("agent_id", id),
		)
	}
	if strings.TrimSpace(d.Feedback) != "" {
		metrics.HitlRequests.WithLabelValues("feedback").Inc()
	} else {
		metrics.HitlRequests.WithLabelValues("none").Inc()
	}
	return nil
}
