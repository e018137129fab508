package debate

import (
	"context"
	"time"
)

// EventType names a stream event.
type EventType string

const (
	EventSessionStarted    EventType = "session_started"
	EventPhaseChanged      EventType = "phase_changed"
	EventRoundStarted      EventType = "round_started"
	EventAgentThinking     EventType = "agent_thinking"
	EventPositionComplete  EventType = "position_complete"
	EventRoundComplete     EventType = "round_complete"
	EventHitlRequested     EventType = "hitl_requested"
	EventVerificationClaim EventType = "verification_claim"
	EventDebateComplete    EventType = "debate_complete"
	EventError             EventType = "error"
)

// Event is an observational notification. Sinks must not block the coordinator.
type Event struct {
	SessionID string                 `json:"sessionId"`
	Type      EventType              `json:"type"`
	Phase     Phase                  `json:"phase"`
	Round     int                    `json:"round,omitempty"`
	AgentID   string                 `json:"agentId,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventSink receives session events. It may be called from several goroutines.
type EventSink interface {
	Emit(ctx context.Context, evt Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, evt Event)

func (f SinkFunc) Emit(ctx context.Context, evt Event) { f(ctx, evt) }
