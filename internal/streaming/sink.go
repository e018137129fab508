package streaming

import (
	"context"
	"time"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/debate"
)

// EventHitlPending carries the reviewer request ID of a parked escalation. It is
// published by the HITL broker rather than the coordinator.
const EventHitlPending = "hitl_pending"

// DefaultRetention is how long a finished session stays replayable from memory.
const DefaultRetention = 10 * time.Minute

// Sink adapts a Manager to debate.EventSink.
type Sink struct {
	m         *Manager
	retention time.Duration
}

// NewSink returns a debate.EventSink publishing to m. Finished sessions are dropped
// from the replay buffer after DefaultRetention.
func NewSink(m *Manager) *Sink { return &Sink{m: m, retention: DefaultRetention} }

func (s *Sink) Emit(_ context.Context, evt debate.Event) {
	s.m.Publish(evt.SessionID, Event{
		Type:      string(evt.Type),
		Phase:     string(evt.Phase),
		Round:     evt.Round,
		AgentID:   evt.AgentID,
		Message:   evt.Message,
		Data:      evt.Data,
		Timestamp: evt.Timestamp,
	})
	if evt.Type == debate.EventDebateComplete && s.retention > 0 {
		sessionID := evt.SessionID
		time.AfterFunc(s.retention, func() { s.m.Forget(sessionID) })
	}
}

// Terminal reports whether eventType ends a session stream.
func Terminal(eventType string) bool {
	return eventType == string(debate.EventDebateComplete)
}
