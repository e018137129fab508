package debate

import (
	"time"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/personas"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/verify"
)

// Phase is a state of the debate state machine.
type Phase string

const (
	PhaseInitial      Phase = "initial"
	PhaseDebate       Phase = "debate"
	PhaseConsensus    Phase = "consensus"
	PhaseHitl         Phase = "hitl"
	PhaseSynthesis    Phase = "synthesis"
	PhaseVerification Phase = "verification"
	PhaseComplete     Phase = "complete"
	PhaseError        Phase = "error"
)

// hitl sits between consensus and synthesis because a decision can replace the mediator call.
var phaseOrder = map[Phase]int{
	PhaseInitial:      0,
	PhaseDebate:       1,
	PhaseConsensus:    2,
	PhaseHitl:         3,
	PhaseSynthesis:    4,
	PhaseVerification: 5,
	PhaseComplete:     6,
	PhaseError:        7,
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool { return p == PhaseComplete || p == PhaseError }

// Agent is one debater. Its index in the session's agent list is fixed.
type Agent struct {
	ID         string
	Name       string
	Capability agents.Capability
	Persona    *personas.Persona
}

// PositionStatus tells whether a position was produced this round.
type PositionStatus string

const (
	StatusFresh PositionStatus = "fresh"
	// StatusStale marks a carried-forward position from an earlier round.
	StatusStale PositionStatus = "stale"
	// StatusFailed marks an agent that has never produced a position.
	StatusFailed PositionStatus = "failed"
)

// Position is one agent's answer for one round.
type Position struct {
	AgentID    string            `json:"agentId"`
	Name       string            `json:"name,omitempty"`
	Position   string            `json:"position"`
	Confidence float64           `json:"confidence"`
	Reasoning  string            `json:"reasoning,omitempty"`
	Citations  []agents.Citation `json:"citations,omitempty"`
	CodeTraces []string          `json:"codeTraces,omitempty"`
	ToolCalls  []tools.Call      `json:"toolCalls,omitempty"`
	Status     PositionStatus    `json:"status"`
}

// Failed reports whether p is a failure marker with no content.
func (p Position) Failed() bool { return p.Status == StatusFailed }

// Peer returns the view of p shown to other agents.
func (p Position) Peer() agents.PeerPosition {
	return agents.PeerPosition{
		AgentID:    p.AgentID,
		Name:       p.Name,
		Position:   p.Position,
		Reasoning:  p.Reasoning,
		Confidence: p.Confidence,
		Citations:  p.Citations,
	}
}

// Round is a closed debate round. len(Positions) always equals the number of agents.
type Round struct {
	Round            int          `json:"round"`
	Positions        []Position   `json:"positions"`
	ToolCalls        []tools.Call `json:"toolCalls,omitempty"`
	ConsensusReached bool         `json:"consensusReached"`
	Timestamp        time.Time    `json:"timestamp"`
}

// SynthesizedAnswer is the mediator's single answer.
type SynthesizedAnswer struct {
	Answer     string            `json:"answer"`
	KeyPoints  []string          `json:"keyPoints"`
	Citations  []agents.Citation `json:"citations"`
	Confidence float64           `json:"confidence"`
	// Source is "mediator", "hitl_selected" or "hitl_custom".
	Source string `json:"source"`
}

// Session is the coordinator-owned state of one debate.
type Session struct {
	ID           string
	Topic        string
	Phase        Phase
	CurrentRound int
	Rounds       []Round
	Agents       []Agent
	Config       Config
	StartTime    time.Time
	EndTime      time.Time
	Error        error
}

// transition moves s to phase to. Backward moves and moves out of a terminal phase fail.
func (s *Session) transition(to Phase) error {
	if s.Phase.Terminal() {
		return ErrInvalidTransition
	}
	if to != PhaseError && phaseOrder[to] < phaseOrder[s.Phase] {
		return ErrInvalidTransition
	}
	s.Phase = to
	return nil
}

// Usage counts the calls a session made.
type Usage struct {
	AgentCalls       int `json:"agentCalls"`
	FailedAgentCalls int `json:"failedAgentCalls"`
	MediatorCalls    int `json:"mediatorCalls"`
	VerifierCalls    int `json:"verifierCalls"`
	ToolCalls        int `json:"toolCalls"`
}

// Result is returned to the caller once the session ends.
type Result struct {
	SessionID        string                 `json:"sessionId"`
	Topic            string                 `json:"topic"`
	Synthesized      *SynthesizedAnswer     `json:"synthesized,omitempty"`
	Verified         *verify.VerifiedAnswer `json:"verified,omitempty"`
	Rounds           []Round                `json:"rounds"`
	ConsensusReached bool                   `json:"consensusReached"`
	ConsensusReason  string                 `json:"consensusReason,omitempty"`
	HitlInvoked      bool                   `json:"hitlInvoked"`
	Phase            Phase                  `json:"phase"`
	StartTime        time.Time              `json:"startTime"`
	EndTime          time.Time              `json:"endTime"`
	Duration         time.Duration          `json:"duration"`
	Usage            Usage                  `json:"usage"`
	Error            string                 `json:"error,omitempty"`
}

// FinalAnswer returns the best answer available: verified, then synthesized.
func (r *Result) FinalAnswer() string {
	if r.Verified != nil && r.Verified.VerifiedAnswer != "" {
		return r.Verified.VerifiedAnswer
	}
	if r.Synthesized != nil {
		return r.Synthesized.Answer
	}
	return ""
}
