package agents

import (
	"context"
	"errors"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/personas"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
)

// ErrNoResponse is reported when a capability returns neither a response nor an error.
var ErrNoResponse = errors.New("capability returned no response")

// Role selects how a capability frames its prompt.
type Role string

const (
	RoleDebater  Role = "debater"
	RoleMediator Role = "mediator"
	RoleVerifier Role = "verifier"
)

// CitationType is the kind of evidence a citation points at.
type CitationType string

const (
	CitationFile     CitationType = "file"
	CitationURL      CitationType = "url"
	CitationDocument CitationType = "document"
)

// Citation references evidence backing a claim.
type Citation struct {
	Type        CitationType `json:"type"`
	Source      string       `json:"source"`
	Excerpt     string       `json:"excerpt,omitempty"`
	LineNumbers []int        `json:"lineNumbers,omitempty"`
}

// Key identifies a citation for de-duplication.
func (c Citation) Key() string { return string(c.Type) + "|" + c.Source }

// PeerPosition is the read-only view of another agent's (or one's own earlier) position.
type PeerPosition struct {
	AgentID    string     `json:"agentId"`
	Name       string     `json:"name,omitempty"`
	Position   string     `json:"position"`
	Reasoning  string     `json:"reasoning,omitempty"`
	Confidence float64    `json:"confidence"`
	Citations  []Citation `json:"citations,omitempty"`
}

// DebateContext is the immutable snapshot an agent receives for one call. The
// coordinator builds a fresh one per call; capabilities must not retain it.
type DebateContext struct {
	SessionID string
	AgentID   string
	Role      Role
	Round     int
	MaxRounds int
	Persona   *personas.Persona

	// Anchor is the agent's own round-1 position.
	Anchor *PeerPosition
	// Previous is the agent's own position from the last closed round.
	Previous *PeerPosition

	Evidence []tools.Call
	Tools    []tools.Tool

	// Instructions replaces the debater system prompt for mediator and verifier calls.
	Instructions string
}

// DebateResponse is what a capability returns for one call.
type DebateResponse struct {
	Position     string          `json:"position"`
	Confidence   float64         `json:"confidence"`
	Reasoning    string          `json:"reasoning,omitempty"`
	Citations    []Citation      `json:"citations,omitempty"`
	CodeTraces   []string        `json:"codeTraces,omitempty"`
	ToolRequests []tools.Request `json:"toolRequests,omitempty"`
	// Raw is the unparsed model output.
	Raw string `json:"-"`
}

// Capability is a single LLM-backed reasoning participant.
type Capability interface {
	GenerateInitialPosition(ctx context.Context, topic string, dctx DebateContext) (*DebateResponse, error)
	GenerateDebateResponse(ctx context.Context, topic string, dctx DebateContext, neighbors []PeerPosition) (*DebateResponse, error)
}
