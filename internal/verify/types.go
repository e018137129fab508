package verify

import "github.com/Kocoro-lab/Shannon/go/debate/internal/agents"

// ClaimStatus is the verdict on one claim.
type ClaimStatus string

const (
	StatusVerified   ClaimStatus = "verified"
	StatusUnverified ClaimStatus = "unverified"
	StatusIncorrect  ClaimStatus = "incorrect"
)

// Claim is one checked statement from the answer.
type Claim struct {
	Claim      string           `json:"claim"`
	Status     ClaimStatus      `json:"status"`
	Citation   *agents.Citation `json:"citation,omitempty"`
	Correction string           `json:"correction,omitempty"`
}

// VerifiedAnswer is the output of a verification pass.
type VerifiedAnswer struct {
	OriginalAnswer string            `json:"originalAnswer"`
	VerifiedAnswer string            `json:"verifiedAnswer"`
	Claims         []Claim           `json:"claims"`
	Corrections    []string          `json:"corrections"`
	Citations      []agents.Citation `json:"citations"`

	// Structured is false when the response had to be recovered by manual extraction.
	Structured bool     `json:"structured"`
	ToolCalls  int      `json:"toolCalls"`
	Warnings   []string `json:"warnings,omitempty"`
}
