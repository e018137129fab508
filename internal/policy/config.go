package policy

import "strings"

// Mode defines the policy engine operating mode
type Mode string

const (
	// ModeOff disables policy evaluation entirely
	ModeOff Mode = "off"
	// ModeDryRun evaluates policies but only logs denials
	ModeDryRun Mode = "dry-run"
	// ModeEnforce evaluates and enforces policies
	ModeEnforce Mode = "enforce"
)

// DecisionQuery is the rego query every tool policy bundle must define.
const DecisionQuery = "data.debate.tools.decision"

// Config holds tool policy configuration
type Config struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Mode    Mode   `mapstructure:"mode" yaml:"mode"`
	Path    string `mapstructure:"path" yaml:"path"` // directory of .rego files

	// FailClosed denies tool calls when policies cannot be loaded or evaluated.
	FailClosed bool `mapstructure:"fail_closed" yaml:"fail_closed"`

	Environment string `mapstructure:"environment" yaml:"environment"`
}

// Normalize fixes unknown modes and disables the engine when mode is off.
func (c *Config) Normalize() {
	c.Mode = Mode(strings.ToLower(strings.TrimSpace(string(c.Mode))))
	switch c.Mode {
	case ModeOff, ModeDryRun, ModeEnforce:
	default:
		c.Mode = ModeOff
	}
	if c.Mode == ModeOff {
		c.Enabled = false
	}
	if c.Environment == "" {
		c.Environment = "dev"
	}
}
