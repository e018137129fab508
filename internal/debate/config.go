package debate

import (
	"fmt"
	"time"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
)

const (
	DefaultMaxRounds        = 3
	DefaultMaxToolCalls     = 10
	DefaultQuorum           = 2
	DefaultAgentTimeout     = 2 * time.Minute
	DefaultDebateToolBudget = 10
)

// Config controls one debate session.
type Config struct {
	MaxRounds   int          `mapstructure:"max_rounds" yaml:"max_rounds"`
	HitlEnabled bool         `mapstructure:"hitl_enabled" yaml:"hitl_enabled"`
	Tools       []tools.Tool `mapstructure:"-" yaml:"-"`
	Debug       bool         `mapstructure:"debug" yaml:"debug"`
	// MaxToolCalls bounds the verification pass.
	MaxToolCalls int `mapstructure:"max_tool_calls" yaml:"max_tool_calls"`

	// Quorum is the minimum number of successful initial positions. It is capped at
	// the number of agents.
	Quorum int `mapstructure:"quorum" yaml:"quorum"`
	// HitlThreshold is the divergence above which a non-consensus escalates.
	HitlThreshold float64 `mapstructure:"hitl_threshold" yaml:"hitl_threshold"`
	// AgentTimeout bounds each individual agent call.
	AgentTimeout    time.Duration `mapstructure:"agent_timeout" yaml:"agent_timeout"`
	StopOnConsensus bool          `mapstructure:"stop_on_consensus" yaml:"stop_on_consensus"`
	// DebateToolBudget bounds tool executions requested by debaters across a session.
	DebateToolBudget int `mapstructure:"debate_tool_budget" yaml:"debate_tool_budget"`
}

// DefaultConfig returns the defaults applied to zero-valued fields.
func DefaultConfig() Config {
	return Config{
		MaxRounds:        DefaultMaxRounds,
		MaxToolCalls:     DefaultMaxToolCalls,
		Quorum:           DefaultQuorum,
		AgentTimeout:     DefaultAgentTimeout,
		DebateToolBudget: DefaultDebateToolBudget,
	}
}

// normalize fills defaults and validates c for n agents.
func (c Config) normalize(n int) (Config, error) {
	switch {
	case c.MaxRounds < 0:
		return c, fmt.Errorf("%w: max_rounds must be >= 1, got %d", ErrInvalidConfig, c.MaxRounds)
	case c.MaxToolCalls < 0:
		return c, fmt.Errorf("%w: max_tool_calls must be >= 0, got %d", ErrInvalidConfig, c.MaxToolCalls)
	case c.Quorum < 0:
		return c, fmt.Errorf("%w: quorum must be >= 0, got %d", ErrInvalidConfig, c.Quorum)
	case c.HitlThreshold < 0 || c.HitlThreshold > 1:
		return c, fmt.Errorf("%w: hitl_threshold must be within [0,1], got %v", ErrInvalidConfig, c.HitlThreshold)
	case c.AgentTimeout < 0:
		return c, fmt.Errorf("%w: agent_timeout must be positive, got %s", ErrInvalidConfig, c.AgentTimeout)
	case c.DebateToolBudget < 0:
		return c, fmt.Errorf("%w: debate_tool_budget must be >= 0, got %d", ErrInvalidConfig, c.DebateToolBudget)
	}

	if c.MaxRounds == 0 {
		c.MaxRounds = DefaultMaxRounds
	}
	if c.MaxToolCalls == 0 {
		c.MaxToolCalls = DefaultMaxToolCalls
	}
	if c.Quorum == 0 {
		c.Quorum = DefaultQuorum
	}
	if c.Quorum > n {
		c.Quorum = n
	}
	if c.AgentTimeout == 0 {
		c.AgentTimeout = DefaultAgentTimeout
	}
	if c.DebateToolBudget == 0 {
		c.DebateToolBudget = DefaultDebateToolBudget
	}
	return c, nil
}
