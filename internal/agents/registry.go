package agents

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
)

// Kind tags a capability variant.
type Kind string

const (
	KindOpenAI   Kind = "openai"
	KindHTTP     Kind = "http"
	KindScripted Kind = "scripted"
	KindFallback Kind = "fallback"
)

// Spec describes a capability. Only the fields relevant to Kind are read.
type Spec struct {
	Kind        Kind          `mapstructure:"kind" yaml:"kind"`
	Name        string        `mapstructure:"name" yaml:"name"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	ModelTier   string        `mapstructure:"model_tier" yaml:"model_tier"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// RateLimitRPM > 0 wraps the capability in a token bucket.
	RateLimitRPM   int `mapstructure:"rate_limit_rpm" yaml:"rate_limit_rpm"`
	RateLimitBurst int `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`

	Outputs []string `mapstructure:"outputs" yaml:"outputs"` // scripted
	Chain   []Spec   `mapstructure:"chain" yaml:"chain"`     // fallback
}

// Build resolves spec into a Capability.
func Build(spec Spec, debug bool, logger *zap.Logger) (Capability, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	name := spec.Name
	if name == "" {
		name = string(spec.Kind)
	}

	var capability Capability
	switch spec.Kind {
	case KindOpenAI:
		backend, err := NewOpenAIBackend(OpenAIConfig{
			APIKey:  spec.APIKey,
			BaseURL: spec.BaseURL,
			Model:   spec.Model,
			Timeout: spec.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("capability %s: %w", name, err)
		}
		capability = NewLLMAgent(name, backend, spec.Temperature, spec.MaxTokens, debug, logger)

	case KindHTTP:
		if spec.BaseURL == "" {
			return nil, fmt.Errorf("capability %s: base_url is required", name)
		}
		timeout := spec.Timeout
		if timeout == 0 {
			timeout = 2 * time.Minute
		}
		client := circuitbreaker.NewHTTPWrapperWithConfig(
			&http.Client{Timeout: timeout}, "llm-"+name, "llm",
			circuitbreaker.GetLLMConfig().ToConfig(), logger,
		)
		capability = NewLLMAgent(name, NewHTTPBackend(spec.BaseURL, spec.ModelTier, client), spec.Temperature, spec.MaxTokens, debug, logger)

	case KindScripted:
		s, err := NewScripted(spec.Outputs...)
		if err != nil {
			return nil, fmt.Errorf("capability %s: %w", name, err)
		}
		capability = s

	case KindFallback:
		chain := make([]Capability, 0, len(spec.Chain))
		names := make([]string, 0, len(spec.Chain))
		for i, sub := range spec.Chain {
			if sub.Name == "" {
				sub.Name = fmt.Sprintf("%s-%d", name, i)
			}
			c, err := Build(sub, debug, logger)
			if err != nil {
				return nil, err
			}
			chain = append(chain, c)
			names = append(names, sub.Name)
		}
		fb, err := NewFallback(chain, names, logger)
		if err != nil {
			return nil, fmt.Errorf("capability %s: %w", name, err)
		}
		capability = fb

	default:
		return nil, fmt.Errorf("capability %s: unknown kind %q", name, spec.Kind)
	}

	if spec.RateLimitRPM > 0 {
		capability = NewRateLimited(capability, spec.RateLimitRPM, spec.RateLimitBurst)
	}
	return capability, nil
}
