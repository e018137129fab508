package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"
)

// Engine decides whether an agent may invoke a tool.
type Engine interface {
	Evaluate(ctx context.Context, input *ToolInput) (*Decision, error)
	IsEnabled() bool
	Mode() Mode
}

// ToolInput is the document exposed to rego as `input`.
type ToolInput struct {
	SessionID   string                 `json:"session_id"`
	AgentID     string                 `json:"agent_id"`
	Phase       string                 `json:"phase"`
	Tool        string                 `json:"tool"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Environment string                 `json:"environment"`
	Timestamp   time.Time              `json:"timestamp"`
}

// Decision represents the policy evaluation result
type Decision struct {
	Allow  bool   `json:"allow"`
	Reason string `json:"reason,omitempty"`
}

// OPAEngine evaluates rego policies loaded from a directory.
type OPAEngine struct {
	config   *Config
	logger   *zap.Logger
	compiled *rego.PreparedEvalQuery
	enabled  bool
}

// NewOPAEngine loads and compiles policies. In fail-open mode a load failure disables
// the engine instead of returning an error.
func NewOPAEngine(config *Config, logger *zap.Logger) (*OPAEngine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.Normalize()
	engine := &OPAEngine{
		config:  config,
		logger:  logger,
		enabled: config.Enabled,
	}

	if engine.enabled {
		if err := engine.LoadPolicies(); err != nil {
			if config.FailClosed {
				return nil, fmt.Errorf("failed to load policies in fail-closed mode: %w", err)
			}
			logger.Warn("Failed to load tool policies, running in fail-open mode", zap.Error(err))
			engine.enabled = false
		}
	}

	return engine, nil
}

// LoadPolicies compiles every .rego file under the configured path.
func (e *OPAEngine) LoadPolicies() error {
	modules := make(map[string]string)

	err := filepath.Walk(e.config.Path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read policy file %s: %w", path, err)
		}
		rel, _ := filepath.Rel(e.config.Path, path)
		modules[strings.TrimSuffix(rel, ".rego")] = string(content)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk policy directory: %w", err)
	}
	if len(modules) == 0 {
		return fmt.Errorf("no policy files found in %s", e.config.Path)
	}

	return e.compile(modules)
}

// LoadModule compiles a single in-memory policy module.
func (e *OPAEngine) LoadModule(name, source string) error {
	if err := e.compile(map[string]string{name: source}); err != nil {
		return err
	}
	e.enabled = true
	return nil
}

func (e *OPAEngine) compile(modules map[string]string) error {
	opts := []func(*rego.Rego){rego.Query(DecisionQuery)}
	for name, src := range modules {
		opts = append(opts, rego.Module(name, src))
	}

	compiled, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to compile policies: %w", err)
	}
	e.compiled = &compiled

	e.logger.Info("Tool policies compiled",
		zap.Int("policy_count", len(modules)),
		zap.String("decision_query", DecisionQuery),
	)
	return nil
}

// Evaluate returns the decision for input. Errors are only returned in fail-closed mode.
func (e *OPAEngine) Evaluate(ctx context.Context, input *ToolInput) (*Decision, error) {
	fallback := &Decision{
		Allow:  !e.config.FailClosed,
		Reason: "policy engine disabled or no policies loaded",
	}
	if !e.enabled || e.compiled == nil {
		return fallback, nil
	}

	if input.Environment == "" {
		input.Environment = e.config.Environment
	}
	if input.Timestamp.IsZero() {
		input.Timestamp = time.Now()
	}

	doc, err := toMap(input)
	if err != nil {
		if e.config.FailClosed {
			return &Decision{Allow: false, Reason: "input conversion failed"}, err
		}
		return fallback, nil
	}

	results, err := e.compiled.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		e.logger.Error("Tool policy evaluation failed", zap.Error(err), zap.String("tool", input.Tool))
		if e.config.FailClosed {
			return &Decision{Allow: false, Reason: "policy evaluation error"}, err
		}
		return fallback, nil
	}

	decision := parseResults(results)
	if !decision.Allow && e.config.Mode == ModeDryRun {
		e.logger.Info("Tool call would be denied (dry-run)",
			zap.String("tool", input.Tool),
			zap.String("agent_id", input.AgentID),
			zap.String("reason", decision.Reason),
		)
		decision = &Decision{Allow: true, Reason: "dry-run: " + decision.Reason}
	}

	e.logger.Debug("Tool policy evaluated",
		zap.String("session_id", input.SessionID),
		zap.String("tool", input.Tool),
		zap.Bool("allow", decision.Allow),
		zap.String("reason", decision.Reason),
	)
	return decision, nil
}

// IsEnabled returns whether the policy engine is enabled and ready
func (e *OPAEngine) IsEnabled() bool { return e.enabled && e.compiled != nil }

// Mode returns the configured enforcement mode
func (e *OPAEngine) Mode() Mode { return e.config.Mode }

func toMap(input *ToolInput) (map[string]interface{}, error) {
	data, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseResults(results rego.ResultSet) *Decision {
	decision := &Decision{Allow: false, Reason: "no matching policy rules"}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return decision
	}

	switch v := results[0].Expressions[0].Value.(type) {
	case map[string]interface{}:
		if allow, ok := v["allow"].(bool); ok {
			decision.Allow = allow
		}
		if reason, ok := v["reason"].(string); ok {
			decision.Reason = reason
		}
	case bool:
		decision.Allow = v
		if v {
			decision.Reason = "allowed by policy"
		} else {
			decision.Reason = "denied by policy"
		}
	}
	return decision
}
