package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/debate"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/policy"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
)

// DefaultPath is used when CONFIG_PATH is unset.
const DefaultPath = "./config/debate.yaml"

// EnvPrefix prefixes environment overrides, e.g. DEBATE_DEBATE_MAX_ROUNDS.
const EnvPrefix = "DEBATE"

// AgentConfig is one debater: a capability spec plus its identity and persona.
type AgentConfig struct {
	agents.Spec `mapstructure:",squash"`
	ID          string `mapstructure:"id"`
	Persona     string `mapstructure:"persona"`
}

type ConsensusConfig struct {
	Detector         string  `mapstructure:"detector"` // exact | jaccard
	JaccardThreshold float64 `mapstructure:"jaccard_threshold"`
}

type VerificationConfig struct {
	Enabled    bool        `mapstructure:"enabled"`
	Capability agents.Spec `mapstructure:"capability"`
}

type ToolsConfig struct {
	Root    string        `mapstructure:"root"`
	Enabled []string      `mapstructure:"enabled"`
	Timeout time.Duration `mapstructure:"timeout"`
	Policy  policy.Config `mapstructure:"policy"`
}

type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	MaxLen   int64         `mapstructure:"max_len"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type StreamingConfig struct {
	Capacity int         `mapstructure:"capacity"`
	Redis    RedisConfig `mapstructure:"redis"`
}

type ServerConfig struct {
	Addr           string        `mapstructure:"addr"`
	JWTSecret      string        `mapstructure:"jwt_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type PersonasConfig struct {
	Path string `mapstructure:"path"`
}

// Config is the full service configuration.
type Config struct {
	Debate       debate.Config      `mapstructure:"debate"`
	Consensus    ConsensusConfig    `mapstructure:"consensus"`
	Agents       []AgentConfig      `mapstructure:"agents"`
	Mediator     agents.Spec        `mapstructure:"mediator"`
	Verification VerificationConfig `mapstructure:"verification"`
	Tools        ToolsConfig        `mapstructure:"tools"`
	Streaming    StreamingConfig    `mapstructure:"streaming"`
	Server       ServerConfig       `mapstructure:"server"`
	Tracing      tracing.Config     `mapstructure:"tracing"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Personas     PersonasConfig     `mapstructure:"personas"`
}

// Path returns CONFIG_PATH or DefaultPath.
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return DefaultPath
}

func setDefaults(v *viper.Viper) {
	d := debate.DefaultConfig()
	v.SetDefault("debate.max_rounds", d.MaxRounds)
	v.SetDefault("debate.hitl_enabled", false)
	v.SetDefault("debate.debug", false)
	v.SetDefault("debate.max_tool_calls", d.MaxToolCalls)
	v.SetDefault("debate.quorum", d.Quorum)
	v.SetDefault("debate.hitl_threshold", 0.0)
	v.SetDefault("debate.agent_timeout", d.AgentTimeout)
	v.SetDefault("debate.stop_on_consensus", false)
	v.SetDefault("debate.debate_tool_budget", d.DebateToolBudget)

	v.SetDefault("consensus.detector", "exact")
	v.SetDefault("consensus.jaccard_threshold", debate.DefaultJaccardThreshold)

	v.SetDefault("mediator.kind", string(agents.KindOpenAI))
	v.SetDefault("mediator.name", "mediator")
	v.SetDefault("verification.enabled", false)

	v.SetDefault("tools.root", ".")
	v.SetDefault("tools.enabled", []string{"read_file", "search_files"})
	v.SetDefault("tools.timeout", 30*time.Second)
	v.SetDefault("tools.policy.enabled", false)
	v.SetDefault("tools.policy.mode", string(policy.ModeOff))
	v.SetDefault("tools.policy.path", "./config/policies")
	v.SetDefault("tools.policy.fail_closed", false)
	v.SetDefault("tools.policy.environment", "dev")

	v.SetDefault("streaming.capacity", 256)
	v.SetDefault("streaming.redis.enabled", false)
	v.SetDefault("streaming.redis.addr", "localhost:6379")
	v.SetDefault("streaming.redis.password", "")
	v.SetDefault("streaming.redis.db", 0)
	v.SetDefault("streaming.redis.max_len", 1000)
	v.SetDefault("streaming.redis.ttl", 24*time.Hour)

	v.SetDefault("server.addr", ":8081")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.request_timeout", 15*time.Minute)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "debate-engine")
	v.SetDefault("tracing.otlp_endpoint", "localhost:4317")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("personas.path", "")
}

// Load reads path (or Path() when empty) with DEBATE_ environment overrides. A
// missing file yields the defaults, which still need agents to validate.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field rules and fills agent IDs. Names stay empty so the
// engine can assign per-session display names.
func (c *Config) Validate() error {
	if len(c.Agents) == 0 {
		return fmt.Errorf("config: at least one agent is required")
	}
	seen := make(map[string]struct{}, len(c.Agents))
	for i := range c.Agents {
		a := &c.Agents[i]
		if a.ID == "" {
			a.ID = fmt.Sprintf("agent-%d", i+1)
		}
		if a.Kind == "" {
			return fmt.Errorf("config: agents[%d] (%s): kind is required", i, a.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return fmt.Errorf("config: duplicate agent id %q", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	if c.Mediator.Kind == "" {
		return fmt.Errorf("config: mediator.kind is required")
	}
	if c.Verification.Enabled && c.Verification.Capability.Kind == "" {
		return fmt.Errorf("config: verification.capability.kind is required when verification is enabled")
	}
	if c.Debate.MaxRounds < 1 {
		return fmt.Errorf("config: debate.max_rounds must be >= 1")
	}
	switch strings.ToLower(c.Consensus.Detector) {
	case "", "exact", "jaccard":
	default:
		return fmt.Errorf("config: unknown consensus detector %q", c.Consensus.Detector)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown logging level %q", c.Logging.Level)
	}
	c.Tools.Policy.Normalize()
	return nil
}
