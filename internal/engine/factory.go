// Package engine turns a loaded service configuration into ready-to-run debate
// coordinators. A Factory holds one immutable snapshot of built capabilities; config
// reloads swap the snapshot atomically so running sessions keep the agents they
// started with.
package engine

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/config"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/debate"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/personas"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/policy"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
)

type member struct {
	id         string
	name       string
	capability agents.Capability
	persona    *personas.Persona
}

type snapshot struct {
	cfg      config.Config
	members  []member
	mediator agents.Capability
	verifier agents.Capability
	detector debate.ConsensusDetector
	registry *tools.Registry
}

// Factory builds coordinators from the current configuration snapshot.
type Factory struct {
	mu     sync.RWMutex
	snap   *snapshot
	sink   debate.EventSink
	hitl   debate.HitlHandler
	logger *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithEventSink attaches sink to every coordinator the factory builds.
func WithEventSink(sink debate.EventSink) Option {
	return func(f *Factory) { f.sink = sink }
}

// WithHitlHandler attaches h to every coordinator the factory builds.
func WithHitlHandler(h debate.HitlHandler) Option {
	return func(f *Factory) { f.hitl = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) { f.logger = l }
}

// NewFactory builds the first snapshot from cfg.
func NewFactory(cfg *config.Config, opts ...Option) (*Factory, error) {
	f := &Factory{}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	if err := f.Apply(cfg); err != nil {
		return nil, err
	}
	return f, nil
}

// Apply rebuilds the snapshot from cfg. On error the previous snapshot stays active.
func (f *Factory) Apply(cfg *config.Config) error {
	snap, err := f.build(cfg)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.snap = snap
	f.mu.Unlock()
	f.logger.Info("Debate engine configured",
		zap.Int("agents", len(snap.members)),
		zap.String("detector", snap.detector.Name()),
		zap.Int("tools", len(snap.cfg.Debate.Tools)),
		zap.Bool("verification", snap.verifier != nil),
	)
	return nil
}

// Config returns a copy of the active configuration.
func (f *Factory) Config() config.Config {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snap.cfg
}

// Overrides adjusts per-request settings on top of the active configuration. Nil
// fields keep the configured value.
type Overrides struct {
	MaxRounds       *int  `json:"maxRounds,omitempty"`
	HitlEnabled     *bool `json:"hitlEnabled,omitempty"`
	StopOnConsensus *bool `json:"stopOnConsensus,omitempty"`
	Verify          *bool `json:"verify,omitempty"`
}

// Coordinator returns a coordinator for sessionID. Unnamed agents get display names
// derived from sessionID.
func (f *Factory) Coordinator(sessionID string, o Overrides) (*debate.Coordinator, error) {
	f.mu.RLock()
	snap := f.snap
	f.mu.RUnlock()

	cfg := snap.cfg.Debate
	if o.MaxRounds != nil {
		cfg.MaxRounds = *o.MaxRounds
	}
	if o.HitlEnabled != nil {
		cfg.HitlEnabled = *o.HitlEnabled
	}
	if o.StopOnConsensus != nil {
		cfg.StopOnConsensus = *o.StopOnConsensus
	}

	debaters := make([]debate.Agent, len(snap.members))
	for i, m := range snap.members {
		name := m.name
		if name == "" {
			name = agents.DisplayName(sessionID, i)
		}
		debaters[i] = debate.Agent{ID: m.id, Name: name, Capability: m.capability, Persona: m.persona}
	}

	opts := []debate.Option{
		debate.WithDetector(snap.detector),
		debate.WithLogger(f.logger),
	}
	if snap.registry != nil {
		opts = append(opts, debate.WithExecutor(snap.registry))
	}
	if snap.verifier != nil && (o.Verify == nil || *o.Verify) {
		opts = append(opts, debate.WithVerifier(snap.verifier))
	}
	if f.sink != nil {
		opts = append(opts, debate.WithEventSink(f.sink))
	}
	if f.hitl != nil {
		opts = append(opts, debate.WithHitlHandler(f.hitl))
	}
	return debate.NewCoordinator(cfg, debaters, snap.mediator, opts...)
}

func (f *Factory) build(cfg *config.Config) (*snapshot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("engine: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	snap := &snapshot{cfg: *cfg}

	catalog, err := loadCatalog(cfg.Personas.Path)
	if err != nil {
		return nil, err
	}

	for i, ac := range cfg.Agents {
		spec := ac.Spec
		if spec.Name == "" {
			spec.Name = ac.ID
		}
		capability, err := agents.Build(spec, cfg.Debate.Debug, f.logger.With(zap.String("agent_id", ac.ID)))
		if err != nil {
			return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
		}
		var persona *personas.Persona
		if ac.Persona != "" {
			if persona, err = catalog.Get(ac.Persona); err != nil {
				return nil, fmt.Errorf("agent %s: %w", ac.ID, err)
			}
		} else {
			persona = catalog.Assign(i)
		}
		snap.members = append(snap.members, member{id: ac.ID, name: ac.Name, capability: capability, persona: persona})
	}

	if snap.mediator, err = agents.Build(withName(cfg.Mediator, "mediator"), cfg.Debate.Debug, f.logger); err != nil {
		return nil, fmt.Errorf("mediator: %w", err)
	}
	if cfg.Verification.Enabled {
		if snap.verifier, err = agents.Build(withName(cfg.Verification.Capability, "verifier"), cfg.Debate.Debug, f.logger); err != nil {
			return nil, fmt.Errorf("verifier: %w", err)
		}
	}

	switch strings.ToLower(cfg.Consensus.Detector) {
	case "jaccard":
		snap.detector = debate.JaccardDetector{Threshold: cfg.Consensus.JaccardThreshold}
	default:
		snap.detector = debate.ExactMatchDetector{}
	}

	if snap.registry, err = f.buildRegistry(cfg.Tools); err != nil {
		return nil, err
	}
	if snap.registry != nil {
		snap.cfg.Debate.Tools = snap.registry.Tools()
	}
	return snap, nil
}

// buildRegistry returns nil when no tool is available. web_fetch must be listed
// explicitly.
func (f *Factory) buildRegistry(tc config.ToolsConfig) (*tools.Registry, error) {
	var client *circuitbreaker.HTTPWrapper
	if containsFold(tc.Enabled, "web_fetch") {
		client = circuitbreaker.NewHTTPWrapper(&http.Client{Timeout: tc.Timeout}, "web-fetch", "tools", f.logger)
	}
	opts := []tools.Option{}
	if tc.Timeout > 0 {
		opts = append(opts, tools.WithTimeout(tc.Timeout))
	}
	if tc.Policy.Enabled {
		pc := tc.Policy
		engine, err := policy.NewOPAEngine(&pc, f.logger)
		if err != nil {
			return nil, fmt.Errorf("tool policy: %w", err)
		}
		opts = append(opts, tools.WithPolicy(engine))
	}
	registry := tools.NewRegistry(f.logger, opts...)
	tools.RegisterBuiltins(registry, tc.Root, client, tc.Enabled)
	if len(registry.Tools()) == 0 {
		return nil, nil
	}
	return registry, nil
}

func loadCatalog(path string) (*personas.Catalog, error) {
	if path == "" {
		return personas.Default(), nil
	}
	c, err := personas.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("personas: %w", err)
	}
	return c, nil
}

func withName(spec agents.Spec, name string) agents.Spec {
	if spec.Name == "" {
		spec.Name = name
	}
	return spec
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
