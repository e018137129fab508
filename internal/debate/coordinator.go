package debate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/verify"
)

// Coordinator drives debate sessions. It holds no per-session state, so one
// Coordinator may run several sessions concurrently.
type Coordinator struct {
	cfg      Config
	agents   []Agent
	mediator agents.Capability
	verifier agents.Capability
	executor tools.Executor
	sink     EventSink
	detector ConsensusDetector
	hitl     HitlHandler
	logger   *zap.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithVerifier enables the verification pass with the given capability.
func WithVerifier(v agents.Capability) Option {
	return func(c *Coordinator) { c.verifier = v }
}

// WithExecutor gives debaters and the verifier access to tools.
func WithExecutor(e tools.Executor) Option {
	return func(c *Coordinator) { c.executor = e }
}

// WithEventSink streams session events to sink.
func WithEventSink(sink EventSink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

// WithDetector replaces the default ExactMatchDetector.
func WithDetector(d ConsensusDetector) Option {
	return func(c *Coordinator) { c.detector = d }
}

// WithHitlHandler sets the escalation handler used when HitlEnabled is set.
func WithHitlHandler(h HitlHandler) Option {
	return func(c *Coordinator) { c.hitl = h }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// NewCoordinator validates cfg against the agents and returns a Coordinator.
func NewCoordinator(cfg Config, debaters []Agent, mediator agents.Capability, opts ...Option) (*Coordinator, error) {
	if len(debaters) == 0 {
		return nil, fmt.Errorf("%w: at least one agent is required", ErrInvalidConfig)
	}
	if mediator == nil {
		return nil, fmt.Errorf("%w: mediator capability is required", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(debaters))
	for i, a := range debaters {
		if strings.TrimSpace(a.ID) == "" {
			return nil, fmt.Errorf("%w: agent %d has no id", ErrInvalidConfig, i)
		}
		if a.Capability == nil {
			return nil, fmt.Errorf("%w: agent %s has no capability", ErrInvalidConfig, a.ID)
		}
		if _, dup := seen[a.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate agent id %s", ErrInvalidConfig, a.ID)
		}
		seen[a.ID] = struct{}{}
	}

	normalized, err := cfg.normalize(len(debaters))
	if err != nil {
		return nil, err
	}

	c := &Coordinator{
		cfg:      normalized,
		agents:   append([]Agent(nil), debaters...),
		mediator: mediator,
		detector: ExactMatchDetector{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.cfg.HitlEnabled && c.hitl == nil {
		c.logger.Warn("HITL enabled without a handler; escalation will be skipped")
	}
	return c, nil
}

// Config returns the normalized configuration.
func (c *Coordinator) Config() Config { return c.cfg }

// Run debates topic under a fresh session ID.
func (c *Coordinator) Run(ctx context.Context, topic string) (*Result, error) {
	return c.RunSession(ctx, uuid.New().String(), topic)
}

// RunSession debates topic under sessionID. The result is never nil; the error is
// non-nil only when the session ends in the error phase, in which case the result
// still carries every closed round.
func (c *Coordinator) RunSession(ctx context.Context, sessionID, topic string) (*Result, error) {
	s := &Session{
		ID:        sessionID,
		Topic:     topic,
		Phase:     PhaseInitial,
		Agents:    c.agents,
		Config:    c.cfg,
		StartTime: time.Now(),
	}
	res := &Result{SessionID: s.ID, Topic: topic, StartTime: s.StartTime, Rounds: []Round{}}

	ctx, span := tracing.StartSpan(ctx, "debate.session",
		attribute.String("session_id", s.ID),
		attribute.Int("agents", len(s.Agents)),
		attribute.Int("max_rounds", c.cfg.MaxRounds),
	)
	ctx = tools.WithCaller(ctx, tools.Caller{SessionID: s.ID, Phase: string(PhaseInitial)})

	metrics.DebatesStarted.Inc()
	metrics.ActiveDebates.Inc()
	defer metrics.ActiveDebates.Dec()

	c.logger.Info("Starting debate",
		zap.String("session_id", s.ID),
		zap.Int("agents", len(s.Agents)),
		zap.Int("max_rounds", c.cfg.MaxRounds),
		zap.Bool("hitl_enabled", c.cfg.HitlEnabled),
		zap.Bool("verification", c.verifier != nil),
	)
	c.emit(ctx, s, Event{
		Type:    EventSessionStarted,
		Message: topic,
		Data:    map[string]interface{}{"agents": len(s.Agents), "maxRounds": c.cfg.MaxRounds},
	})

	err := c.run(ctx, s, res)

	s.EndTime = time.Now()
	res.Rounds = append(res.Rounds, s.Rounds...)
	res.EndTime = s.EndTime
	res.Duration = s.EndTime.Sub(s.StartTime)

	if err != nil {
		s.Error = err
		if terr := c.transition(ctx, s, PhaseError); terr != nil {
			c.logger.Error("Failed to enter error phase", zap.String("session_id", s.ID), zap.Error(terr))
		}
		res.Error = err.Error()
		c.logger.Error("Debate failed",
			zap.String("session_id", s.ID),
			zap.Int("rounds", len(s.Rounds)),
			zap.Error(err),
		)
		c.emit(ctx, s, Event{Type: EventError, Message: err.Error()})
	}
	res.Phase = s.Phase

	c.emit(ctx, s, Event{
		Type:    EventDebateComplete,
		Message: res.FinalAnswer(),
		Data: map[string]interface{}{
			"consensusReached": res.ConsensusReached,
			"hitlInvoked":      res.HitlInvoked,
			"rounds":           len(res.Rounds),
			"durationMs":       res.Duration.Milliseconds(),
		},
	})
	metrics.RecordSessionMetrics(string(res.Phase), res.ConsensusReached, res.Duration.Seconds())
	span.SetAttributes(
		attribute.String("phase", string(res.Phase)),
		attribute.Bool("consensus", res.ConsensusReached),
		attribute.Int("rounds", len(res.Rounds)),
	)
	tracing.EndSpan(span, err)

	if err == nil {
		c.logger.Info("Debate complete",
			zap.String("session_id", s.ID),
			zap.Int("rounds", len(res.Rounds)),
			zap.Bool("consensus", res.ConsensusReached),
			zap.Bool("hitl_invoked", res.HitlInvoked),
			zap.Duration("duration", res.Duration),
		)
	}
	return res, err
}

func (c *Coordinator) run(ctx context.Context, s *Session, res *Result) error {
	st := &roundState{toolBudget: c.cfg.DebateToolBudget, usage: &res.Usage}

	// Round 1: independent initial positions.
	first, err := c.runRound(ctx, s, 1, st)
	if err != nil {
		return err
	}
	s.Rounds = append(s.Rounds, first)
	c.emitRoundComplete(ctx, s, first)

	succeeded := 0
	for _, p := range first.Positions {
		if !p.Failed() {
			succeeded++
		}
	}
	if succeeded < c.cfg.Quorum {
		return fmt.Errorf("%w: %d of %d agents produced an initial position, need %d",
			ErrQuorumNotMet, succeeded, len(s.Agents), c.cfg.Quorum)
	}

	if err := c.transition(ctx, s, PhaseDebate); err != nil {
		return err
	}
	for r := 2; r <= c.cfg.MaxRounds; r++ {
		if c.cfg.StopOnConsensus && s.Rounds[len(s.Rounds)-1].ConsensusReached {
			c.logger.Info("Consensus reached, ending refinement early",
				zap.String("session_id", s.ID),
				zap.Int("round", r-1),
			)
			break
		}
		round, err := c.runRound(ctx, s, r, st)
		if err != nil {
			return err
		}
		s.Rounds = append(s.Rounds, round)
		c.emitRoundComplete(ctx, s, round)
	}

	if err := c.transition(ctx, s, PhaseConsensus); err != nil {
		return err
	}
	final := s.Rounds[len(s.Rounds)-1]
	cr := c.detector.Detect(final.Positions, len(s.Agents))
	res.ConsensusReached = cr.Reached
	res.ConsensusReason = cr.Reason
	metrics.RecordConsensus(c.detector.Name(), cr.Reached)
	c.logger.Info("Consensus check",
		zap.String("session_id", s.ID),
		zap.String("detector", c.detector.Name()),
		zap.Bool("reached", cr.Reached),
		zap.Float64("divergence", cr.Divergence),
		zap.String("reason", cr.Reason),
	)

	var answer *SynthesizedAnswer
	var feedback string
	if c.shouldEscalate(cr) {
		if err := c.transition(ctx, s, PhaseHitl); err != nil {
			return err
		}
		res.HitlInvoked = true
		state := State{SessionID: s.ID, Topic: s.Topic, Round: final.Round, Positions: final.Positions, Consensus: cr}
		c.emit(ctx, s, Event{
			Type:    EventHitlRequested,
			Round:   final.Round,
			Message: cr.Reason,
			Data:    map[string]interface{}{"divergence": cr.Divergence},
		})

		decision, err := c.hitl(ctx, state)
		switch {
		case err != nil && ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			metrics.HitlRequests.WithLabelValues("error").Inc()
			c.logger.Warn("HITL handler failed, continuing with synthesis",
				zap.String("session_id", s.ID),
				zap.Error(err),
			)
		default:
			answer = c.applyDecision(s, decision, final.Positions)
			feedback = decision.Feedback
		}
	}

	if answer == nil {
		if err := c.transition(ctx, s, PhaseSynthesis); err != nil {
			return err
		}
		answer, err = c.synthesize(ctx, s, final.Positions, feedback, &res.Usage)
		if err != nil {
			return err
		}
	}
	res.Synthesized = answer

	if c.verifier != nil {
		if err := c.transition(ctx, s, PhaseVerification); err != nil {
			return err
		}
		va, err := c.verify(ctx, s, answer.Answer, res)
		if err != nil {
			return err
		}
		res.Verified = va
	}

	return c.transition(ctx, s, PhaseComplete)
}

// verify runs the history-free verification pass on answer.
func (c *Coordinator) verify(ctx context.Context, s *Session, answer string, res *Result) (*verify.VerifiedAnswer, error) {
	counted := &countingCapability{Capability: c.verifier}
	v := verify.New(counted, c.executor, verify.Config{
		MaxToolCalls: c.cfg.MaxToolCalls,
		Tools:        c.cfg.Tools,
		Debug:        c.cfg.Debug,
	}, c.logger)

	va, err := v.Verify(ctx, s.Topic, answer)
	res.Usage.VerifierCalls += counted.calls
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrToolLoop, err)
	}
	res.Usage.ToolCalls += va.ToolCalls

	for _, claim := range va.Claims {
		data := map[string]interface{}{"status": string(claim.Status)}
		if claim.Citation != nil {
			data["citation"] = claim.Citation.Source
		}
		if claim.Correction != "" {
			data["correction"] = claim.Correction
		}
		c.emit(ctx, s, Event{Type: EventVerificationClaim, Message: claim.Claim, Data: data})
	}
	for _, w := range va.Warnings {
		c.logger.Warn("Verification warning", zap.String("session_id", s.ID), zap.String("warning", w))
	}
	return va, nil
}

func (c *Coordinator) transition(ctx context.Context, s *Session, to Phase) error {
	from := s.Phase
	if from == to {
		return nil
	}
	if err := s.transition(to); err != nil {
		return fmt.Errorf("%w: %s -> %s", err, from, to)
	}
	metrics.PhaseTransitions.WithLabelValues(string(from), string(to)).Inc()
	c.logger.Debug("Phase transition",
		zap.String("session_id", s.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	c.emit(ctx, s, Event{Type: EventPhaseChanged, Message: string(to), Data: map[string]interface{}{"from": string(from)}})
	return nil
}

func (c *Coordinator) emitRoundComplete(ctx context.Context, s *Session, r Round) {
	stale, failed := 0, 0
	for _, p := range r.Positions {
		switch p.Status {
		case StatusStale:
			stale++
		case StatusFailed:
			failed++
		}
	}
	c.emit(ctx, s, Event{
		Type:  EventRoundComplete,
		Round: r.Round,
		Data: map[string]interface{}{
			"consensusReached": r.ConsensusReached,
			"toolCalls":        len(r.ToolCalls),
			"stale":            stale,
			"failed":           failed,
		},
	})
}

func (c *Coordinator) emit(ctx context.Context, s *Session, evt Event) {
	if c.sink == nil {
		return
	}
	evt.SessionID = s.ID
	if evt.Phase == "" {
		evt.Phase = s.Phase
	}
	evt.Timestamp = time.Now()
	c.sink.Emit(ctx, evt)
}

// countingCapability counts verifier invocations. The verifier calls it sequentially.
type countingCapability struct {
	agents.Capability
	calls int
}

func (c *countingCapability) GenerateInitialPosition(ctx context.Context, topic string, dctx agents.DebateContext) (*agents.DebateResponse, error) {
	c.calls++
	return c.Capability.GenerateInitialPosition(ctx, topic, dctx)
}
