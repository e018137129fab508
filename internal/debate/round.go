package debate

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/util"
)

// roundState carries what a round needs from earlier rounds and what it spends.
type roundState struct {
	evidence   []tools.Call
	toolBudget int
	usage      *Usage
}

type agentOutcome struct {
	resp *agents.DebateResponse
	err  error
}

// runRound executes round r for every agent, joins all calls, fills gaps with
// carry-forward positions and runs any requested tools. The returned round always
// has one position per agent.
func (c *Coordinator) runRound(ctx context.Context, s *Session, r int, st *roundState) (Round, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "debate.round",
		attribute.String("session_id", s.ID),
		attribute.Int("round", r),
	)
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	s.CurrentRound = r
	c.emit(ctx, s, Event{Type: EventRoundStarted, Round: r})

	var prev, first []Position
	if len(s.Rounds) > 0 {
		prev = s.Rounds[len(s.Rounds)-1].Positions
		first = s.Rounds[0].Positions
	}

	var toolCatalog []tools.Tool
	if c.executor != nil && st.toolBudget > 0 {
		toolCatalog = c.cfg.Tools
	}

	n := len(s.Agents)
	outcomes := make([]agentOutcome, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range s.Agents {
		i := i
		agent := s.Agents[i]

		dctx := agents.DebateContext{
			SessionID: s.ID,
			AgentID:   agent.ID,
			Role:      agents.RoleDebater,
			Round:     r,
			MaxRounds: c.cfg.MaxRounds,
			Persona:   agent.Persona,
			Evidence:  st.evidence,
			Tools:     toolCatalog,
		}
		var neighbors []agents.PeerPosition
		if r > 1 {
			dctx.Anchor = Anchor(first, i)
			if !prev[i].Failed() {
				own := prev[i].Peer()
				dctx.Previous = &own
			}
			neighbors = Neighbors(prev, i)
		}

		g.Go(func() error {
			c.emit(gctx, s, Event{Type: EventAgentThinking, Round: r, AgentID: agent.ID})

			callCtx, cancel := context.WithTimeout(gctx, c.cfg.AgentTimeout)
			defer cancel()
			callCtx = tools.WithCaller(callCtx, tools.Caller{SessionID: s.ID, AgentID: agent.ID, Phase: string(PhaseDebate)})

			var resp *agents.DebateResponse
			var err error
			if r == 1 {
				resp, err = agent.Capability.GenerateInitialPosition(callCtx, s.Topic, dctx)
			} else {
				resp, err = agent.Capability.GenerateDebateResponse(callCtx, s.Topic, dctx, neighbors)
			}
			if err == nil && resp == nil {
				err = agents.ErrNoResponse
			}
			outcomes[i] = agentOutcome{resp: resp, err: err}
			// Failures are carried forward, never propagated.
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		spanErr = err
		return Round{}, err
	}

	round := Round{Round: r, Positions: make([]Position, n)}
	for i, agent := range s.Agents {
		st.usage.AgentCalls++
		out := outcomes[i]
		if out.err == nil {
			round.Positions[i] = freshPosition(agent, out.resp)
		} else {
			st.usage.FailedAgentCalls++
			round.Positions[i] = c.carryForward(s, r, i, prev, out.err)
		}

		p := round.Positions[i]
		c.emit(ctx, s, Event{
			Type:    EventPositionComplete,
			Round:   r,
			AgentID: agent.ID,
			Message: util.TruncateString(p.Position, 280, true),
			Data: map[string]interface{}{
				"status":     string(p.Status),
				"confidence": p.Confidence,
			},
		})
		if c.cfg.Debug {
			c.logger.Debug("Position",
				zap.String("session_id", s.ID),
				zap.Int("round", r),
				zap.String("agent_id", agent.ID),
				zap.String("status", string(p.Status)),
				zap.String("position", p.Position),
			)
		}
	}

	// Tools run after the join so every agent sees the same evidence next round.
	calls, err := c.executeRoundTools(ctx, s, r, outcomes, st)
	if err != nil {
		spanErr = err
		return Round{}, err
	}
	for _, call := range calls {
		for i := range round.Positions {
			if round.Positions[i].AgentID == call.AgentID && round.Positions[i].Status == StatusFresh {
				round.Positions[i].ToolCalls = append(round.Positions[i].ToolCalls, call)
			}
		}
	}
	round.ToolCalls = calls
	st.evidence = append(st.evidence, calls...)

	round.ConsensusReached = c.detector.Detect(round.Positions, n).Reached
	round.Timestamp = time.Now()

	metrics.RoundsCompleted.Inc()
	metrics.RoundDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("tool_calls", len(calls)),
		attribute.Bool("consensus", round.ConsensusReached),
	)
	return round, nil
}

func freshPosition(agent Agent, resp *agents.DebateResponse) Position {
	return Position{
		AgentID:    agent.ID,
		Name:       agent.Name,
		Position:   resp.Position,
		Confidence: util.Clamp01(resp.Confidence),
		Reasoning:  resp.Reasoning,
		Citations:  resp.Citations,
		CodeTraces: resp.CodeTraces,
		Status:     StatusFresh,
	}
}

// carryForward returns the agent's previous position marked stale, or a failure marker
// when it has none.
func (c *Coordinator) carryForward(s *Session, r, i int, prev []Position, cause error) Position {
	agent := s.Agents[i]
	metrics.StalePositions.Inc()

	if prev == nil || prev[i].Failed() {
		c.logger.Warn("Agent failed with no earlier position",
			zap.String("session_id", s.ID),
			zap.String("agent_id", agent.ID),
			zap.Int("round", r),
			zap.Error(cause),
		)
		return Position{
			AgentID:    agent.ID,
			Name:       agent.Name,
			Confidence: 0,
			Reasoning:  "agent failed: " + cause.Error(),
			Status:     StatusFailed,
		}
	}

	c.logger.Warn("Agent failed, carrying forward previous position",
		zap.String("session_id", s.ID),
		zap.String("agent_id", agent.ID),
		zap.Int("round", r),
		zap.Error(cause),
	)
	p := prev[i]
	p.Status = StatusStale
	return p
}

// executeRoundTools runs tool requests from this round's fresh responses in agent order
// within the remaining session budget. Only an executor error aborts the session.
func (c *Coordinator) executeRoundTools(ctx context.Context, s *Session, r int, outcomes []agentOutcome, st *roundState) ([]tools.Call, error) {
	if c.executor == nil {
		return nil, nil
	}
	var calls []tools.Call
	for i, out := range outcomes {
		if out.err != nil {
			continue
		}
		agentID := s.Agents[i].ID
		for _, req := range out.resp.ToolRequests {
			if st.toolBudget <= 0 {
				c.logger.Debug("Debate tool budget exhausted, dropping request",
					zap.String("session_id", s.ID),
					zap.String("agent_id", agentID),
					zap.String("tool", req.Tool),
				)
				continue
			}
			st.toolBudget--
			st.usage.ToolCalls++

			callCtx := tools.WithCaller(ctx, tools.Caller{SessionID: s.ID, AgentID: agentID, Phase: string(PhaseDebate)})
			res, err := c.executor.Execute(callCtx, req.Tool, req.Parameters)
			if err != nil {
				return nil, fmt.Errorf("%w: tool %s requested by %s: %w", ErrToolLoop, req.Tool, agentID, err)
			}
			calls = append(calls, tools.Call{AgentID: agentID, Round: r, Request: req, Result: res})
		}
	}
	return calls, nil
}
