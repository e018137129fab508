package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	DebatesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_sessions_started_total",
			Help: "Total number of debate sessions started",
		},
	)

	DebatesCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_sessions_completed_total",
			Help: "Total number of debate sessions finished, by terminal phase",
		},
		[]string{"phase", "consensus"},
	)

	DebateDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debate_session_duration_seconds",
			Help:    "Debate session duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"phase"},
	)

	ActiveDebates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "debate_sessions_active",
			Help: "Number of debate sessions currently running",
		},
	)

	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_phase_transitions_total",
			Help: "Total number of phase transitions",
		},
		[]string{"from", "to"},
	)

	// Round metrics
	RoundsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_rounds_completed_total",
			Help: "Total number of debate rounds closed",
		},
	)

	RoundDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "debate_round_duration_seconds",
			Help:    "Wall time of one round fan-out including tool merge",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Agent metrics
	AgentCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_agent_calls_total",
			Help: "Total number of capability invocations",
		},
		[]string{"role", "status"},
	)

	AgentCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debate_agent_call_duration_seconds",
			Help:    "Capability invocation latency",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"role"},
	)

	StalePositions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_stale_positions_total",
			Help: "Positions carried forward because the agent failed or timed out",
		},
	)

	// Consensus / HITL
	ConsensusReached = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_consensus_checks_total",
			Help: "Consensus detector evaluations by result",
		},
		[]string{"detector", "reached"},
	)

	HitlRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_hitl_requests_total",
			Help: "Human-in-the-loop escalations by outcome",
		},
		[]string{"outcome"},
	)

	// Tool metrics
	ToolExecutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_tool_executions_total",
			Help: "Tool executions by tool and status",
		},
		[]string{"tool", "status"},
	)

	ToolExecutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "debate_tool_execution_duration_seconds",
			Help:    "Tool execution latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	// Verification metrics
	VerifiedClaims = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_verification_claims_total",
			Help: "Claims produced by the verification pass by status",
		},
		[]string{"status"},
	)

	VerificationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "debate_verification_manual_fallbacks_total",
			Help: "Verification responses that required manual extraction",
		},
	)

	// Streaming metrics
	StreamEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "debate_stream_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full",
		},
		[]string{"type"},
	)
)

// RecordSessionMetrics records metrics for a finished session
func RecordSessionMetrics(phase string, consensus bool, durationSeconds float64) {
	DebatesCompleted.WithLabelValues(phase, boolLabel(consensus)).Inc()
	DebateDuration.WithLabelValues(phase).Observe(durationSeconds)
}

// RecordAgentCall records one capability invocation
func RecordAgentCall(role string, success bool, durationSeconds float64) {
	status := "success"
	if !success {
		status = "failure"
	}
	AgentCalls.WithLabelValues(role, status).Inc()
	AgentCallDuration.WithLabelValues(role).Observe(durationSeconds)
}

// RecordToolExecution records one tool execution
func RecordToolExecution(tool, status string, durationSeconds float64) {
	ToolExecutions.WithLabelValues(tool, status).Inc()
	if durationSeconds > 0 {
		ToolExecutionDuration.WithLabelValues(tool).Observe(durationSeconds)
	}
}

// RecordConsensus records a detector evaluation
func RecordConsensus(detector string, reached bool) {
	ConsensusReached.WithLabelValues(detector, boolLabel(reached)).Inc()
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
