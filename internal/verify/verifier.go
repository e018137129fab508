package verify

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/metrics"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
)

// DefaultMaxToolCalls bounds tool use in one verification pass.
const DefaultMaxToolCalls = 10

const systemPrompt = "You are an independent fact checker. You see only a question and a proposed answer. " +
	"Check every factual claim, use tools to gather evidence when available, and never invent sources."

// Config controls a verification pass.
type Config struct {
	MaxToolCalls int
	Tools        []tools.Tool
	Debug        bool
}

// Verifier re-checks a final answer in a fresh context with tool access.
type Verifier struct {
	capability agents.Capability
	executor   tools.Executor
	cfg        Config
	logger     *zap.Logger
}

// New creates a Verifier. executor may be nil, in which case tool requests are ignored.
func New(capability agents.Capability, executor tools.Executor, cfg Config, logger *zap.Logger) *Verifier {
	if cfg.MaxToolCalls <= 0 {
		cfg.MaxToolCalls = DefaultMaxToolCalls
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{capability: capability, executor: executor, cfg: cfg, logger: logger}
}

// Verify checks answer against topic. Only an unrecoverable tool failure or a cancelled
// context returns an error; every other failure degrades to manual extraction.
func (v *Verifier) Verify(ctx context.Context, topic, answer string) (*VerifiedAnswer, error) {
	ctx, span := tracing.StartSpan(ctx, "debate.verification",
		attribute.Int("max_tool_calls", v.cfg.MaxToolCalls),
	)
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	ctx = tools.WithCaller(ctx, tools.Caller{
		SessionID: tools.CallerFrom(ctx).SessionID,
		AgentID:   "verifier",
		Phase:     "verification",
	})

	base := v.basePrompt(topic, answer)
	raw, callErr := v.invoke(ctx, base)

	var transcript []tools.Call
	for callErr == nil && v.executor != nil {
		reqs := agents.ExtractToolRequests(raw)
		remaining := v.cfg.MaxToolCalls - len(transcript)
		if len(reqs) == 0 || remaining <= 0 {
			break
		}
		if len(reqs) > remaining {
			v.logger.Debug("Truncating verifier tool requests to remaining budget",
				zap.Int("requested", len(reqs)),
				zap.Int("remaining", remaining),
			)
			reqs = reqs[:remaining]
		}

		for _, req := range reqs {
			res, err := v.executor.Execute(ctx, req.Tool, req.Parameters)
			if err != nil {
				spanErr = err
				return nil, fmt.Errorf("verification tool %s: %w", req.Tool, err)
			}
			transcript = append(transcript, tools.Call{AgentID: "verifier", Request: req, Result: res})
		}

		exhausted := len(transcript) >= v.cfg.MaxToolCalls
		next, err := v.invoke(ctx, v.followUpPrompt(base, transcript, exhausted))
		if err != nil {
			// Keep the last good response for manual extraction.
			callErr = err
			break
		}
		raw = next
	}

	if err := ctx.Err(); err != nil {
		spanErr = err
		return nil, err
	}
	if callErr != nil {
		v.logger.Warn("Verifier call failed, falling back to manual extraction", zap.Error(callErr))
	}

	va, ok := Parse(raw, answer)
	if !ok {
		metrics.VerificationFallbacks.Inc()
		va = ExtractManual(raw, answer)
	}
	va.ToolCalls = len(transcript)
	if callErr != nil {
		va.Warnings = append(va.Warnings, "verifier call failed: "+callErr.Error())
	}
	if uncited := UncitedVerifiedClaims(va); len(uncited) > 0 {
		va.Warnings = append(va.Warnings, fmt.Sprintf("%d verified claim(s) lack a citation", len(uncited)))
	}
	for _, c := range va.Claims {
		metrics.VerifiedClaims.WithLabelValues(string(c.Status)).Inc()
	}

	span.SetAttributes(
		attribute.Int("tool_calls", va.ToolCalls),
		attribute.Int("claims", len(va.Claims)),
		attribute.Bool("structured", va.Structured),
	)
	return va, nil
}

func (v *Verifier) invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := v.capability.GenerateInitialPosition(ctx, prompt, agents.DebateContext{
		SessionID:    tools.CallerFrom(ctx).SessionID,
		AgentID:      "verifier",
		Role:         agents.RoleVerifier,
		Tools:        v.cfg.Tools,
		Instructions: systemPrompt,
	})
	if err != nil {
		return "", err
	}
	if resp == nil {
		return "", agents.ErrNoResponse
	}
	if resp.Raw != "" {
		return resp.Raw, nil
	}
	return resp.Position, nil
}

func (v *Verifier) basePrompt(topic, answer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\nProposed answer:\n%s\n\n", topic, answer)
	b.WriteString("Break the answer into factual claims and check each one.\n\n")

	if v.executor != nil && len(v.cfg.Tools) > 0 {
		b.WriteString("Tools:\n")
		b.WriteString(agents.FormatToolCatalog(v.cfg.Tools))
		fmt.Fprintf(&b, "\nTo use tools, include <tool_request>{\"tool\": \"name\", \"parameters\": {...}}</tool_request> blocks "+
			"or a \"toolRequests\": [...] array. You may use at most %d tool calls in total.\n\n", v.cfg.MaxToolCalls)
	}

	b.WriteString(`When you are done, respond with JSON only:
{"verifiedAnswer": "<the answer with any corrections applied>",
 "claims": [{"claim": "...", "status": "verified|unverified|incorrect",
             "citation": {"type": "file|url|document", "source": "...", "excerpt": "...", "lineNumbers": [1]},
             "correction": "<only for incorrect claims>"}],
 "corrections": ["..."],
 "citations": [{"type": "...", "source": "..."}]}`)
	return b.String()
}

func (v *Verifier) followUpPrompt(base string, transcript []tools.Call, exhausted bool) string {
	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nTool results so far:\n")
	b.WriteString(agents.FormatToolCalls(transcript))
	if exhausted {
		b.WriteString("\nThe tool budget is exhausted. Do not request more tools; give your final JSON now.")
	} else {
		fmt.Fprintf(&b, "\n%d tool call(s) remain. Request more tools or give your final JSON.",
			v.cfg.MaxToolCalls-len(transcript))
	}
	return b.String()
}
