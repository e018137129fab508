package debate

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/util"
)

const mediatorSystemPrompt = "You write one clear, authoritative answer from several candidate answers. " +
	"Never mention that multiple answers, perspectives, agents, or a discussion were involved. " +
	"Write as if the answer were your own."

var bulletLine = regexp.MustCompile(`^\s*(?:[-*\x{2022}]|\d+[.)])\s+(.+)$`)

// BuildMediatorPrompt renders the synthesis request. Failed positions are left out.
func BuildMediatorPrompt(topic string, positions []Position, feedback string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Question:\n%s\n\n", topic)

	k := 0
	for _, p := range positions {
		if p.Failed() {
			continue
		}
		k++
		fmt.Fprintf(&b, "=== Perspective %d (confidence %.2f) ===\n%s\n", k, p.Confidence, strings.TrimSpace(p.Position))
		if p.Reasoning != "" {
			fmt.Fprintf(&b, "Reasoning: %s\n", p.Reasoning)
		}
		if len(p.Citations) > 0 {
			b.WriteString("Sources: ")
			b.WriteString(strings.Join(lo.Map(p.Citations, func(c agents.Citation, _ int) string { return c.Source }), ", "))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if fb := strings.TrimSpace(feedback); fb != "" {
		fmt.Fprintf(&b, "Reviewer guidance (follow it):\n%s\n\n", fb)
	}

	b.WriteString(`Combine the perspectives into a single answer. Resolve disagreements on the merits and keep only claims that are supported.
Do not refer to perspectives, agents, rounds or a debate.

Respond with JSON only:
{"answer": "<final answer>",
 "keyPoints": ["<short point>", "..."],
 "citations": [{"type": "file|url|document", "source": "...", "excerpt": "..."}],
 "confidence": <0.0-1.0>}`)
	return b.String()
}

// ParseSynthesis reads mediator output. Unstructured output becomes the answer as-is
// with bullet lines as best-effort key points. Missing citations and confidence are
// derived from the positions.
func ParseSynthesis(raw string, positions []Position) SynthesizedAnswer {
	out := SynthesizedAnswer{Source: "mediator", KeyPoints: []string{}}
	text := strings.TrimSpace(agents.StripToolRequests(raw))

	var root gjson.Result
	if doc, ok := agents.ExtractJSON(text); ok {
		if r := gjson.Parse(doc); r.Get("answer").Exists() {
			root = r
		}
	}

	if root.Exists() {
		out.Answer = strings.TrimSpace(root.Get("answer").String())
		root.Get("keyPoints").ForEach(func(_, v gjson.Result) bool {
			if s := strings.TrimSpace(v.String()); s != "" {
				out.KeyPoints = append(out.KeyPoints, s)
			}
			return true
		})
		out.Citations = agents.ParseCitations(root.Get("citations"))
		if conf, ok := agents.ParseConfidence(root.Get("confidence")); ok {
			out.Confidence = conf
		} else {
			out.Confidence = meanConfidence(positions)
		}
	} else {
		out.Answer = text
		for _, line := range strings.Split(text, "\n") {
			if m := bulletLine.FindStringSubmatch(line); m != nil {
				out.KeyPoints = append(out.KeyPoints, strings.TrimSpace(m[1]))
			}
		}
		out.Confidence = meanConfidence(positions)
	}

	if len(out.Citations) == 0 {
		out.Citations = unionCitations(positions)
	} else {
		out.Citations = lo.UniqBy(out.Citations, func(c agents.Citation) string { return c.Key() })
	}
	return out
}

// synthesize makes the single mediator call.
func (c *Coordinator) synthesize(ctx context.Context, s *Session, positions []Position, feedback string, usage *Usage) (*SynthesizedAnswer, error) {
	ctx, span := tracing.StartSpan(ctx, "debate.synthesis",
		attribute.String("session_id", s.ID),
		attribute.Bool("feedback", feedback != ""),
	)
	var spanErr error
	defer func() { tracing.EndSpan(span, spanErr) }()

	prompt := BuildMediatorPrompt(s.Topic, positions, feedback)
	if c.cfg.Debug {
		c.logger.Debug("Mediator prompt", zap.String("session_id", s.ID), zap.String("prompt", prompt))
	}

	start := time.Now()
	usage.MediatorCalls++
	resp, err := c.mediator.GenerateInitialPosition(tools.WithCaller(ctx, tools.Caller{
		SessionID: s.ID,
		AgentID:   "mediator",
		Phase:     string(PhaseSynthesis),
	}), prompt, agents.DebateContext{
		SessionID:    s.ID,
		AgentID:      "mediator",
		Role:         agents.RoleMediator,
		Round:        s.CurrentRound,
		MaxRounds:    c.cfg.MaxRounds,
		Instructions: mediatorSystemPrompt,
	})
	if err == nil && resp == nil {
		err = agents.ErrNoResponse
	}
	if err != nil {
		spanErr = err
		return nil, fmt.Errorf("%w: %v", ErrMediatorFailed, err)
	}

	raw := resp.Raw
	if raw == "" {
		raw = resp.Position
	}
	answer := ParseSynthesis(raw, positions)
	if answer.Answer == "" {
		spanErr = fmt.Errorf("empty mediator answer")
		return nil, fmt.Errorf("%w: empty answer", ErrMediatorFailed)
	}

	c.logger.Info("Synthesis complete",
		zap.String("session_id", s.ID),
		zap.Int("key_points", len(answer.KeyPoints)),
		zap.Float64("confidence", answer.Confidence),
		zap.Duration("duration", time.Since(start)),
	)
	return &answer, nil
}

func meanConfidence(positions []Position) float64 {
	live := lo.Filter(positions, func(p Position, _ int) bool { return !p.Failed() })
	if len(live) == 0 {
		return 0
	}
	return util.Clamp01(lo.SumBy(live, func(p Position) float64 { return p.Confidence }) / float64(len(live)))
}

func unionCitations(positions []Position) []agents.Citation {
	all := lo.FlatMap(positions, func(p Position, _ int) []agents.Citation {
		if p.Failed() {
			return nil
		}
		return p.Citations
	})
	out := lo.UniqBy(all, func(c agents.Citation) string { return c.Key() })
	if out == nil {
		out = []agents.Citation{}
	}
	return out
}
