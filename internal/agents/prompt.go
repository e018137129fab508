package agents

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/util"
)

const (
	maxEvidenceChars = 2000
	defaultSystem    = "You are a careful expert taking part in a structured discussion. Ground claims in evidence and cite sources where you can."
)

const responseFormat = `Respond with a single JSON object:
{"position": "<your answer, self-contained>",
 "confidence": <0.0-1.0>,
 "reasoning": "<why>",
 "citations": [{"type": "file|url|document", "source": "...", "excerpt": "...", "lineNumbers": [1]}],
 "codeTraces": ["<optional call paths or snippets>"],
 "toolRequests": [{"tool": "<name>", "parameters": {}}]}`

// BuildPrompt renders the system and user prompts for a call. Mediator and verifier
// calls pass the topic through verbatim; the caller has already composed it.
func BuildPrompt(topic string, dctx DebateContext, neighbors []PeerPosition) (system, user string) {
	if dctx.Role == RoleMediator || dctx.Role == RoleVerifier {
		system = dctx.Instructions
		if system == "" {
			system = defaultSystem
		}
		return system, topic
	}

	system = defaultSystem
	if dctx.Persona != nil && dctx.Persona.SystemPrompt != "" {
		system = dctx.Persona.SystemPrompt + "\n\n" + defaultSystem
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Task:\n%s\n\n", topic)

	if dctx.Round <= 1 {
		b.WriteString("Give your independent initial answer.\n\n")
	} else {
		fmt.Fprintf(&b, "Round %d of %d. Reconsider your answer in light of your peers. "+
			"Keep what holds up, fix what doesn't, and say so in your reasoning.\n\n", dctx.Round, dctx.MaxRounds)
		if dctx.Anchor != nil {
			fmt.Fprintf(&b, "Your initial answer:\n%s\n\n", dctx.Anchor.Position)
		}
		if dctx.Previous != nil && (dctx.Anchor == nil || dctx.Previous.Position != dctx.Anchor.Position) {
			fmt.Fprintf(&b, "Your latest answer (confidence %.2f):\n%s\n\n", dctx.Previous.Confidence, dctx.Previous.Position)
		}
		if len(neighbors) == 0 {
			b.WriteString("No peer answers are available this round.\n\n")
		}
		for i, n := range neighbors {
			fmt.Fprintf(&b, "Peer %d (confidence %.2f):\n%s\n", i+1, n.Confidence, n.Position)
			if n.Reasoning != "" {
				fmt.Fprintf(&b, "Reasoning: %s\n", n.Reasoning)
			}
			b.WriteString("\n")
		}
	}

	if len(dctx.Evidence) > 0 {
		b.WriteString("Shared tool evidence:\n")
		b.WriteString(FormatToolCalls(dctx.Evidence))
		b.WriteString("\n")
	}

	if len(dctx.Tools) > 0 {
		b.WriteString("Tools you may request (results arrive next round):\n")
		b.WriteString(FormatToolCatalog(dctx.Tools))
		b.WriteString("\n")
	}

	b.WriteString(responseFormat)
	return system, b.String()
}

// FormatToolCatalog lists tools one per line with their parameter schema.
func FormatToolCatalog(ts []tools.Tool) string {
	var b strings.Builder
	for _, t := range ts {
		fmt.Fprintf(&b, "- %s: %s", t.Name, t.Description)
		if len(t.ParameterSchema) > 0 {
			if schema, err := json.Marshal(t.ParameterSchema); err == nil {
				fmt.Fprintf(&b, " parameters=%s", schema)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatToolCalls renders executed tool calls as prompt text.
func FormatToolCalls(calls []tools.Call) string {
	var b strings.Builder
	for _, c := range calls {
		params, _ := json.Marshal(c.Request.Parameters)
		fmt.Fprintf(&b, "[%s %s] ", c.Request.Tool, params)
		if !c.Result.Success {
			fmt.Fprintf(&b, "FAILED: %s\n", c.Result.Error)
			continue
		}
		data, err := json.Marshal(c.Result.Data)
		if err != nil {
			data = []byte(fmt.Sprint(c.Result.Data))
		}
		b.WriteString(util.TruncateString(string(data), maxEvidenceChars, false))
		b.WriteString("\n")
	}
	return b.String()
}
