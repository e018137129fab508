package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestParseResponseStructured(t *testing.T) {
	raw := "Here is my answer:\n```json\n" + `{
  "position": "Use a bounded queue",
  "confidence": 0.82,
  "reasoning": "Backpressure keeps memory flat",
  "citations": [
    {"type": "file", "source": "pkg/queue/queue.go", "excerpt": "func Push", "lineNumbers": [12, 14]},
    {"source": "https://go.dev/doc/effective_go"},
    "Design doc v2"
  ],
  "codeTraces": ["Push -> grow"],
  "toolRequests": [{"tool": "read_file", "parameters": {"path": "pkg/queue/queue.go"}}]
}` + "\n```"

	resp := ParseResponse(raw)
	assert.Equal(t, "Use a bounded queue", resp.Position)
	assert.InDelta(t, 0.82, resp.Confidence, 1e-9)
	assert.Equal(t, "Backpressure keeps memory flat", resp.Reasoning)
	require.Len(t, resp.Citations, 3)
	assert.Equal(t, CitationFile, resp.Citations[0].Type)
	assert.Equal(t, []int{12, 14}, resp.Citations[0].LineNumbers)
	assert.Equal(t, CitationURL, resp.Citations[1].Type)
	assert.Equal(t, CitationDocument, resp.Citations[2].Type)
	assert.Equal(t, []string{"Push -> grow"}, resp.CodeTraces)
	require.Len(t, resp.ToolRequests, 1)
	assert.Equal(t, "read_file", resp.ToolRequests[0].Tool)
	assert.Equal(t, "pkg/queue/queue.go", resp.ToolRequests[0].Parameters["path"])
	assert.Equal(t, raw, resp.Raw)
}

func TestParseResponseUnstructured(t *testing.T) {
	resp := ParseResponse("  Paris is the capital of France.  ")
	assert.Equal(t, "Paris is the capital of France.", resp.Position)
	assert.Equal(t, DefaultConfidence, resp.Confidence)
	assert.Empty(t, resp.Citations)
}

func TestParseResponseTaggedToolRequestOnly(t *testing.T) {
	raw := "I need to look first.\n<tool_request>{\"tool\": \"search_files\", \"parameters\": {\"pattern\": \"**/*.go\"}}</tool_request>"
	resp := ParseResponse(raw)
	assert.Equal(t, "I need to look first.", resp.Position)
	require.Len(t, resp.ToolRequests, 1)
	assert.Equal(t, "search_files", resp.ToolRequests[0].Tool)
}

func TestParseConfidence(t *testing.T) {
	cases := map[string]float64{
		`{"c": 0.4}`:   0.4,
		`{"c": 85}`:    0.85,
		`{"c": "0.9"}`: 0.9,
		`{"c": "70%"}`: 0.7,
		`{"c": -3}`:    0,
		`{"c": 250}`:   1,
	}
	for doc, want := range cases {
		got, ok := ParseConfidence(gjson.Get(doc, "c"))
		assert.True(t, ok, doc)
		assert.InDelta(t, want, got, 1e-9, doc)
	}
	_, ok := ParseConfidence(gjson.Get(`{"c": "high"}`, "c"))
	assert.False(t, ok)
	_, ok = ParseConfidence(gjson.Get(`{}`, "c"))
	assert.False(t, ok)
}

func TestExtractToolRequestsBothEncodings(t *testing.T) {
	raw := `Checking two things.
<tool_request>{"tool": "read_file", "parameters": {"path": "a.go"}}</tool_request>
<tool_request>not json</tool_request>
<tool_request>{"parameters": {"path": "nameless"}}</tool_request>
Also "toolRequests": [{"tool": "web_fetch", "parameters": {"url": "https://example.com"}}, {"name": "search_files", "params": {"pattern": "*.md"}}]`

	reqs := ExtractToolRequests(raw)
	require.Len(t, reqs, 3)
	assert.Equal(t, "read_file", reqs[0].Tool)
	assert.Equal(t, "web_fetch", reqs[1].Tool)
	assert.Equal(t, "https://example.com", reqs[1].Parameters["url"])
	assert.Equal(t, "search_files", reqs[2].Tool)
	assert.Equal(t, "*.md", reqs[2].Parameters["pattern"])

	assert.Empty(t, ExtractToolRequests("no requests here"))
}

func TestExtractJSON(t *testing.T) {
	doc, ok := ExtractJSON(`prefix {"a": {"b": 1}} suffix`)
	require.True(t, ok)
	assert.Equal(t, `{"a": {"b": 1}}`, doc)

	_, ok = ExtractJSON("{not json}")
	assert.False(t, ok)
}

func TestClassifySource(t *testing.T) {
	assert.Equal(t, CitationURL, ClassifySource("https://example.com/x"))
	assert.Equal(t, CitationFile, ClassifySource("internal/debate/round.go:10-20"))
	assert.Equal(t, CitationDocument, ClassifySource("RFC 9110 section 4"))
}
