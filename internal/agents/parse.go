package agents

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/tools"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/util"
)

// DefaultConfidence is assigned when a model does not report one.
const DefaultConfidence = 0.5

var (
	fencePattern       = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	toolRequestPattern = regexp.MustCompile(`(?s)<tool_request>\s*(.*?)\s*</tool_request>`)
)

// ExtractJSON returns the first JSON object found in raw: a fenced block, the whole
// text, or the outermost {...} span. The bool is false if none is valid.
func ExtractJSON(raw string) (string, bool) {
	candidates := []string{}
	for _, m := range fencePattern.FindAllStringSubmatch(raw, -1) {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	candidates = append(candidates, strings.TrimSpace(raw))
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}
	for _, c := range candidates {
		if strings.HasPrefix(c, "{") && gjson.Valid(c) {
			return c, true
		}
	}
	return "", false
}

// ParseResponse converts raw model output into a DebateResponse. Unstructured output
// becomes the position verbatim with DefaultConfidence. It never fails.
func ParseResponse(raw string) *DebateResponse {
	resp := &DebateResponse{Raw: raw, Confidence: DefaultConfidence}
	resp.ToolRequests = ExtractToolRequests(raw)
	clean := StripToolRequests(raw)

	doc, ok := ExtractJSON(clean)
	if !ok {
		resp.Position = strings.TrimSpace(clean)
		return resp
	}

	root := gjson.Parse(doc)
	resp.Position = strings.TrimSpace(firstString(root, "position", "answer", "verifiedAnswer"))
	if resp.Position == "" {
		resp.Position = strings.TrimSpace(clean)
	}
	if c, ok := ParseConfidence(root.Get("confidence")); ok {
		resp.Confidence = c
	}
	resp.Reasoning = strings.TrimSpace(root.Get("reasoning").String())
	resp.Citations = ParseCitations(root.Get("citations"))
	root.Get("codeTraces").ForEach(func(_, v gjson.Result) bool {
		if s := strings.TrimSpace(v.String()); s != "" {
			resp.CodeTraces = append(resp.CodeTraces, s)
		}
		return true
	})
	return resp
}

// StripToolRequests removes tagged tool request blocks from raw.
func StripToolRequests(raw string) string {
	return toolRequestPattern.ReplaceAllString(raw, "")
}

// ParseConfidence reads a confidence value that may be a number, a numeric string or a
// percentage. Values in (1, 100] are treated as percentages.
func ParseConfidence(r gjson.Result) (float64, bool) {
	var v float64
	switch r.Type {
	case gjson.Number:
		v = r.Float()
	case gjson.String:
		f, ok := util.ParseNumericValue(r.String())
		if !ok {
			return 0, false
		}
		v = f
	default:
		return 0, false
	}
	if v > 1 && v <= 100 {
		v /= 100
	}
	return util.Clamp01(v), true
}

// ParseCitations reads a citations array. Plain strings become document citations;
// unknown types are classified by their source.
func ParseCitations(arr gjson.Result) []Citation {
	var out []Citation
	arr.ForEach(func(_, v gjson.Result) bool {
		var c Citation
		if v.Type == gjson.String {
			c.Source = strings.TrimSpace(v.String())
		} else {
			c.Type = CitationType(strings.ToLower(v.Get("type").String()))
			c.Source = strings.TrimSpace(firstString(v, "source", "path", "url", "file"))
			c.Excerpt = strings.TrimSpace(v.Get("excerpt").String())
			v.Get("lineNumbers").ForEach(func(_, n gjson.Result) bool {
				if n.Type == gjson.Number {
					c.LineNumbers = append(c.LineNumbers, int(n.Int()))
				}
				return true
			})
		}
		if c.Source == "" {
			return true
		}
		switch c.Type {
		case CitationFile, CitationURL, CitationDocument:
		default:
			c.Type = ClassifySource(c.Source)
		}
		out = append(out, c)
		return true
	})
	return out
}

// ClassifySource guesses the citation type from its source string.
func ClassifySource(src string) CitationType {
	switch {
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		return CitationURL
	case filePathPattern.MatchString(src):
		return CitationFile
	}
	return CitationDocument
}

var filePathPattern = regexp.MustCompile(`^[\w./-]+\.[A-Za-z0-9]{1,8}(:\d+(-\d+)?)?$`)

// ExtractToolRequests finds tool requests in both supported encodings: tagged
// <tool_request>{...}</tool_request> blocks and an embedded "toolRequests": [...] array.
// Requests without a tool name are dropped.
func ExtractToolRequests(raw string) []tools.Request {
	var out []tools.Request

	for _, m := range toolRequestPattern.FindAllStringSubmatch(raw, -1) {
		body := strings.TrimSpace(m[1])
		if !gjson.Valid(body) {
			continue
		}
		if r, ok := toolRequestFrom(gjson.Parse(body)); ok {
			out = append(out, r)
		}
	}

	clean := StripToolRequests(raw)
	arr := gjson.Result{}
	if doc, ok := ExtractJSON(clean); ok {
		arr = gjson.Get(doc, "toolRequests")
	}
	if !arr.Exists() {
		arr = embeddedArray(clean, `"toolRequests"`)
	}
	arr.ForEach(func(_, v gjson.Result) bool {
		if r, ok := toolRequestFrom(v); ok {
			out = append(out, r)
		}
		return true
	})
	return out
}

func toolRequestFrom(v gjson.Result) (tools.Request, bool) {
	name := strings.TrimSpace(firstString(v, "tool", "name"))
	if name == "" {
		return tools.Request{}, false
	}
	req := tools.Request{Tool: name, Parameters: map[string]interface{}{}}
	params := v.Get("parameters")
	if !params.Exists() {
		params = v.Get("params")
	}
	if m, ok := params.Value().(map[string]interface{}); ok {
		req.Parameters = m
	}
	return req, true
}

// embeddedArray finds the JSON array following key in free text.
func embeddedArray(text, key string) gjson.Result {
	i := strings.Index(text, key)
	if i < 0 {
		return gjson.Result{}
	}
	j := strings.Index(text[i:], "[")
	if j < 0 {
		return gjson.Result{}
	}
	arr := text[i+j:]
	end := matchingBracket(arr)
	if end < 0 || !gjson.Valid(arr[:end+1]) {
		return gjson.Result{}
	}
	return gjson.Parse(arr[:end+1])
}

func matchingBracket(s string) int {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; {
		case inString:
			if ch == '\\' {
				i++
			} else if ch == '"' {
				inString = false
			}
		case ch == '"':
			inString = true
		case ch == '[':
			depth++
		case ch == ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func firstString(r gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
