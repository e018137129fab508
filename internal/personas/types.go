package personas

import "github.com/samber/lo"

// Persona is a debating stance applied to an agent through its system prompt.
type Persona struct {
	ID           string   `yaml:"id" json:"id"`
	Description  string   `yaml:"description" json:"description"`
	SystemPrompt string   `yaml:"system_prompt" json:"system_prompt"`
	Temperature  float64  `yaml:"temperature" json:"temperature"`
	MaxTokens    int      `yaml:"max_tokens" json:"max_tokens"`
	Tools        []string `yaml:"tools" json:"tools"`
	Keywords     []string `yaml:"keywords" json:"keywords"`
	Priority     int      `yaml:"priority" json:"priority"`
}

// Filter narrows List results.
type Filter struct {
	Keyword     string
	MinPriority int
	Tools       []string // persona must allow every listed tool
}

func (p *Persona) matches(f *Filter) bool {
	if f == nil {
		return true
	}
	if f.MinPriority > 0 && p.Priority < f.MinPriority {
		return false
	}
	if f.Keyword != "" && !lo.Contains(p.Keywords, f.Keyword) {
		return false
	}
	if len(f.Tools) > 0 && !lo.EveryBy(f.Tools, func(t string) bool { return lo.Contains(p.Tools, t) }) {
		return false
	}
	return true
}

// AllowsTool reports whether the persona permits tool. An empty tool list allows everything.
func (p *Persona) AllowsTool(tool string) bool {
	return len(p.Tools) == 0 || lo.Contains(p.Tools, tool)
}
