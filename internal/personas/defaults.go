package personas

// Default returns the built-in debating perspectives.
func Default() *Catalog {
	mk := func(id, desc, prompt string, temp float64) *Persona {
		return &Persona{ID: id, Description: desc, SystemPrompt: prompt, Temperature: temp}
	}
	return &Catalog{
		Personas: map[string]*Persona{
			"optimistic": mk("optimistic", "Looks for the strongest case in favour",
				"You argue from an optimistic perspective. Identify opportunities and the strongest arguments in favour, but stay factual.", 0.7),
			"skeptical": mk("skeptical", "Challenges assumptions and looks for failure modes",
				"You argue from a skeptical perspective. Challenge assumptions, look for weak evidence and failure modes.", 0.5),
			"practical": mk("practical", "Focuses on feasibility and implementation cost",
				"You argue from a practical perspective. Focus on feasibility, cost and what can be implemented today.", 0.4),
			"innovative": mk("innovative", "Proposes unconventional alternatives",
				"You argue from an innovative perspective. Propose unconventional alternatives and new framings.", 0.9),
			"conservative": mk("conservative", "Prefers proven, low-risk approaches",
				"You argue from a conservative perspective. Prefer proven, low-risk approaches and established practice.", 0.3),
		},
		Rotation: []string{"optimistic", "skeptical", "practical", "innovative", "conservative"},
	}
}
