package personas

import (
	"fmt"
	"os"
	"sort"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Catalog is the set of personas available to a debate.
type Catalog struct {
	Personas map[string]*Persona `yaml:"personas"`
	// Rotation is the order used when agents do not name a persona.
	Rotation []string `yaml:"rotation"`
}

// LoadCatalog loads a persona catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{File: path, Cause: fmt.Errorf("failed to read config file: %w", err)}
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, &ConfigError{File: path, Cause: fmt.Errorf("failed to parse YAML: %w", err)}
	}
	if err := c.Validate(); err != nil {
		if ce, ok := err.(*ConfigError); ok {
			ce.File = path
		}
		return nil, err
	}
	return &c, nil
}

// Validate checks every persona and fills IDs from map keys.
func (c *Catalog) Validate() error {
	if len(c.Personas) == 0 {
		return &ConfigError{Field: "personas", Cause: fmt.Errorf("no personas defined")}
	}
	for id, p := range c.Personas {
		if p == nil {
			return &ConfigError{Field: id, Cause: fmt.Errorf("empty persona")}
		}
		if p.ID == "" {
			p.ID = id
		}
		if p.ID != id {
			return &ConfigError{Field: id, Cause: fmt.Errorf("persona ID mismatch: %s != %s", p.ID, id)}
		}
		if p.Description == "" {
			return &ConfigError{Field: id + ".description", Cause: fmt.Errorf("description is required")}
		}
		if p.Temperature < 0 || p.Temperature > 2 {
			return &ConfigError{Field: id + ".temperature", Cause: fmt.Errorf("temperature must be between 0 and 2, got %f", p.Temperature)}
		}
		if p.MaxTokens < 0 {
			return &ConfigError{Field: id + ".max_tokens", Cause: fmt.Errorf("max_tokens cannot be negative")}
		}
	}
	if missing := lo.Filter(c.Rotation, func(id string, _ int) bool { return c.Personas[id] == nil }); len(missing) > 0 {
		return &ConfigError{Field: "rotation", Cause: fmt.Errorf("unknown personas %v", missing)}
	}
	return nil
}

// Get retrieves a persona by ID
func (c *Catalog) Get(id string) (*Persona, error) {
	p, ok := c.Personas[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPersonaNotFound, id)
	}
	return p, nil
}

// List returns personas matching filter ordered by descending priority, then ID.
func (c *Catalog) List(filter *Filter) []*Persona {
	out := lo.Filter(lo.Values(c.Personas), func(p *Persona, _ int) bool { return p.matches(filter) })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Assign returns the persona for the i-th agent when it does not name one.
func (c *Catalog) Assign(i int) *Persona {
	order := c.Rotation
	if len(order) == 0 {
		order = lo.Map(c.List(nil), func(p *Persona, _ int) string { return p.ID })
	}
	if len(order) == 0 {
		return nil
	}
	return c.Personas[order[i%len(order)]]
}
