package personas

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `
personas:
  auditor:
    description: "Checks every claim against sources"
    system_prompt: "Verify every claim."
    temperature: 0.2
    tools: ["read_file", "search_files"]
    keywords: ["code"]
    priority: 3
  architect:
    description: "Thinks in systems"
    temperature: 0.6
    keywords: ["design", "code"]
    priority: 2
rotation: ["architect", "auditor"]
`

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "personas.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadCatalog(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, catalogYAML))
	require.NoError(t, err)

	p, err := c.Get("auditor")
	require.NoError(t, err)
	assert.Equal(t, "auditor", p.ID)
	assert.True(t, p.AllowsTool("read_file"))
	assert.False(t, p.AllowsTool("web_fetch"))

	_, err = c.Get("nobody")
	assert.True(t, errors.Is(err, ErrPersonaNotFound))

	assert.Equal(t, "architect", c.Assign(0).ID)
	assert.Equal(t, "auditor", c.Assign(1).ID)
	assert.Equal(t, "architect", c.Assign(2).ID)
}

func TestLoadCatalogInvalid(t *testing.T) {
	_, err := LoadCatalog(writeCatalog(t, "personas:\n  x:\n    temperature: 0.5\n"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigInvalid))
	assert.Contains(t, err.Error(), "x.description")

	_, err = LoadCatalog(writeCatalog(t, catalogYAML+"\n"+"extra: [\n"))
	assert.Error(t, err)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCatalogList(t *testing.T) {
	c, err := LoadCatalog(writeCatalog(t, catalogYAML))
	require.NoError(t, err)

	all := c.List(nil)
	require.Len(t, all, 2)
	assert.Equal(t, "auditor", all[0].ID)

	design := c.List(&Filter{Keyword: "design"})
	require.Len(t, design, 1)
	assert.Equal(t, "architect", design[0].ID)

	tooled := c.List(&Filter{Tools: []string{"search_files"}})
	require.Len(t, tooled, 1)
	assert.Equal(t, "auditor", tooled[0].ID)
}

func TestDefaultCatalog(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())
	assert.Equal(t, "optimistic", c.Assign(0).ID)
	assert.Equal(t, "skeptical", c.Assign(1).ID)
	assert.Equal(t, "optimistic", c.Assign(5).ID)
}
