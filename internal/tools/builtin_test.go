package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
)

func workspace(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "queue"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "queue", "queue.go"),
		[]byte("package queue\n\n// Push appends.\nfunc Push() {}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# demo\nPush things\n"), 0o644))
	return root
}

func TestReadFileTool(t *testing.T) {
	root := workspace(t)
	_, h := ReadFileTool(root)
	ctx := context.Background()

	out, err := h(ctx, map[string]interface{}{"path": "pkg/queue/queue.go", "start_line": 3, "end_line": 4})
	require.NoError(t, err)
	content := out.(map[string]interface{})["content"].(string)
	assert.Equal(t, "3: // Push appends.\n4: func Push() {}\n", content)

	_, err = h(ctx, map[string]interface{}{"path": "../../etc/passwd"})
	assert.ErrorContains(t, err, "escapes workspace")

	_, err = h(ctx, map[string]interface{}{})
	assert.Error(t, err)
}

func TestSearchFilesTool(t *testing.T) {
	root := workspace(t)
	_, h := SearchFilesTool(root)
	ctx := context.Background()

	out, err := h(ctx, map[string]interface{}{"pattern": "**/*.go"})
	require.NoError(t, err)
	res := out.(map[string]interface{})
	assert.Equal(t, 1, res["count"])

	out, err = h(ctx, map[string]interface{}{"pattern": "**/*", "query": "Push"})
	require.NoError(t, err)
	res = out.(map[string]interface{})
	assert.Equal(t, 3, res["count"])

	_, err = h(ctx, map[string]interface{}{"pattern": "[broken"})
	assert.Error(t, err)
}

func TestWebFetchTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("queue docs"))
	}))
	defer srv.Close()

	client := circuitbreaker.NewHTTPWrapper(srv.Client(), "web-fetch-test", "tools", zaptest.NewLogger(t))
	_, h := WebFetchTool(client)
	ctx := context.Background()

	out, err := h(ctx, map[string]interface{}{"url": srv.URL + "/docs"})
	require.NoError(t, err)
	assert.Equal(t, "queue docs", out.(map[string]interface{})["content"])

	_, err = h(ctx, map[string]interface{}{"url": srv.URL + "/missing"})
	assert.ErrorContains(t, err, "HTTP 404")

	_, err = h(ctx, map[string]interface{}{"url": "file:///etc/passwd"})
	assert.ErrorContains(t, err, "invalid url")
}

func TestRegisterBuiltinsFilter(t *testing.T) {
	r := NewRegistry(nil)
	RegisterBuiltins(r, workspace(t), nil, []string{"read_file"})
	tools := r.Tools()
	require.Len(t, tools, 1)
	assert.Equal(t, "read_file", tools[0].Name)
}
