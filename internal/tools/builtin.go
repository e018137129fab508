package tools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/util"
)

const (
	defaultMaxBytes   = 64 * 1024
	defaultMaxResults = 50
)

// ReadFileTool reads a file under root, optionally restricted to a line range.
func ReadFileTool(root string) (Tool, Handler) {
	tool := Tool{
		Name:        "read_file",
		Description: "Read a text file from the workspace. Optional start_line/end_line (1-based, inclusive).",
		ParameterSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path":       map[string]interface{}{"type": "string"},
				"start_line": map[string]interface{}{"type": "integer"},
				"end_line":   map[string]interface{}{"type": "integer"},
			},
			"required": []string{"path"},
		},
	}

	return tool, func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		rel := stringParam(params, "path")
		if rel == "" {
			return nil, fmt.Errorf("path is required")
		}
		full, err := jail(root, rel)
		if err != nil {
			return nil, err
		}

		f, err := os.Open(full)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		start := intParam(params, "start_line", 1)
		end := intParam(params, "end_line", 0)
		if start < 1 {
			start = 1
		}

		var b strings.Builder
		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0
		for sc.Scan() {
			line++
			if line < start {
				continue
			}
			if end > 0 && line > end {
				break
			}
			fmt.Fprintf(&b, "%d: %s\n", line, sc.Text())
			if b.Len() > defaultMaxBytes {
				break
			}
		}
		if err := sc.Err(); err != nil {
			return nil, err
		}

		return map[string]interface{}{
			"path":    filepath.ToSlash(rel),
			"content": util.TruncateString(b.String(), defaultMaxBytes, true),
		}, nil
	}
}

// SearchFilesTool matches files under root with a doublestar glob and optionally greps
// them for a literal query.
func SearchFilesTool(root string) (Tool, Handler) {
	tool := Tool{
		Name:        "search_files",
		Description: "Find files by glob pattern (e.g. **/*.go) and optionally search their contents for a literal query.",
		ParameterSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern":     map[string]interface{}{"type": "string"},
				"query":       map[string]interface{}{"type": "string"},
				"max_results": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"pattern"},
		},
	}

	return tool, func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		pattern := stringParam(params, "pattern")
		if pattern == "" || !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid glob pattern %q", pattern)
		}
		query := stringParam(params, "query")
		limit := intParam(params, "max_results", defaultMaxResults)

		fsys := os.DirFS(root)
		paths, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, err
		}

		matches := make([]map[string]interface{}, 0)
		for _, p := range paths {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if len(matches) >= limit {
				break
			}
			if query == "" {
				matches = append(matches, map[string]interface{}{"path": p})
				continue
			}
			hits, err := grep(fsys, p, query, limit-len(matches))
			if err != nil {
				continue
			}
			matches = append(matches, hits...)
		}

		return map[string]interface{}{"matches": matches, "count": len(matches)}, nil
	}
}

// WebFetchTool fetches an http(s) URL through the shared circuit-breaking client.
func WebFetchTool(client *circuitbreaker.HTTPWrapper) (Tool, Handler) {
	tool := Tool{
		Name:        "web_fetch",
		Description: "Fetch the body of an http(s) URL as text.",
		ParameterSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"url": map[string]interface{}{"type": "string"},
			},
			"required": []string{"url"},
		},
	}

	return tool, func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		raw := stringParam(params, "url")
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid url %q", raw)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		tracing.InjectTraceparent(ctx, req)

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, defaultMaxBytes+1))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, u.Host)
		}

		return map[string]interface{}{
			"url":     u.String(),
			"status":  resp.StatusCode,
			"content": util.TruncateString(string(body), defaultMaxBytes, true),
		}, nil
	}
}

// RegisterBuiltins registers the workspace tools rooted at root and, if client is
// non-nil, web_fetch. Tools not listed in enabled are skipped; an empty list enables all.
func RegisterBuiltins(r *Registry, root string, client *circuitbreaker.HTTPWrapper, enabled []string) {
	allow := func(name string) bool {
		return len(enabled) == 0 || util.ContainsString(enabled, name)
	}
	if root != "" {
		if allow("read_file") {
			r.Register(ReadFileTool(root))
		}
		if allow("search_files") {
			r.Register(SearchFilesTool(root))
		}
	}
	if client != nil && allow("web_fetch") {
		r.Register(WebFetchTool(client))
	}
}

func jail(root, rel string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(absRoot, filepath.FromSlash(rel))
	if full != absRoot && !strings.HasPrefix(full, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace", rel)
	}
	return full, nil
}

func grep(fsys fs.FS, path, query string, limit int) ([]map[string]interface{}, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var hits []map[string]interface{}
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() && len(hits) < limit {
		line++
		if strings.Contains(sc.Text(), query) {
			hits = append(hits, map[string]interface{}{
				"path": path,
				"line": line,
				"text": util.TruncateString(strings.TrimSpace(sc.Text()), 200, true),
			})
		}
	}
	return hits, sc.Err()
}

func stringParam(params map[string]interface{}, key string) string {
	if v, ok := params[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func intParam(params map[string]interface{}, key string, def int) int {
	if v, ok := util.ParseNumericValue(params[key]); ok {
		return int(v)
	}
	return def
}
