package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/tracing"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/util"
)

// HTTPBackend posts prompts to an LLM service's /agent/query endpoint.
type HTTPBackend struct {
	baseURL   string
	modelTier string
	client    *circuitbreaker.HTTPWrapper
}

// NewHTTPBackend creates a backend for the service at baseURL.
func NewHTTPBackend(baseURL, modelTier string, client *circuitbreaker.HTTPWrapper) *HTTPBackend {
	if modelTier == "" {
		modelTier = "medium"
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), modelTier: modelTier, client: client}
}

type agentQueryResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
	Error    string `json:"error"`
}

// Complete sends one query and returns the response text.
func (b *HTTPBackend) Complete(ctx context.Context, c Completion) (string, error) {
	body := map[string]interface{}{
		"query":       c.User,
		"temperature": c.Temperature,
		"agent_id":    c.AgentID,
		"model_tier":  b.modelTier,
		"context": map[string]interface{}{
			"system_prompt": c.System,
			"session_id":    c.SessionID,
		},
	}
	if c.MaxTokens > 0 {
		body["max_tokens"] = c.MaxTokens
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/agent/query", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.AgentID != "" {
		req.Header.Set("X-Agent-ID", c.AgentID)
	}
	if c.SessionID != "" {
		req.Header.Set("X-Session-ID", c.SessionID)
	}
	tracing.InjectTraceparent(ctx, req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM service call failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("HTTP %d from LLM service: %s", resp.StatusCode, util.TruncateString(string(snippet), 200, false))
	}

	var out agentQueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to parse LLM response: %w", err)
	}
	if !out.Success && out.Error != "" {
		return "", fmt.Errorf("LLM service error: %s", out.Error)
	}
	return out.Response, nil
}
