package health

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
)

// RedisHealthChecker checks connectivity of the Redis event mirror
type RedisHealthChecker struct {
	wrapper  *circuitbreaker.RedisWrapper
	logger   *zap.Logger
	timeout  time.Duration
	critical bool
}

// NewRedisHealthChecker creates a Redis health checker. The mirror only backs
// cross-process replay, so it is non-critical unless critical is set.
func NewRedisHealthChecker(wrapper *circuitbreaker.RedisWrapper, critical bool, logger *zap.Logger) *RedisHealthChecker {
	return &RedisHealthChecker{
		wrapper:  wrapper,
		logger:   logger,
		timeout:  5 * time.Second,
		critical: critical,
	}
}

func (r *RedisHealthChecker) Name() string           { return "redis" }
func (r *RedisHealthChecker) IsCritical() bool       { return r.critical }
func (r *RedisHealthChecker) Timeout() time.Duration { return r.timeout }

func (r *RedisHealthChecker) Check(ctx context.Context) CheckResult {
	startTime := time.Now()
	result := CheckResult{Component: "redis", Critical: r.critical, Timestamp: startTime}

	// Check circuit breaker state
	if r.wrapper.IsCircuitBreakerOpen() {
		result.Status = StatusUnhealthy
		result.Error = "circuit breaker open"
		result.Message = "Redis circuit breaker is open"
		result.Duration = time.Since(startTime)
		return result
	}

	err := r.wrapper.Ping(ctx)
	result.Duration = time.Since(startTime)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "Redis ping failed"
		result.Details = map[string]interface{}{"latency_ms": result.Duration.Milliseconds()}
		return result
	}

	// Check if degraded (high latency)
	if result.Duration > 100*time.Millisecond {
		result.Status = StatusDegraded
		result.Message = "Redis responding but with high latency"
	} else {
		result.Status = StatusHealthy
		result.Message = "Redis healthy"
	}
	result.Details = map[string]interface{}{
		"latency_ms":           result.Duration.Milliseconds(),
		"circuit_breaker_open": false,
	}
	return result
}

// LLMServiceHealthChecker probes the health endpoint of an HTTP LLM backend
type LLMServiceHealthChecker struct {
	name    string
	baseURL string
	client  *http.Client
	logger  *zap.Logger
	timeout time.Duration
}

// NewLLMServiceHealthChecker creates an LLM service health checker for baseURL.
func NewLLMServiceHealthChecker(name, baseURL string, logger *zap.Logger) *LLMServiceHealthChecker {
	return &LLMServiceHealthChecker{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

func (l *LLMServiceHealthChecker) Name() string           { return "llm_service:" + l.name }
func (l *LLMServiceHealthChecker) IsCritical() bool       { return false } // Non-critical, agents fail over or go stale
func (l *LLMServiceHealthChecker) Timeout() time.Duration { return l.timeout }

func (l *LLMServiceHealthChecker) Check(ctx context.Context) CheckResult {
	startTime := time.Now()
	result := CheckResult{Component: l.Name(), Timestamp: startTime}
	result.Details = map[string]interface{}{"base_url": l.baseURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.baseURL+"/health", nil)
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		return result
	}
	resp, err := l.client.Do(req)
	result.Duration = time.Since(startTime)
	result.Details["latency_ms"] = result.Duration.Milliseconds()
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		result.Message = "LLM service unreachable"
		return result
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		result.Status = StatusUnhealthy
		result.Error = fmt.Sprintf("status %d", resp.StatusCode)
		result.Message = "LLM service reported unhealthy"
		return result
	}
	result.Status = StatusHealthy
	result.Message = "LLM service healthy"
	return result
}

// CustomHealthChecker allows for custom health check logic
type CustomHealthChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	checkFn  func(ctx context.Context) CheckResult
}

// NewCustomHealthChecker creates a custom health checker
func NewCustomHealthChecker(name string, critical bool, timeout time.Duration, checkFn func(ctx context.Context) CheckResult) *CustomHealthChecker {
	return &CustomHealthChecker{
		name:     name,
		critical: critical,
		timeout:  timeout,
		checkFn:  checkFn,
	}
}

func (c *CustomHealthChecker) Name() string           { return c.name }
func (c *CustomHealthChecker) IsCritical() bool       { return c.critical }
func (c *CustomHealthChecker) Timeout() time.Duration { return c.timeout }

func (c *CustomHealthChecker) Check(ctx context.Context) CheckResult {
	return c.checkFn(ctx)
}
