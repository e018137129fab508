package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
)

func fixed(name string, critical bool, status CheckStatus) Checker {
	return NewCustomHealthChecker(name, critical, time.Second, func(context.Context) CheckResult {
		return CheckResult{Status: status}
	})
}

func TestManagerAggregation(t *testing.T) {
	cases := []struct {
		name     string
		checkers []Checker
		want     CheckStatus
		ready    bool
	}{
		{"none", nil, StatusHealthy, true},
		{"all healthy", []Checker{fixed("a", true, StatusHealthy), fixed("b", false, StatusHealthy)}, StatusHealthy, true},
		{"non-critical failure", []Checker{fixed("a", true, StatusHealthy), fixed("b", false, StatusUnhealthy)}, StatusDegraded, true},
		{"degraded", []Checker{fixed("a", true, StatusDegraded)}, StatusDegraded, true},
		{"critical failure", []Checker{fixed("a", true, StatusUnhealthy), fixed("b", false, StatusHealthy)}, StatusUnhealthy, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(zaptest.NewLogger(t))
			for _, c := range tc.checkers {
				require.NoError(t, m.RegisterChecker(c))
			}
			overall := m.GetOverallHealth(context.Background())
			assert.Equal(t, tc.want, overall.Status)
			assert.Equal(t, tc.ready, overall.Ready)
			assert.True(t, overall.Live)
			assert.Len(t, m.LastResults(), len(tc.checkers))
		})
	}
}

func TestRegisterChecker(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.RegisterChecker(fixed("a", true, StatusHealthy)))
	assert.Error(t, m.RegisterChecker(fixed("a", true, StatusHealthy)))
	assert.Error(t, m.RegisterChecker(nil))
	require.NoError(t, m.UnregisterChecker("a"))
	assert.Error(t, m.UnregisterChecker("a"))
}

func TestCheckTimeoutPropagates(t *testing.T) {
	m := NewManager(nil)
	slow := NewCustomHealthChecker("slow", true, 20*time.Millisecond, func(ctx context.Context) CheckResult {
		<-ctx.Done()
		return CheckResult{Status: StatusUnhealthy, Error: ctx.Err().Error()}
	})
	require.NoError(t, m.RegisterChecker(slow))
	d := m.GetDetailedHealth(context.Background())
	assert.Equal(t, StatusUnhealthy, d.Components["slow"].Status)
	assert.Equal(t, "slow", d.Components["slow"].Component)
	assert.True(t, d.Components["slow"].Critical)
}

func TestRedisHealthChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rw := circuitbreaker.NewRedisWrapper(client, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = rw.Close() })

	c := NewRedisHealthChecker(rw, false, zaptest.NewLogger(t))
	assert.False(t, c.IsCritical())
	res := c.Check(context.Background())
	assert.NotEqual(t, StatusUnhealthy, res.Status)

	mr.Close()
	res = c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestLLMServiceHealthChecker(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	ok := NewLLMServiceHealthChecker("local", healthy.URL+"/", nil)
	assert.Equal(t, "llm_service:local", ok.Name())
	assert.Equal(t, StatusHealthy, ok.Check(context.Background()).Status)

	bad := NewLLMServiceHealthChecker("remote", broken.URL, nil)
	assert.Equal(t, StatusUnhealthy, bad.Check(context.Background()).Status)
}

func TestHTTPHandler(t *testing.T) {
	m := NewManager(nil)
	require.NoError(t, m.RegisterChecker(fixed("engine", true, StatusHealthy)))
	require.NoError(t, m.RegisterChecker(fixed("redis", false, StatusUnhealthy)))
	mux := http.NewServeMux()
	NewHTTPHandler(m, nil).RegisterRoutes(mux)

	for path, want := range map[string]int{
		"/health":          http.StatusOK,
		"/health/ready":    http.StatusOK,
		"/health/live":     http.StatusOK,
		"/health/detailed": http.StatusOK,
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))
	var body struct {
		Overall struct {
			Status string `json:"status"`
		} `json:"overall"`
		Components map[string]struct {
			Status string `json:"status"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Overall.Status)
	assert.Equal(t, "unhealthy", body.Components["redis"].Status)

	require.NoError(t, m.RegisterChecker(fixed("db", true, StatusUnhealthy)))
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
