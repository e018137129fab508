package httpapi

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/auth"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/health"
)

// Routes groups the handlers served by NewRouter. Nil handlers are skipped.
type Routes struct {
	Debates   *DebateHandler
	Hitl      *HitlHandler
	Streaming *StreamingHandler
	Health    *health.HTTPHandler
	Metrics   http.Handler
}

// NewRouter mounts the API behind authentication. Health and metrics stay open for
// probes and scrapers.
func NewRouter(routes Routes, mw *auth.Middleware, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := http.NewServeMux()
	if routes.Debates != nil {
		routes.Debates.RegisterRoutes(api)
	}
	if routes.Hitl != nil {
		routes.Hitl.RegisterRoutes(api)
	}
	if routes.Streaming != nil {
		routes.Streaming.RegisterRoutes(api)
	}

	root := http.NewServeMux()
	if routes.Health != nil {
		routes.Health.RegisterRoutes(root)
	}
	if routes.Metrics != nil {
		root.Handle("GET /metrics", routes.Metrics)
	}
	root.Handle("/", mw.HTTPMiddleware(api))
	return logRequests(root, logger)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps WebSocket upgrades working through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

func logRequests(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
