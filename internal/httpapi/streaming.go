package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/streaming"
)

// StreamingHandler serves SSE and WebSocket endpoints for debate events.
type StreamingHandler struct {
	mgr    *streaming.Manager
	logger *zap.Logger
}

func NewStreamingHandler(mgr *streaming.Manager, logger *zap.Logger) *StreamingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StreamingHandler{mgr: mgr, logger: logger}
}

// RegisterRoutes registers SSE and WebSocket routes on the provided mux.
func (h *StreamingHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /stream/sse", h.handleSSE)
	h.RegisterWebSocket(mux)
}

type streamRequest struct {
	sessionID string
	types     map[string]struct{}
	lastID    uint64
}

func parseStreamRequest(r *http.Request) (streamRequest, bool) {
	q := r.URL.Query()
	req := streamRequest{sessionID: q.Get("session_id"), types: map[string]struct{}{}}
	if req.sessionID == "" {
		return req, false
	}
	// Optional: type filter (comma-separated)
	if s := q.Get("types"); s != "" {
		for _, t := range strings.Split(s, ",") {
			if t = strings.TrimSpace(t); t != "" {
				req.types[t] = struct{}{}
			}
		}
	}
	// Last-Event-ID header wins over the query param
	if lei := r.Header.Get("Last-Event-ID"); lei != "" {
		if n, err := strconv.ParseUint(lei, 10, 64); err == nil {
			req.lastID = n
		}
	}
	if v := q.Get("last_event_id"); v != "" && req.lastID == 0 {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			req.lastID = n
		}
	}
	return req, true
}

func (s streamRequest) wants(evt streaming.Event) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[evt.Type]
	return ok
}

// handleSSE streams events for a debate session via Server-Sent Events. The stream
// ends after the debate_complete event.
// GET /stream/sse?session_id=<id>
func (h *StreamingHandler) handleSSE(w http.ResponseWriter, r *http.Request) {
	req, ok := parseStreamRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// Subscribe before replaying so nothing published in between is lost
	ch := h.mgr.Subscribe(req.sessionID, 256)
	defer h.mgr.Unsubscribe(req.sessionID, ch)

	fmt.Fprintf(w, ": connected to session %s\n\n", req.sessionID)
	flusher.Flush()

	ctx := r.Context()
	var lastSeq uint64
	write := func(evt streaming.Event) bool {
		if evt.Seq != 0 && evt.Seq <= lastSeq {
			return false
		}
		lastSeq = evt.Seq
		if req.wants(evt) {
			if evt.Seq > 0 {
				fmt.Fprintf(w, "id: %d\n", evt.Seq)
			}
			if evt.Type != "" {
				fmt.Fprintf(w, "event: %s\n", evt.Type)
			}
			fmt.Fprintf(w, "data: %s\n\n", evt.Marshal())
			flusher.Flush()
		}
		return streaming.Terminal(evt.Type)
	}

	// Replay history past lastID so late subscribers see the whole session
	lastSeq = req.lastID
	backlog, err := h.mgr.Replay(ctx, req.sessionID, req.lastID)
	if err != nil {
		h.logger.Warn("SSE replay failed", zap.String("session_id", req.sessionID), zap.Error(err))
	}
	for _, evt := range backlog {
		if write(evt) {
			return
		}
	}

	hb := time.NewTicker(15 * time.Second)
	defer hb.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("SSE client disconnected", zap.String("session_id", req.sessionID))
			return
		case evt := <-ch:
			if write(evt) {
				return
			}
		case <-hb.C:
			// Heartbeat to keep connections alive through proxies
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
