package httpapi

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/auth"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/debate"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/engine"
)

// CoordinatorFactory builds a coordinator for one session.
type CoordinatorFactory interface {
	Coordinator(sessionID string, o engine.Overrides) (*debate.Coordinator, error)
}

// Session status values reported by GET /debates/{id}.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

const maxFinishedSessions = 1000

type sessionRecord struct {
	SessionID string         `json:"sessionId"`
	Topic     string         `json:"topic"`
	Status    string         `json:"status"`
	Owner     string         `json:"owner,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	Result    *debate.Result `json:"result,omitempty"`
}

// DebateHandler runs debates over HTTP.
//
//	POST /debates          start a debate (sync, or async with "async": true)
//	GET  /debates          list known sessions
//	GET  /debates/{id}     session status and result
type DebateHandler struct {
	factory        CoordinatorFactory
	requestTimeout time.Duration
	logger         *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionRecord

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewDebateHandler creates a handler. requestTimeout bounds every debate run.
func NewDebateHandler(factory CoordinatorFactory, requestTimeout time.Duration, logger *zap.Logger) *DebateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DebateHandler{
		factory:        factory,
		requestTimeout: requestTimeout,
		logger:         logger,
		sessions:       make(map[string]*sessionRecord),
		baseCtx:        ctx,
		cancel:         cancel,
	}
}

// RegisterRoutes registers debate routes on the provided mux.
func (h *DebateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /debates", h.handleCreate)
	mux.HandleFunc("GET /debates", h.handleList)
	mux.HandleFunc("GET /debates/{id}", h.handleGet)
}

type createDebateRequest struct {
	Topic     string `json:"topic"`
	SessionID string `json:"sessionId,omitempty"`
	Async     bool   `json:"async,omitempty"`
	engine.Overrides
}

type createDebateResponse struct {
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	StreamURL string `json:"streamUrl"`
}

func (h *DebateHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireScopes(r.Context(), auth.ScopeDebatesWrite); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	var req createDebateRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.logger.Warn("debate request decode error", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.Topic = strings.TrimSpace(req.Topic)
	if req.Topic == "" {
		writeError(w, http.StatusBadRequest, "topic is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	coord, err := h.factory.Coordinator(req.SessionID, req.Overrides)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec := &sessionRecord{
		SessionID: req.SessionID,
		Topic:     req.Topic,
		Status:    StatusRunning,
		CreatedAt: time.Now(),
	}
	if u, err := auth.GetUserContext(r.Context()); err == nil {
		rec.Owner = u.Subject
	}
	if !h.register(rec) {
		writeError(w, http.StatusConflict, "session already exists")
		return
	}

	if req.Async {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.run(h.baseCtx, coord, rec)
		}()
		writeJSON(w, http.StatusAccepted, createDebateResponse{
			SessionID: rec.SessionID,
			Status:    StatusRunning,
			StreamURL: "/stream/sse?session_id=" + rec.SessionID,
		})
		return
	}

	res, err := h.run(r.Context(), coord, rec)
	writeJSON(w, statusFor(err), res)
}

func (h *DebateHandler) run(ctx context.Context, coord *debate.Coordinator, rec *sessionRecord) (*debate.Result, error) {
	if h.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.requestTimeout)
		defer cancel()
	}
	res, err := coord.RunSession(ctx, rec.SessionID, rec.Topic)
	if err != nil {
		h.logger.Warn("Debate failed", zap.String("session_id", rec.SessionID), zap.Error(err))
	}

	h.mu.Lock()
	rec.Result = res
	rec.Status = StatusCompleted
	if err != nil {
		rec.Status = StatusFailed
	}
	h.mu.Unlock()
	h.evict()
	return res, err
}

func (h *DebateHandler) register(rec *sessionRecord) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.sessions[rec.SessionID]; exists {
		return false
	}
	h.sessions[rec.SessionID] = rec
	return true
}

// evict drops the oldest finished sessions beyond maxFinishedSessions.
func (h *DebateHandler) evict() {
	h.mu.Lock()
	defer h.mu.Unlock()
	finished := make([]*sessionRecord, 0, len(h.sessions))
	for _, rec := range h.sessions {
		if rec.Status != StatusRunning {
			finished = append(finished, rec)
		}
	}
	if len(finished) <= maxFinishedSessions {
		return
	}
	sort.Slice(finished, func(i, j int) bool { return finished[i].CreatedAt.Before(finished[j].CreatedAt) })
	for _, rec := range finished[:len(finished)-maxFinishedSessions] {
		delete(h.sessions, rec.SessionID)
	}
}

func (h *DebateHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireScopes(r.Context(), auth.ScopeDebatesRead); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	id := r.PathValue("id")
	h.mu.RLock()
	rec, ok := h.sessions[id]
	var snapshot sessionRecord
	if ok {
		snapshot = *rec
	}
	h.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *DebateHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireScopes(r.Context(), auth.ScopeDebatesRead); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	status := r.URL.Query().Get("status")
	type summary struct {
		SessionID string    `json:"sessionId"`
		Topic     string    `json:"topic"`
		Status    string    `json:"status"`
		CreatedAt time.Time `json:"createdAt"`
	}
	h.mu.RLock()
	out := make([]summary, 0, len(h.sessions))
	for _, rec := range h.sessions {
		if status == "" || rec.Status == status {
			out = append(out, summary{rec.SessionID, rec.Topic, rec.Status, rec.CreatedAt})
		}
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": out})
}

// Shutdown cancels running async debates and waits for them to record a result or
// for ctx to end.
func (h *DebateHandler) Shutdown(ctx context.Context) error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, debate.ErrQuorumNotMet),
		errors.Is(err, debate.ErrMediatorFailed),
		errors.Is(err, debate.ErrToolLoop):
		return http.StatusBadGateway
	case errors.Is(err, debate.ErrInvalidConfig):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
