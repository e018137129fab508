package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/auth"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/debate"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/hitl"
)

// HitlHandler exposes pending escalations and accepts reviewer decisions.
//
//	GET  /hitl/pending[?session_id=<id>]
//	POST /hitl/decision
type HitlHandler struct {
	broker *hitl.Broker
	logger *zap.Logger
}

// NewHitlHandler creates a new handler.
func NewHitlHandler(broker *hitl.Broker, logger *zap.Logger) *HitlHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HitlHandler{broker: broker, logger: logger}
}

// RegisterRoutes registers HITL routes on the provided mux.
func (h *HitlHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /hitl/pending", h.handlePending)
	mux.HandleFunc("POST /hitl/decision", h.handleDecision)
}

func (h *HitlHandler) handlePending(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireScopes(r.Context(), auth.ScopeHitlDecide); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests": h.broker.Pending(r.URL.Query().Get("session_id")),
	})
}

// hitlDecisionRequest is the expected payload for reviewer decisions.
type hitlDecisionRequest struct {
	RequestID       string `json:"requestId"`
	SelectedAgentID string `json:"selectedAgentId,omitempty"`
	CustomAnswer    string `json:"customAnswer,omitempty"`
	Feedback        string `json:"feedback,omitempty"`
}

func (h *HitlHandler) handleDecision(w http.ResponseWriter, r *http.Request) {
	if err := auth.RequireScopes(r.Context(), auth.ScopeHitlDecide); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}

	var req hitlDecisionRequest
	if err := decodeStrict(w, r, &req); err != nil {
		h.logger.Warn("hitl decision decode error", zap.Error(err))
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.RequestID == "" {
		writeError(w, http.StatusBadRequest, "requestId is required")
		return
	}

	d := hitl.Decision{HitlDecision: debate.HitlDecision{
		SelectedAgentID: strings.TrimSpace(req.SelectedAgentID),
		CustomAnswer:    strings.TrimSpace(req.CustomAnswer),
		Feedback:        strings.TrimSpace(req.Feedback),
	}}
	if u, err := auth.GetUserContext(r.Context()); err == nil {
		d.DecidedBy = u.Subject
	}

	if err := h.broker.Decide(req.RequestID, d); err != nil {
		if errors.Is(err, hitl.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.logger.Info("HITL decision recorded",
		zap.String("request_id", req.RequestID),
		zap.String("decided_by", d.DecidedBy),
		zap.Bool("custom_answer", d.CustomAnswer != ""),
		zap.String("selected_agent", d.SelectedAgentID),
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "accepted", "requestId": req.RequestID})
}
