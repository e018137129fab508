package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/streaming"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true }, // secure via proxy in prod
}

// RegisterWebSocket registers the /stream/ws endpoint.
func (h *StreamingHandler) RegisterWebSocket(mux *http.ServeMux) {
	mux.HandleFunc("GET /stream/ws", h.handleWS)
}

// handleWS mirrors handleSSE over a WebSocket, one JSON message per event.
// GET /stream/ws?session_id=<id>&last_event_id=<seq>
func (h *StreamingHandler) handleWS(w http.ResponseWriter, r *http.Request) {
	req, ok := parseStreamRequest(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "session_id required")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := h.mgr.Subscribe(req.sessionID, 256)
	defer h.mgr.Unsubscribe(req.sessionID, ch)

	var lastSeq uint64
	// send reports whether the stream should stop.
	send := func(evt streaming.Event) bool {
		if evt.Seq != 0 && evt.Seq <= lastSeq {
			return false
		}
		lastSeq = evt.Seq
		if req.wants(evt) {
			if err := conn.WriteJSON(evt); err != nil {
				return true
			}
		}
		if streaming.Terminal(evt.Type) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "debate complete"),
				time.Now().Add(time.Second))
			return true
		}
		return false
	}

	// Replay history past lastID so late subscribers see the whole session
	lastSeq = req.lastID
	backlog, err := h.mgr.Replay(r.Context(), req.sessionID, req.lastID)
	if err != nil {
		h.logger.Warn("WebSocket replay failed", zap.String("session_id", req.sessionID), zap.Error(err))
	}
	for _, evt := range backlog {
		if send(evt) {
			return
		}
	}

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	ticker := time.NewTicker(20 * time.Second)
	defer ticker.Stop()

	// Reader pump (discard client messages)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case evt := <-ch:
			if send(evt) {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
