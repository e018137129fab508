package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/agents"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/auth"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/debate"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/engine"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/hitl"
	"github.com/Kocoro-lab/Shannon/go/debate/internal/streaming"
)

type factoryFunc func(sessionID string, o engine.Overrides) (*debate.Coordinator, error)

func (f factoryFunc) Coordinator(sessionID string, o engine.Overrides) (*debate.Coordinator, error) {
	return f(sessionID, o)
}

type brokenMediator struct{}

func (brokenMediator) GenerateInitialPosition(context.Context, string, agents.DebateContext) (*agents.DebateResponse, error) {
	return nil, errors.New("mediator offline")
}

func (brokenMediator) GenerateDebateResponse(context.Context, string, agents.DebateContext, []agents.PeerPosition) (*agents.DebateResponse, error) {
	return nil, errors.New("mediator offline")
}

func scriptedAgents(t *testing.T, positions ...string) []debate.Agent {
	t.Helper()
	out := make([]debate.Agent, len(positions))
	for i, p := range positions {
		s, err := agents.NewScripted(`{"position": "` + p + `", "confidence": 0.8}`)
		require.NoError(t, err)
		out[i] = debate.Agent{ID: "agent-" + string(rune('a'+i)), Name: p, Capability: s}
	}
	return out
}

func newFactory(t *testing.T, mediator agents.Capability, opts ...debate.Option) CoordinatorFactory {
	t.Helper()
	if mediator == nil {
		m, err := agents.NewScripted(`{"answer": "Paris is the capital.", "keyPoints": ["seat of government"], "confidence": 0.9}`)
		require.NoError(t, err)
		mediator = m
	}
	return factoryFunc(func(sessionID string, o engine.Overrides) (*debate.Coordinator, error) {
		cfg := debate.DefaultConfig()
		cfg.StopOnConsensus = true
		if o.MaxRounds != nil {
			cfg.MaxRounds = *o.MaxRounds
		}
		return debate.NewCoordinator(cfg, scriptedAgents(t, "Paris", "Paris"), mediator, opts...)
	})
}

func newDebateServer(t *testing.T, f CoordinatorFactory) (*DebateHandler, http.Handler) {
	t.Helper()
	h := NewDebateHandler(f, time.Minute, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = h.Shutdown(context.Background()) })
	return h, NewRouter(Routes{Debates: h}, auth.NewMiddleware(nil), zaptest.NewLogger(t))
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateDebateSync(t *testing.T) {
	_, h := newDebateServer(t, newFactory(t, nil))

	rec := do(t, h, http.MethodPost, "/debates", `{"topic": "Capital of France?", "sessionId": "s-1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res debate.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "s-1", res.SessionID)
	assert.True(t, res.ConsensusReached)
	assert.Equal(t, debate.PhaseComplete, res.Phase)
	require.NotNil(t, res.Synthesized)
	assert.Equal(t, "Paris is the capital.", res.Synthesized.Answer)

	rec = do(t, h, http.MethodGet, "/debates/s-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got sessionRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "dev", got.Owner)
	require.NotNil(t, got.Result)

	rec = do(t, h, http.MethodPost, "/debates", `{"topic": "again", "sessionId": "s-1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/debates?status=completed", "")
	assert.Contains(t, rec.Body.String(), `"s-1"`)
}

func TestCreateDebateValidation(t *testing.T) {
	_, h := newDebateServer(t, newFactory(t, nil))

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/debates", `{"topic": " "}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/debates", `{"topic": "x", "rounds": 3}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/debates", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/debates", `{"topic": "x", "maxRounds": -1}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/debates/missing", "").Code)
}

func TestCreateDebateMediatorFailure(t *testing.T) {
	_, h := newDebateServer(t, newFactory(t, brokenMediator{}))

	rec := do(t, h, http.MethodPost, "/debates", `{"topic": "Capital of France?"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var res debate.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, debate.PhaseError, res.Phase)
	assert.NotEmpty(t, res.Error)
	assert.NotEmpty(t, res.Rounds, "closed rounds survive the failure")
}

func TestCreateDebateAsync(t *testing.T) {
	_, h := newDebateServer(t, newFactory(t, nil))

	rec := do(t, h, http.MethodPost, "/debates", `{"topic": "Capital of France?", "async": true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted createDebateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
	require.NotEmpty(t, accepted.SessionID)
	assert.Equal(t, "/stream/sse?session_id="+accepted.SessionID, accepted.StreamURL)

	require.Eventually(t, func() bool {
		rec := do(t, h, http.MethodGet, "/debates/"+accepted.SessionID, "")
		return strings.Contains(rec.Body.String(), `"status":"completed"`)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestDebateScopes(t *testing.T) {
	jwtm := auth.NewJWTManager("secret", time.Minute)
	viewer, err := jwtm.GenerateAccessToken("v", auth.RoleViewer)
	require.NoError(t, err)
	dh := NewDebateHandler(newFactory(t, nil), time.Minute, nil)
	h := NewRouter(Routes{Debates: dh}, auth.NewMiddleware(jwtm), nil)

	req := httptest.NewRequest(http.MethodPost, "/debates", strings.NewReader(`{"topic": "x"}`))
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/debates", nil)
	req.Header.Set("Authorization", "Bearer "+viewer)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/debates", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusOK, statusFor(nil))
	assert.Equal(t, http.StatusBadGateway, statusFor(debate.ErrQuorumNotMet))
	assert.Equal(t, http.StatusBadGateway, statusFor(debate.ErrToolLoop))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusFor(context.Canceled))
}

func TestHitlEndpoints(t *testing.T) {
	broker := hitl.NewBroker(zaptest.NewLogger(t), nil)
	h := NewRouter(Routes{Hitl: NewHitlHandler(broker, zaptest.NewLogger(t))}, auth.NewMiddleware(nil), nil)

	decided := make(chan debate.HitlDecision, 1)
	go func() {
		d, err := broker.Await(context.Background(), debate.State{SessionID: "s-9", Topic: "t"})
		if err == nil {
			decided <- d
		}
	}()
	require.Eventually(t, func() bool { return len(broker.Pending("s-9")) == 1 }, time.Second, 5*time.Millisecond)

	rec := do(t, h, http.MethodGet, "/hitl/pending?session_id=s-9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var pending struct {
		Requests []hitl.Request `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pending))
	require.Len(t, pending.Requests, 1)
	id := pending.Requests[0].ID

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/hitl/decision", `{"requestId": "`+id+`", "approve": true}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/hitl/decision", `{"customAnswer": "x"}`).Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/hitl/decision", `{"requestId": "nope"}`).Code)

	rec = do(t, h, http.MethodPost, "/hitl/decision", `{"requestId": "`+id+`", "customAnswer": " Lyon "}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	select {
	case d := <-decided:
		assert.Equal(t, "Lyon", d.CustomAnswer)
	case <-time.After(2 * time.Second):
		t.Fatal("decision not delivered")
	}
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/hitl/decision", `{"requestId": "`+id+`"}`).Code)
}

func publishSession(m *streaming.Manager, sessionID string) {
	m.Publish(sessionID, streaming.Event{Type: string(debate.EventSessionStarted)})
	m.Publish(sessionID, streaming.Event{Type: string(debate.EventRoundStarted), Round: 1})
	m.Publish(sessionID, streaming.Event{Type: string(debate.EventPositionComplete), Round: 1, AgentID: "a"})
	m.Publish(sessionID, streaming.Event{Type: string(debate.EventDebateComplete)})
}

func readSSE(t *testing.T, url string, header http.Header) []string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if line := sc.Text(); strings.HasPrefix(line, "id: ") || strings.HasPrefix(line, "event: ") {
			lines = append(lines, line)
		}
	}
	return lines
}

func TestSSEReplayAndTermination(t *testing.T) {
	mgr := streaming.NewManager(16, zaptest.NewLogger(t))
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	srv := httptest.NewServer(NewRouter(Routes{Streaming: NewStreamingHandler(mgr, nil)}, auth.NewMiddleware(nil), nil))
	defer srv.Close()
	publishSession(mgr, "s-1")

	lines := readSSE(t, srv.URL+"/stream/sse?session_id=s-1", nil)
	assert.Equal(t, []string{
		"id: 1", "event: session_started",
		"id: 2", "event: round_started",
		"id: 3", "event: position_complete",
		"id: 4", "event: debate_complete",
	}, lines)

	lines = readSSE(t, srv.URL+"/stream/sse?session_id=s-1", http.Header{"Last-Event-ID": {"2"}})
	assert.Equal(t, []string{"id: 3", "event: position_complete", "id: 4", "event: debate_complete"}, lines)

	lines = readSSE(t, srv.URL+"/stream/sse?session_id=s-1&types=round_started", nil)
	assert.Equal(t, []string{"id: 2", "event: round_started"}, lines)

	resp, err := http.Get(srv.URL + "/stream/sse")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSSELiveEvents(t *testing.T) {
	mgr := streaming.NewManager(16, nil)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	srv := httptest.NewServer(NewRouter(Routes{Streaming: NewStreamingHandler(mgr, nil)}, auth.NewMiddleware(nil), nil))
	defer srv.Close()

	done := make(chan []string, 1)
	go func() { done <- readSSE(t, srv.URL+"/stream/sse?session_id=live", nil) }()
	// publish once the subscriber is attached
	time.Sleep(100 * time.Millisecond)
	publishSession(mgr, "live")

	select {
	case lines := <-done:
		assert.Len(t, lines, 8)
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not terminate")
	}
}

func TestWebSocketStream(t *testing.T) {
	mgr := streaming.NewManager(16, nil)
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })
	srv := httptest.NewServer(NewRouter(Routes{Streaming: NewStreamingHandler(mgr, nil)}, auth.NewMiddleware(nil), nil))
	defer srv.Close()
	publishSession(mgr, "ws")

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/stream/ws?session_id=ws&last_event_id=1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var seqs []uint64
	for {
		var evt streaming.Event
		if err := conn.ReadJSON(&evt); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		seqs = append(seqs, evt.Seq)
	}
	assert.Equal(t, []uint64{2, 3, 4}, seqs)
}
