package streaming

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/metrics"
)

// DefaultCapacity is the per-session replay buffer size.
const DefaultCapacity = 256

// Event is a debate stream event as delivered over SSE and WebSocket.
type Event struct {
	SessionID string                 `json:"session_id"`
	Type      string                 `json:"type"`
	Phase     string                 `json:"phase,omitempty"`
	Round     int                    `json:"round,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Seq       uint64                 `json:"seq"`
}

// Marshal returns JSON for event payloads in SSE or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides in-memory pub/sub for session events with a per-session ring
// buffer for Last-Event-ID replay. An optional Redis mirror makes events replayable
// from other processes.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int

	mirror   *RedisMirror
	mirrorCh chan Event
	done     chan struct{}
	closed   bool
	stopOnce sync.Once
	logger   *zap.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithRedisMirror copies every published event to Redis Streams in the background.
func WithRedisMirror(m *RedisMirror) Option {
	return func(mgr *Manager) { mgr.mirror = m }
}

// NewManager creates a Manager. capacity <= 0 uses DefaultCapacity.
func NewManager(capacity int, logger *zap.Logger, opts ...Option) *Manager {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
		done:        make(chan struct{}),
		logger:      logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.mirror != nil {
		m.mirrorCh = make(chan Event, 4*capacity)
		go m.runMirror()
	}
	return m
}

// Subscribe adds a subscriber channel for sessionID; caller must drain and call Unsubscribe.
func (m *Manager) Subscribe(sessionID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(sessionID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[sessionID]; ok {
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, sessionID)
		}
	}
}

// Publish assigns the next sequence number and sends evt to all subscribers of
// sessionID without blocking. Slow subscribers lose events.
func (m *Manager) Publish(sessionID string, evt Event) Event {
	evt.SessionID = sessionID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}

	m.mu.Lock()
	rg := m.history[sessionID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[sessionID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	for ch := range m.subscribers[sessionID] {
		select {
		case ch <- evt:
		default:
			metrics.StreamEventsDropped.WithLabelValues(evt.Type).Inc()
		}
	}
	if m.mirrorCh != nil && !m.closed {
		select {
		case m.mirrorCh <- evt:
		default:
			metrics.StreamEventsDropped.WithLabelValues("mirror").Inc()
		}
	}
	m.mu.Unlock()
	return evt
}

// ReplaySince returns buffered events with Seq > since (best-effort within ring capacity).
func (m *Manager) ReplaySince(sessionID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[sessionID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Replay is ReplaySince falling back to the Redis mirror for sessions this process
// has no buffer for.
func (m *Manager) Replay(ctx context.Context, sessionID string, since uint64) ([]Event, error) {
	if evs := m.ReplaySince(sessionID, since); evs != nil || m.mirror == nil {
		return evs, nil
	}
	return m.mirror.Range(ctx, sessionID, since)
}

// Forget drops the replay buffer of a finished session.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, sessionID)
}

// Close stops the mirror worker after flushing queued events or when ctx is done.
func (m *Manager) Close(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		if m.mirrorCh != nil {
			close(m.mirrorCh)
		} else {
			close(m.done)
		}
	})
	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) runMirror() {
	defer close(m.done)
	for evt := range m.mirrorCh {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := m.mirror.Append(ctx, evt); err != nil {
			m.logger.Debug("Failed to mirror stream event",
				zap.String("session_id", evt.SessionID),
				zap.String("type", evt.Type),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// ring is a fixed-capacity ring buffer of events
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
