// Package hitl parks debate escalations until a reviewer answers them over HTTP.
package hitl

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/debate"
)

var (
	// ErrNotFound is returned for unknown or already answered request IDs.
	ErrNotFound = errors.New("hitl request not found")
)

// Request is a pending escalation.
type Request struct {
	ID        string       `json:"id"`
	SessionID string       `json:"sessionId"`
	State     debate.State `json:"state"`
	CreatedAt time.Time    `json:"createdAt"`
}

type pending struct {
	req      Request
	decision chan Decision
}

// Decision is a reviewer's answer to a Request.
type Decision struct {
	debate.HitlDecision
	DecidedBy string    `json:"decidedBy,omitempty"`
	DecidedAt time.Time `json:"decidedAt"`
}

// Broker implements debate.HitlHandler by queueing requests for reviewers.
type Broker struct {
	mu      sync.Mutex
	pending map[string]*pending
	notify  func(Request)
	logger  *zap.Logger
}

// NewBroker creates a Broker. notify, if set, is called for every new request.
func NewBroker(logger *zap.Logger, notify func(Request)) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{pending: make(map[string]*pending), notify: notify, logger: logger}
}

// Handler returns the broker as a debate.HitlHandler.
func (b *Broker) Handler() debate.HitlHandler { return b.Await }

// Await registers state as a pending request and blocks until it is decided or ctx
// is done.
func (b *Broker) Await(ctx context.Context, state debate.State) (debate.HitlDecision, error) {
	p := &pending{
		req: Request{
			ID:        uuid.New().String(),
			SessionID: state.SessionID,
			State:     state,
			CreatedAt: time.Now(),
		},
		decision: make(chan Decision, 1),
	}

	b.mu.Lock()
	b.pending[p.req.ID] = p
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.pending, p.req.ID)
		b.mu.Unlock()
	}()

	b.logger.Info("HITL request pending",
		zap.String("request_id", p.req.ID),
		zap.String("session_id", state.SessionID),
		zap.Float64("divergence", state.Consensus.Divergence),
	)
	if b.notify != nil {
		b.notify(p.req)
	}

	select {
	case d := <-p.decision:
		b.logger.Info("HITL request decided",
			zap.String("request_id", p.req.ID),
			zap.String("session_id", state.SessionID),
			zap.String("decided_by", d.DecidedBy),
		)
		return d.HitlDecision, nil
	case <-ctx.Done():
		return debate.HitlDecision{}, ctx.Err()
	}
}

// Decide answers request id.
func (b *Broker) Decide(id string, d Decision) error {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = time.Now()
	}
	p.decision <- d
	return nil
}

// Pending lists undecided requests, oldest first. sessionID filters when non-empty.
func (b *Broker) Pending(sessionID string) []Request {
	b.mu.Lock()
	out := make([]Request, 0, len(b.pending))
	for _, p := range b.pending {
		if sessionID == "" || p.req.SessionID == sessionID {
			out = append(out, p.req)
		}
	}
	b.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
