package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
)

const streamKeyPrefix = "debate:events:"

// RedisMirror appends events to one Redis stream per session.
type RedisMirror struct {
	redis  *circuitbreaker.RedisWrapper
	maxLen int64
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisMirror creates a mirror. Streams are trimmed to about maxLen entries and
// expire ttl after their last write.
func NewRedisMirror(rw *circuitbreaker.RedisWrapper, maxLen int64, ttl time.Duration, logger *zap.Logger) *RedisMirror {
	if maxLen <= 0 {
		maxLen = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisMirror{redis: rw, maxLen: maxLen, ttl: ttl, logger: logger}
}

// StreamKey returns the Redis key holding sessionID's events.
func StreamKey(sessionID string) string { return streamKeyPrefix + sessionID }

// Append writes evt to its session stream.
func (m *RedisMirror) Append(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	key := StreamKey(evt.SessionID)
	if _, err := m.redis.XAdd(ctx, key, m.maxLen, map[string]interface{}{
		"seq":   strconv.FormatUint(evt.Seq, 10),
		"type":  evt.Type,
		"event": string(payload),
	}); err != nil {
		return fmt.Errorf("xadd %s: %w", key, err)
	}
	if err := m.redis.Expire(ctx, key, m.ttl); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// Range returns mirrored events of sessionID with Seq > since, in order.
func (m *RedisMirror) Range(ctx context.Context, sessionID string, since uint64) ([]Event, error) {
	msgs, err := m.redis.XRange(ctx, StreamKey(sessionID), "-", "+")
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", StreamKey(sessionID), err)
	}
	out := make([]Event, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["event"].(string)
		if !ok {
			continue
		}
		var evt Event
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			m.logger.Warn("Skipping malformed mirrored event",
				zap.String("session_id", sessionID),
				zap.String("id", msg.ID),
				zap.Error(err),
			)
			continue
		}
		if evt.Seq > since {
			out = append(out, evt)
		}
	}
	return out, nil
}
