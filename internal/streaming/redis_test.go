package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/circuitbreaker"
)

func newMirror(t *testing.T) (*miniredis.Miniredis, *RedisMirror) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := zaptest.NewLogger(t)
	return mr, NewRedisMirror(circuitbreaker.NewRedisWrapper(client, logger), 100, time.Hour, logger)
}

func TestRedisMirrorAppendRange(t *testing.T) {
	mr, mirror := newMirror(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		require.NoError(t, mirror.Append(ctx, Event{
			SessionID: "s1",
			Type:      "round_complete",
			Round:     i,
			Seq:       uint64(i),
			Data:      map[string]interface{}{"index": i},
		}))
	}

	evs, err := mirror.Range(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, evs, 5)
	for i, e := range evs {
		assert.Equal(t, uint64(i+1), e.Seq)
		assert.Equal(t, float64(i+1), e.Data["index"])
	}

	evs, err = mirror.Range(ctx, "s1", 3)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, 4, evs[0].Round)

	assert.True(t, mr.Exists(StreamKey("s1")))
	assert.Greater(t, mr.TTL(StreamKey("s1")), time.Duration(0))

	evs, err = mirror.Range(ctx, "missing", 0)
	require.NoError(t, err)
	assert.Empty(t, evs)
}

func TestManagerMirrorsToRedis(t *testing.T) {
	_, mirror := newMirror(t)
	ctx := context.Background()

	m := NewManager(16, zaptest.NewLogger(t), WithRedisMirror(mirror))
	m.Publish("s2", Event{Type: "session_started"})
	m.Publish("s2", Event{Type: "debate_complete"})
	require.NoError(t, m.Close(ctx))

	// Publishing after Close only updates the local buffer.
	m.Publish("s2", Event{Type: "late"})

	evs, err := mirror.Range(ctx, "s2", 0)
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, "session_started", evs[0].Type)
	assert.Equal(t, "debate_complete", evs[1].Type)

	// Another process without a local buffer replays from Redis.
	other := NewManager(16, nil, WithRedisMirror(mirror))
	defer other.Close(ctx)
	evs, err = other.Replay(ctx, "s2", 1)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, uint64(2), evs[0].Seq)
}
