package streaming

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/debate"
)

func TestRingReplaySince(t *testing.T) {
	r := newRing(3)
	// Push 4 events, which will overwrite the first
	for i := 0; i < 4; i++ {
		r.push(Event{Seq: uint64(i + 1)})
	}
	evs := r.since(0)
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(2), evs[0].Seq)
	assert.Equal(t, uint64(4), evs[2].Seq)

	evs = r.since(2)
	require.Len(t, evs, 2)
	assert.Equal(t, uint64(3), evs[0].Seq)
	assert.Equal(t, uint64(4), evs[1].Seq)
}

func TestPublishSubscribe(t *testing.T) {
	m := NewManager(8, nil)
	ch := m.Subscribe("s1", 4)
	other := m.Subscribe("s2", 4)

	first := m.Publish("s1", Event{Type: "session_started"})
	m.Publish("s1", Event{Type: "round_started", Round: 1})

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, "s1", first.SessionID)
	assert.False(t, first.Timestamp.IsZero())

	e := <-ch
	assert.Equal(t, "session_started", e.Type)
	e = <-ch
	assert.Equal(t, "round_started", e.Type)
	assert.Equal(t, uint64(2), e.Seq)

	select {
	case e := <-other:
		t.Fatalf("unexpected event for other session: %+v", e)
	default:
	}

	m.Unsubscribe("s1", ch)
	_, open := <-ch
	assert.False(t, open)
	// Unsubscribing twice is harmless.
	m.Unsubscribe("s1", ch)
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager(16, nil)
	ch := m.Subscribe("s", 1)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			m.Publish("s", Event{Type: "agent_thinking"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Len(t, ch, 1)
	assert.Len(t, m.ReplaySince("s", 0), 10)
}

func TestReplayAndForget(t *testing.T) {
	m := NewManager(5, nil)
	for i := 0; i < 8; i++ {
		m.Publish("s", Event{Type: "e"})
	}
	evs := m.ReplaySince("s", 5)
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(6), evs[0].Seq)

	evs, err := m.Replay(context.Background(), "s", 0)
	require.NoError(t, err)
	assert.Len(t, evs, 5)

	m.Forget("s")
	assert.Nil(t, m.ReplaySince("s", 0))
	require.NoError(t, m.Close(context.Background()))
}

func TestSinkAdaptsDebateEvents(t *testing.T) {
	m := NewManager(8, nil)
	ch := m.Subscribe("sess", 4)
	sink := NewSink(m)

	sink.Emit(context.Background(), debate.Event{
		SessionID: "sess",
		Type:      debate.EventPositionComplete,
		Phase:     debate.PhaseDebate,
		Round:     2,
		AgentID:   "agent-1",
		Message:   "pos",
		Data:      map[string]interface{}{"status": "fresh"},
	})

	e := <-ch
	assert.Equal(t, "position_complete", e.Type)
	assert.Equal(t, "debate", e.Phase)
	assert.Equal(t, 2, e.Round)
	assert.Equal(t, "agent-1", e.AgentID)
	assert.Equal(t, "fresh", e.Data["status"])
	assert.Equal(t, uint64(1), e.Seq)
	assert.True(t, Terminal(string(debate.EventDebateComplete)))
	assert.False(t, Terminal(e.Type))
}
