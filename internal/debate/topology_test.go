package debate

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestNeighborIndexes(t *testing.T) {
	assert.Equal(t, []int{3, 1}, NeighborIndexes(0, 4))
	assert.Equal(t, []int{2, 0}, NeighborIndexes(3, 4))
	assert.Equal(t, []int{1}, NeighborIndexes(0, 2))
	assert.Equal(t, []int{0}, NeighborIndexes(1, 2))
	assert.Nil(t, NeighborIndexes(0, 1))
}

func TestNeighborIndexesProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 64).Draw(t, "n")
		i := rapid.IntRange(0, n-1).Draw(t, "i")
		got := NeighborIndexes(i, n)

		switch {
		case n == 1:
			if len(got) != 0 {
				t.Fatalf("single agent has neighbours %v", got)
			}
		case n == 2:
			if len(got) != 1 || got[0] != 1-i {
				t.Fatalf("n=2 i=%d: got %v", i, got)
			}
		default:
			want := []int{(i - 1 + n) % n, (i + 1) % n}
			if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
				t.Fatalf("n=%d i=%d: got %v want %v", n, i, got, want)
			}
		}
		for _, j := range got {
			if j == i || j < 0 || j >= n {
				t.Fatalf("n=%d i=%d: bad neighbour %d", n, i, j)
			}
		}
	})
}

func TestNeighborsSkipFailedMarkers(t *testing.T) {
	prev := []Position{
		{AgentID: "a", Position: "pa", Status: StatusFresh},
		{AgentID: "b", Status: StatusFailed},
		{AgentID: "c", Position: "pc", Status: StatusStale},
		{AgentID: "d", Position: "pd", Status: StatusFresh},
	}
	got := Neighbors(prev, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "d", got[0].AgentID)

	got = Neighbors(prev, 1)
	require.Len(t, got, 2)
	assert.Equal(t, "pa", got[0].Position)
	assert.Equal(t, "pc", got[1].Position)

	assert.Nil(t, Anchor(prev, 1))
	require.NotNil(t, Anchor(prev, 2))
	assert.Equal(t, "pc", Anchor(prev, 2).Position)
}

func TestNeighborsAlignWithRoundIndex(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(3, 16).Draw(t, "n")
		prev := make([]Position, n)
		for j := range prev {
			prev[j] = Position{AgentID: fmt.Sprintf("agent-%d", j), Position: fmt.Sprintf("p%d", j), Status: StatusFresh}
		}
		i := rapid.IntRange(0, n-1).Draw(t, "i")
		got := Neighbors(prev, i)
		if got[0].Position != prev[(i-1+n)%n].Position || got[1].Position != prev[(i+1)%n].Position {
			t.Fatalf("agent %d got %v", i, got)
		}
	})
}
