package debate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func positions(texts ...string) []Position {
	out := make([]Position, len(texts))
	for i, t := range texts {
		out[i] = Position{AgentID: string(rune('a' + i)), Position: t, Status: StatusFresh}
	}
	return out
}

func TestExactMatchDetector(t *testing.T) {
	d := ExactMatchDetector{}

	res := d.Detect(positions("P", " P ", "P\n"), 3)
	assert.True(t, res.Reached)
	assert.Equal(t, 0.0, res.Divergence)

	res = d.Detect(positions("P", "P", "Q"), 3)
	assert.False(t, res.Reached)
	assert.InDelta(t, 1.0/3, res.Divergence, 1e-9)
	assert.Contains(t, res.Reason, "2 distinct positions")

	res = d.Detect(positions("P", "Q", "R"), 3)
	assert.InDelta(t, 2.0/3, res.Divergence, 1e-9)
}

func TestDetectorIgnoresFailedMarkers(t *testing.T) {
	ps := positions("P", "", "P")
	ps[1].Status = StatusFailed
	assert.True(t, ExactMatchDetector{}.Detect(ps, 3).Reached)

	ps = positions("P", "", "")
	ps[1].Status = StatusFailed
	ps[2].Status = StatusFailed
	res := ExactMatchDetector{}.Detect(ps, 3)
	assert.False(t, res.Reached)
	assert.Contains(t, res.Reason, "only 1 successful")
}

func TestSingleAgentAlwaysAgrees(t *testing.T) {
	ps := positions("")
	ps[0].Status = StatusFailed
	assert.True(t, ExactMatchDetector{}.Detect(ps, 1).Reached)
	assert.True(t, JaccardDetector{}.Detect(positions("anything"), 1).Reached)
}

func TestExactMatchIdempotence(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(2, 8).Draw(t, "n")
		text := rapid.StringMatching(`[a-z]{1,12}( [a-z]{1,12}){0,4}`).Draw(t, "text")
		texts := make([]string, n)
		for i := range texts {
			pad := strings.Repeat(" ", rapid.IntRange(0, 3).Draw(t, "pad"))
			texts[i] = pad + text + pad
		}
		d := ExactMatchDetector{}
		ps := positions(texts...)
		first := d.Detect(ps, n)
		if !first.Reached || first != d.Detect(ps, n) {
			t.Fatalf("identical positions did not agree: %+v", first)
		}

		k := rapid.IntRange(0, n-1).Draw(t, "k")
		texts[k] = text + " but different"
		if d.Detect(positions(texts...), n).Reached {
			t.Fatalf("one differing position still agreed")
		}
	})
}

func TestJaccardDetector(t *testing.T) {
	d := JaccardDetector{Threshold: 0.6}
	res := d.Detect(positions(
		"Use a bounded queue with backpressure.",
		"use a bounded queue with backpressure",
		"Use a bounded queue, with backpressure!",
	), 3)
	assert.True(t, res.Reached)

	res = d.Detect(positions("Use a bounded queue", "Rewrite it in a different way entirely"), 2)
	assert.False(t, res.Reached)
	assert.Equal(t, "jaccard", d.Name())
}

func TestJaccard(t *testing.T) {
	assert.Equal(t, 1.0, Jaccard("", ""))
	assert.Equal(t, 1.0, Jaccard("A b", "b a"))
	assert.InDelta(t, 1.0/3, Jaccard("a b", "b c"), 1e-9)
	assert.Equal(t, 0.0, Jaccard("a", ""))
}
