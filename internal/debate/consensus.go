package debate

import (
	"fmt"
	"strings"

	"github.com/Kocoro-lab/Shannon/go/debate/internal/util"
)

// ConsensusResult is a detector's verdict on one round.
type ConsensusResult struct {
	Reached bool   `json:"reached"`
	Reason  string `json:"reason,omitempty"`
	// Divergence is 1 - (largest agreeing cluster / configured agents).
	Divergence float64 `json:"divergence"`
}

// ConsensusDetector inspects a closed round. Implementations must not call models.
type ConsensusDetector interface {
	Name() string
	Detect(positions []Position, configuredAgents int) ConsensusResult
}

// ExactMatchDetector reports consensus when every non-failed position has the same
// trimmed text.
type ExactMatchDetector struct{}

func (ExactMatchDetector) Name() string { return "exact" }

func (ExactMatchDetector) Detect(positions []Position, configuredAgents int) ConsensusResult {
	return detect(positions, configuredAgents, func(a, b string) bool { return a == b })
}

// DefaultJaccardThreshold is used when JaccardDetector.Threshold is zero.
const DefaultJaccardThreshold = 0.8

// JaccardDetector reports consensus when every pair of non-failed positions has a
// token-set Jaccard similarity at or above Threshold.
type JaccardDetector struct {
	Threshold float64
}

func (JaccardDetector) Name() string { return "jaccard" }

func (d JaccardDetector) Detect(positions []Position, configuredAgents int) ConsensusResult {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultJaccardThreshold
	}
	return detect(positions, configuredAgents, func(a, b string) bool {
		return Jaccard(a, b) >= threshold
	})
}

// Jaccard returns the token-set similarity of a and b after normalization.
func Jaccard(a, b string) float64 {
	ta, tb := tokenSet(a), tokenSet(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 1
	}
	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(util.NormalizeText(s))) {
		set[strings.Trim(t, ".,;:!?\"'()[]{}")] = struct{}{}
	}
	delete(set, "")
	return set
}

// detect clusters non-failed positions with same and derives the shared contract:
// fewer than two contributors never agree unless exactly one agent is configured.
func detect(positions []Position, configuredAgents int, same func(a, b string) bool) ConsensusResult {
	if configuredAgents == 1 {
		return ConsensusResult{Reached: true, Reason: "single agent"}
	}
	n := configuredAgents
	if n <= 0 {
		n = len(positions)
	}

	var texts []string
	for _, p := range positions {
		if p.Failed() {
			continue
		}
		texts = append(texts, strings.TrimSpace(p.Position))
	}

	// Greedy clustering against each cluster's first member.
	var clusters [][]string
	for _, t := range texts {
		placed := false
		for ci := range clusters {
			if same(clusters[ci][0], t) {
				clusters[ci] = append(clusters[ci], t)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []string{t})
		}
	}

	largest := 0
	for _, c := range clusters {
		if len(c) > largest {
			largest = len(c)
		}
	}
	divergence := 1.0
	if n > 0 {
		divergence = 1 - float64(largest)/float64(n)
	}

	switch {
	case len(texts) < 2:
		return ConsensusResult{
			Reason:     fmt.Sprintf("only %d successful position(s) among %d agents", len(texts), n),
			Divergence: divergence,
		}
	case len(clusters) == 1 && allPairs(texts, same):
		return ConsensusResult{
			Reached:    true,
			Reason:     fmt.Sprintf("all %d positions agree", len(texts)),
			Divergence: divergence,
		}
	default:
		return ConsensusResult{
			Reason:     fmt.Sprintf("%d distinct positions among %d agents; largest group has %d", len(clusters), n, largest),
			Divergence: divergence,
		}
	}
}

func allPairs(texts []string, same func(a, b string) bool) bool {
	for i := range texts {
		for j := i + 1; j < len(texts); j++ {
			if !same(texts[i], texts[j]) {
				return false
			}
		}
	}
	return true
}
