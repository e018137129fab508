package debate

import "github.com/Kocoro-lab/Shannon/go/debate/internal/agents"

// NeighborIndexes returns agent i's ring neighbours among n agents: (i-1+n)%n and
// (i+1)%n, de-duplicated and never including i itself.
func NeighborIndexes(i, n int) []int {
	if n <= 1 {
		return nil
	}
	left, right := (i-1+n)%n, (i+1)%n
	if left == right {
		return []int{left}
	}
	return []int{left, right}
}

// Neighbors returns the peer view for agent i given the previous round's positions.
// Failure markers carry no content and are left out.
func Neighbors(prev []Position, i int) []agents.PeerPosition {
	var out []agents.PeerPosition
	for _, j := range NeighborIndexes(i, len(prev)) {
		if prev[j].Failed() {
			continue
		}
		out = append(out, prev[j].Peer())
	}
	return out
}

// Anchor returns agent i's own round-1 position, or nil if it failed there.
func Anchor(first []Position, i int) *agents.PeerPosition {
	if i >= len(first) || first[i].Failed() {
		return nil
	}
	p := first[i].Peer()
	return &p
}
