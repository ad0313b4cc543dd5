package logictree

import (
	"math/rand/v2"
)

// NewRand returns the deterministic generator used for every logic tree
// draw seeded by seed
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// Sample draws n paths independently with replacement, choosing one branch
// per set from the categorical distribution of its weights. Every drawn path
// gets weight 1/n. The same seed always yields the same sequence.
func (t *Tree) Sample(n int, seed int64) []Path {
	if n <= 0 {
		return nil
	}
	rng := NewRand(seed)
	out := make([]Path, n)
	for i := range out {
		out[i] = t.SampleOne(rng)
		out[i].Weight = 1 / float64(n)
	}
	return out
}

// SampleOne draws a single path using rng. The returned path carries its
// tree-derived weight.
func (t *Tree) SampleOne(rng *rand.Rand) Path {
	var indices []int
	set := t.Root
	for set >= 0 {
		b := t.pick(set, rng.Float64())
		indices = append(indices, b)
		set = t.Branches[b].Child
	}
	return t.path(indices)
}

// pick maps u in [0, 1) onto a branch of the set. Zero-weight branches are
// never chosen unless rounding leaves u past the cumulative total, in which
// case the last positive branch wins.
func (t *Tree) pick(set int, u float64) int {
	branches := t.Sets[set].Branches
	cum := 0.0
	last := branches[0]
	for _, b := range branches {
		w := t.Branches[b].Weight
		if w <= 0 {
			continue
		}
		last = b
		cum += w
		if u < cum {
			return b
		}
	}
	return last
}
