package logictree

import (
	"sort"
)

// GMMLogicTree holds the ground-motion model logic trees. ByTRT has one tree
// per tectonic region type; Shared, when set, serves every TRT without a
// dedicated tree. The value of a leaf branch is a GMM name.
type GMMLogicTree struct {
	ByTRT  map[string]*Tree
	Shared *Tree
}

// CompileGMM builds a GMMLogicTree from a definition whose root-level branch
// sets each apply to one TRT. A set with no TRT becomes the shared tree.
// Sets with parents are attached below their root set as usual.
func CompileGMM(def Definition, tolerance float64) (*GMMLogicTree, error) {
	if len(def.BranchSets) == 0 {
		return nil, malformed("", "no branch sets")
	}

	// split the definition into one sub-definition per root set
	owner := make(map[string]int) // branch id -> root set position
	var roots []BranchSetDef
	var parts []Definition
	pending := make([]BranchSetDef, 0, len(def.BranchSets))

	for _, sd := range def.BranchSets {
		if len(sd.AppliesTo) > 0 {
			pending = append(pending, sd)
			continue
		}
		for _, b := range sd.Branches {
			owner[b.ID] = len(roots)
		}
		roots = append(roots, sd)
		parts = append(parts, Definition{BranchSets: []BranchSetDef{sd}})
	}

	// attach dependants in definition order until no progress is made
	for len(pending) > 0 {
		progressed := false
		rest := pending[:0]
		for _, sd := range pending {
			root, ok := owner[sd.AppliesTo[0]]
			if !ok {
				rest = append(rest, sd)
				continue
			}
			for _, b := range sd.Branches {
				owner[b.ID] = root
			}
			parts[root].BranchSets = append(parts[root].BranchSets, sd)
			progressed = true
		}
		pending = rest
		if !progressed {
			return nil, malformed(pending[0].ID, "undefined parent branch %q", pending[0].AppliesTo[0])
		}
	}

	g := &GMMLogicTree{ByTRT: make(map[string]*Tree)}
	for i, sd := range roots {
		tree, err := Compile(parts[i], tolerance)
		if err != nil {
			return nil, err
		}
		if sd.TRT == "" {
			if g.Shared != nil {
				return nil, malformed(sd.ID, "second shared ground-motion branch set")
			}
			g.Shared = tree
			continue
		}
		if _, dup := g.ByTRT[sd.TRT]; dup {
			return nil, malformed(sd.ID, "duplicated tectonic region type %q", sd.TRT)
		}
		g.ByTRT[sd.TRT] = tree
	}
	return g, nil
}

// For returns the tree serving trt
func (g *GMMLogicTree) For(trt string) (*Tree, bool) {
	if t, ok := g.ByTRT[trt]; ok {
		return t, true
	}
	if g.Shared != nil {
		return g.Shared, true
	}
	return nil, false
}

// GMMs returns the distinct GMM names applicable to trt in pre-order
func (g *GMMLogicTree) GMMs(trt string) []string {
	t, ok := g.For(trt)
	if !ok {
		return nil
	}
	return t.LeafValues()
}

// Filter returns a tree restricted to the given TRTs. The shared tree is
// kept as is.
func (g *GMMLogicTree) Filter(trts []string) *GMMLogicTree {
	out := &GMMLogicTree{ByTRT: make(map[string]*Tree, len(trts)), Shared: g.Shared}
	for _, trt := range trts {
		if t, ok := g.ByTRT[trt]; ok {
			out.ByTRT[trt] = t
		}
	}
	return out
}

// TRTs returns the TRTs with a dedicated tree, sorted
func (g *GMMLogicTree) TRTs() []string {
	trts := make([]string, 0, len(g.ByTRT))
	for trt := range g.ByTRT {
		trts = append(trts, trt)
	}
	sort.Strings(trts)
	return trts
}
