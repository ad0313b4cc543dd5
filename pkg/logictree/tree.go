// Package logictree models weighted logic trees of epistemic uncertainty as
// an indexed directed acyclic graph. Branches refer to their child branch set
// by index, so several branches may share one child set without any node
// being owned twice.
package logictree

import (
	"math"
	"strings"
)

// DefaultTolerance is the absolute tolerance used when checking that sibling
// weights sum to one.
const DefaultTolerance = 1e-6

// Uncertainty types understood by the engine
const (
	UncertaintySourceModel = "sourceModel"
	UncertaintyGMPEModel   = "gmpeModel"
)

// BranchDef is a branch as supplied by the input layer
type BranchDef struct {
	ID     string  `json:"id" yaml:"id"`
	Value  string  `json:"value" yaml:"value"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// BranchSetDef is a branch set as supplied by the input layer. AppliesTo lists
// the parent branch ids; an empty list marks the root set.
type BranchSetDef struct {
	ID              string      `json:"id" yaml:"id"`
	UncertaintyType string      `json:"uncertainty_type" yaml:"uncertainty_type"`
	TRT             string      `json:"trt,omitempty" yaml:"trt,omitempty"`
	AppliesTo       []string    `json:"applies_to,omitempty" yaml:"applies_to,omitempty"`
	Branches        []BranchDef `json:"branches" yaml:"branches"`
}

// Definition is an uncompiled logic tree
type Definition struct {
	BranchSets []BranchSetDef `json:"branch_sets" yaml:"branch_sets"`
}

// Branch is a compiled branch. Child is the index of the branch set that
// follows it, or -1 for a leaf.
type Branch struct {
	Index  int
	ID     string
	Value  string
	Weight float64
	Set    int
	Child  int
}

// BranchSet is a compiled branch set
type BranchSet struct {
	Index           int
	ID              string
	UncertaintyType string
	TRT             string
	Branches        []int
}

// Tree is a compiled, validated logic tree. It is read-only.
type Tree struct {
	Sets     []BranchSet
	Branches []Branch
	Root     int
}

// Path is one root-to-leaf walk through a tree
type Path struct {
	Indices []int    `json:"indices"`
	IDs     []string `json:"ids"`
	Values  []string `json:"values"`
	Weight  float64  `json:"weight"`
}

// Key returns the branch ids of the path joined by "_"
func (p Path) Key() string {
	return strings.Join(p.IDs, "_")
}

// Leaf returns the value of the last branch of the path
func (p Path) Leaf() string {
	if len(p.Values) == 0 {
		return ""
	}
	return p.Values[len(p.Values)-1]
}

// Compile validates a definition and builds its indexed DAG. A tolerance of
// zero or less selects DefaultTolerance.
func Compile(def Definition, tolerance float64) (*Tree, error) {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	if len(def.BranchSets) == 0 {
		return nil, malformed("", "no branch sets")
	}

	t := &Tree{Root: -1}
	setIdx := make(map[string]int, len(def.BranchSets))
	branchIdx := make(map[string]int)

	// first pass: index sets and branches, check local constraints
	for i, sd := range def.BranchSets {
		if sd.ID == "" {
			return nil, malformed("", "branch set %d has no id", i)
		}
		if _, dup := setIdx[sd.ID]; dup {
			return nil, malformed(sd.ID, "duplicated branch set id")
		}
		if len(sd.Branches) == 0 {
			return nil, malformed(sd.ID, "branch set has no branches")
		}
		setIdx[sd.ID] = i

		set := BranchSet{Index: i, ID: sd.ID, UncertaintyType: sd.UncertaintyType, TRT: sd.TRT}
		sum := 0.0
		for _, bd := range sd.Branches {
			if bd.ID == "" {
				return nil, malformed(sd.ID, "branch with no id")
			}
			if _, dup := branchIdx[bd.ID]; dup {
				return nil, malformed(bd.ID, "duplicated branch id")
			}
			if bd.Weight < 0 || bd.Weight > 1 || math.IsNaN(bd.Weight) {
				return nil, malformed(bd.ID, "weight %g outside [0, 1]", bd.Weight)
			}
			sum += bd.Weight
			b := Branch{
				Index:  len(t.Branches),
				ID:     bd.ID,
				Value:  bd.Value,
				Weight: bd.Weight,
				Set:    i,
				Child:  -1,
			}
			branchIdx[bd.ID] = b.Index
			set.Branches = append(set.Branches, b.Index)
			t.Branches = append(t.Branches, b)
		}
		if math.Abs(sum-1) > tolerance {
			return nil, malformed(sd.ID, "branch weights sum to %.9g, not 1", sum)
		}
		t.Sets = append(t.Sets, set)
	}

	// second pass: link parents to children
	for i, sd := range def.BranchSets {
		if len(sd.AppliesTo) == 0 {
			if t.Root >= 0 {
				return nil, malformed(sd.ID, "second root branch set (first is %s)", t.Sets[t.Root].ID)
			}
			t.Root = i
			continue
		}
		for _, parentID := range sd.AppliesTo {
			p, ok := branchIdx[parentID]
			if !ok {
				return nil, malformed(sd.ID, "undefined parent branch %q", parentID)
			}
			if t.Branches[p].Child >= 0 && t.Branches[p].Child != i {
				return nil, malformed(parentID, "branch already has child set %s", t.Sets[t.Branches[p].Child].ID)
			}
			t.Branches[p].Child = i
		}
	}
	if t.Root < 0 {
		return nil, malformed("", "no root branch set")
	}
	if err := t.checkAcyclic(); err != nil {
		return nil, err
	}
	return t, nil
}

// checkAcyclic walks the graph from every set with the usual three colours
func (t *Tree) checkAcyclic() error {
	const (
		white = iota
		grey
		black
	)
	colour := make([]int, len(t.Sets))

	var visit func(set int) error
	visit = func(set int) error {
		colour[set] = grey
		for _, b := range t.Sets[set].Branches {
			child := t.Branches[b].Child
			if child < 0 {
				continue
			}
			switch colour[child] {
			case grey:
				return malformed(t.Sets[child].ID, "cycle through branch %s", t.Branches[b].ID)
			case white:
				if err := visit(child); err != nil {
					return err
				}
			}
		}
		colour[set] = black
		return nil
	}

	for i := range t.Sets {
		if colour[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

// PathWeight returns the product of the weights of the given branches,
// recomputed from the tree
func (t *Tree) PathWeight(indices []int) float64 {
	w := 1.0
	for _, i := range indices {
		w *= t.Branches[i].Weight
	}
	return w
}

// NumPaths returns the number of distinct root-to-leaf paths
func (t *Tree) NumPaths() int {
	memo := make(map[int]int)
	var count func(set int) int
	count = func(set int) int {
		if n, ok := memo[set]; ok {
			return n
		}
		n := 0
		for _, b := range t.Sets[set].Branches {
			if child := t.Branches[b].Child; child >= 0 {
				n += count(child)
			} else {
				n++
			}
		}
		memo[set] = n
		return n
	}
	return count(t.Root)
}

// Enumerate returns every root-to-leaf path exactly once, in pre-order
func (t *Tree) Enumerate() []Path {
	var out []Path
	var walk func(set int, prefix []int)
	walk = func(set int, prefix []int) {
		for _, b := range t.Sets[set].Branches {
			indices := append(append([]int(nil), prefix...), b)
			if child := t.Branches[b].Child; child >= 0 {
				walk(child, indices)
				continue
			}
			out = append(out, t.path(indices))
		}
	}
	walk(t.Root, nil)
	return out
}

// path materialises a Path from branch indices, weighting it from the tree
func (t *Tree) path(indices []int) Path {
	p := Path{
		Indices: indices,
		IDs:     make([]string, len(indices)),
		Values:  make([]string, len(indices)),
		Weight:  t.PathWeight(indices),
	}
	for i, b := range indices {
		p.IDs[i] = t.Branches[b].ID
		p.Values[i] = t.Branches[b].Value
	}
	return p
}

// LeafValues returns the distinct leaf branch values in pre-order
func (t *Tree) LeafValues() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range t.Enumerate() {
		if v := p.Leaf(); !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
