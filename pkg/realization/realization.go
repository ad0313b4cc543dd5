// Package realization resolves logic tree paths into weighted realizations
// and associates every (TRT group, ground-motion model) pair with the
// realizations that select it.
package realization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dd0wney/cluso-hazard/pkg/logictree"
)

// Realization is one fully resolved combination of a source-model path and
// one ground-motion model per activated TRT. Immutable after association.
type Realization struct {
	Ordinal   int                       `json:"ordinal"`
	ModelName string                    `json:"model_name"`
	SMPath    logictree.Path            `json:"sm_path"`
	GMMPaths  map[string]logictree.Path `json:"gmm_paths"`
	GMMByTRT  map[string]string         `json:"gmm_by_trt"`
	Weight    float64                   `json:"weight"`
	Name      string                    `json:"name"`
}

// name formats the realization as #<ordinal>-<sm path>-<gmms>, the GMMs
// listed in TRT order
func (r *Realization) name(trts []string) string {
	gmms := make([]string, len(trts))
	for i, trt := range trts {
		gmms[i] = r.GMMByTRT[trt]
	}
	return fmt.Sprintf("#%d-%s-%s", r.Ordinal, r.SMPath.Key(), strings.Join(gmms, "_"))
}

// Key identifies one ground-motion model applied to one TRT group
type Key struct {
	GroupID int    `json:"grp_id"`
	GMM     string `json:"gmm"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d,%s", k.GroupID, k.GMM)
}

// RlzsAssoc maps (group, GMM) keys to the realizations selecting them.
// Read-only once built.
type RlzsAssoc struct {
	realizations []*Realization
	byKey        map[Key][]int
	keys         []Key
	groupTRT     map[int]string
	gmmsByGroup  map[int][]string
	groups       []int
	sampled      bool
}

// Realizations returns every realization ordered by ordinal
func (a *RlzsAssoc) Realizations() []*Realization {
	return a.realizations
}

// Len returns the number of realizations
func (a *RlzsAssoc) Len() int {
	return len(a.realizations)
}

// Sampled reports whether the realizations come from Monte Carlo sampling
func (a *RlzsAssoc) Sampled() bool {
	return a.sampled
}

// Weights returns the realization weights indexed by ordinal
func (a *RlzsAssoc) Weights() []float64 {
	w := make([]float64, len(a.realizations))
	for i, r := range a.realizations {
		w[i] = r.Weight
	}
	return w
}

// Keys returns every key sorted by group id then GMM name
func (a *RlzsAssoc) Keys() []Key {
	return a.keys
}

// Rlzs returns the ordinals of the realizations selecting key, ascending
func (a *RlzsAssoc) Rlzs(key Key) []int {
	return a.byKey[key]
}

// Weight returns the summed weight of the realizations selecting key
func (a *RlzsAssoc) Weight(key Key) float64 {
	total := 0.0
	for _, o := range a.byKey[key] {
		total += a.realizations[o].Weight
	}
	return total
}

// Groups returns the ids of the activated groups, ascending
func (a *RlzsAssoc) Groups() []int {
	return a.groups
}

// GroupTRT returns the TRT of an activated group
func (a *RlzsAssoc) GroupTRT(groupID int) string {
	return a.groupTRT[groupID]
}

// GMMsByGroup returns the sorted GMM names used by a group
func (a *RlzsAssoc) GMMsByGroup(groupID int) []string {
	return a.gmmsByGroup[groupID]
}

// Combine adds the values of every key into each realization selecting it.
// Realizations not touched by any key get zero.
func (a *RlzsAssoc) Combine(values map[Key]float64) []float64 {
	out := make([]float64, len(a.realizations))
	for _, key := range a.keys {
		v, ok := values[key]
		if !ok {
			continue
		}
		for _, o := range a.byKey[key] {
			out[o] += v
		}
	}
	return out
}

func (a *RlzsAssoc) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "<RlzsAssoc(%d)", len(a.realizations))
	for _, key := range a.keys {
		rlzs := a.byKey[key]
		names := make([]string, len(rlzs))
		for i, o := range rlzs {
			names[i] = fmt.Sprintf("#%d", o)
		}
		fmt.Fprintf(&sb, "\n%s: [%s]", key, strings.Join(names, ", "))
	}
	sb.WriteString(">")
	return sb.String()
}

func (a *RlzsAssoc) add(r *Realization, groups []groupRef) {
	a.realizations = append(a.realizations, r)
	for _, g := range groups {
		key := Key{GroupID: g.id, GMM: r.GMMByTRT[g.trt]}
		if _, seen := a.byKey[key]; !seen {
			a.keys = append(a.keys, key)
		}
		a.byKey[key] = append(a.byKey[key], r.Ordinal)
		a.groupTRT[g.id] = g.trt
	}
}

// freeze sorts keys and derives the per-group views
func (a *RlzsAssoc) freeze() {
	sort.Slice(a.keys, func(i, j int) bool {
		if a.keys[i].GroupID != a.keys[j].GroupID {
			return a.keys[i].GroupID < a.keys[j].GroupID
		}
		return a.keys[i].GMM < a.keys[j].GMM
	})
	for _, key := range a.keys {
		if len(a.gmmsByGroup[key.GroupID]) == 0 {
			a.groups = append(a.groups, key.GroupID)
		}
		a.gmmsByGroup[key.GroupID] = append(a.gmmsByGroup[key.GroupID], key.GMM)
	}
}

type groupRef struct {
	id  int
	trt string
}
