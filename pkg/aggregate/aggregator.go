// Package aggregate folds task results into the per-realization result of a
// calculation. Folds may arrive in any order: each one is kept in the slot
// of its task id and Finalize reduces the slots in a fixed order, so the
// frozen result does not depend on completion order.
package aggregate

import (
	"fmt"
	"math"
	"sort"

	"github.com/dd0wney/cluso-hazard/pkg/hazard"
	"github.com/dd0wney/cluso-hazard/pkg/realization"
)

// Aggregator is the single writer of an AggregateResult. Not safe for
// concurrent use; the scheduler folds from one goroutine.
type Aggregator struct {
	calcID            string
	assoc             *realization.RlzsAssoc
	kind              hazard.Kind
	siteIDs           []int
	sitePos           map[int]int
	imtls             []hazard.IMTLevels
	nLevels           int
	investigationTime float64

	expected map[uint64]bool
	slots    map[uint64]*hazard.PartialResult
	frozen   bool
}

// Options describes the shape of the calculation being aggregated
type Options struct {
	CalculationID     string
	Kind              hazard.Kind
	SiteIDs           []int
	IMTLs             []hazard.IMTLevels
	InvestigationTime float64
}

// New creates an aggregator for the realizations of assoc
func New(assoc *realization.RlzsAssoc, opts Options) *Aggregator {
	pos := make(map[int]int, len(opts.SiteIDs))
	for i, id := range opts.SiteIDs {
		pos[id] = i
	}
	return &Aggregator{
		calcID:            opts.CalculationID,
		assoc:             assoc,
		kind:              opts.Kind,
		siteIDs:           opts.SiteIDs,
		sitePos:           pos,
		imtls:             opts.IMTLs,
		nLevels:           hazard.NumLevels(opts.IMTLs),
		investigationTime: opts.InvestigationTime,
		expected:          make(map[uint64]bool),
		slots:             make(map[uint64]*hazard.PartialResult),
	}
}

// Expect registers the ids of the dispatched tasks
func (a *Aggregator) Expect(taskIDs ...uint64) error {
	if a.frozen {
		return ErrFrozen
	}
	for _, id := range taskIDs {
		if a.expected[id] {
			return fmt.Errorf("task %d expected twice", id)
		}
		a.expected[id] = true
	}
	return nil
}

// Fold stores the result of one expected task. A task can be folded once.
func (a *Aggregator) Fold(p *hazard.PartialResult) error {
	if a.frozen {
		return ErrFrozen
	}
	if !a.expected[p.TaskID] {
		return fmt.Errorf("%w: %d", ErrUnexpectedTask, p.TaskID)
	}
	if _, done := a.slots[p.TaskID]; done {
		return fmt.Errorf("%w: %d", ErrDuplicateFold, p.TaskID)
	}
	if p.Kind != a.kind {
		return fmt.Errorf("%w: task %d is %s", ErrKindMismatch, p.TaskID, p.Kind)
	}
	if err := a.checkShape(p); err != nil {
		return err
	}
	a.slots[p.TaskID] = p
	return nil
}

func (a *Aggregator) checkShape(p *hazard.PartialResult) error {
	for _, id := range p.SiteIDs {
		if _, ok := a.sitePos[id]; !ok {
			return fmt.Errorf("%w: task %d has unknown site %d", ErrShapeMismatch, p.TaskID, id)
		}
	}
	for gmm, rows := range p.Rates {
		if len(rows) != len(p.SiteIDs) {
			return fmt.Errorf("%w: task %d gmm %s has %d rows for %d sites",
				ErrShapeMismatch, p.TaskID, gmm, len(rows), len(p.SiteIDs))
		}
		for _, row := range rows {
			if len(row) != a.nLevels {
				return fmt.Errorf("%w: task %d gmm %s has %d levels, want %d",
					ErrShapeMismatch, p.TaskID, gmm, len(row), a.nLevels)
			}
		}
	}
	return nil
}

// Folded returns the number of folded tasks
func (a *Aggregator) Folded() int {
	return len(a.slots)
}

// Done reports whether every expected task has been folded
func (a *Aggregator) Done() bool {
	return len(a.slots) == len(a.expected)
}

// Finalize reduces the folded results and freezes the aggregate. It fails
// with ErrIncomplete unless every expected task was folded.
func (a *Aggregator) Finalize() (*AggregateResult, error) {
	if a.frozen {
		return nil, ErrFrozen
	}
	if !a.Done() {
		return nil, fmt.Errorf("%w: %d of %d", ErrIncomplete, len(a.slots), len(a.expected))
	}

	ids := make([]uint64, 0, len(a.slots))
	for id := range a.slots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	res := &AggregateResult{
		CalculationID:     a.calcID,
		Kind:              a.kind,
		SiteIDs:           a.siteIDs,
		IMTLs:             a.imtls,
		InvestigationTime: a.investigationTime,
		EffRuptures:       make(map[int]int),
		NumTasks:          len(ids),
	}
	for _, id := range ids {
		res.EffRuptures[a.slots[id].GroupID] += a.slots[id].EffRuptures
	}

	res.Realizations = make([]RealizationResult, a.assoc.Len())
	for i, rlz := range a.assoc.Realizations() {
		res.Realizations[i] = RealizationResult{Ordinal: rlz.Ordinal, Name: rlz.Name, Weight: rlz.Weight}
	}

	switch a.kind {
	case hazard.KindClassical:
		a.reduceCurves(ids, res)
	case hazard.KindEventBased:
		a.reduceRuptures(ids, res)
	default:
		return nil, fmt.Errorf("%w: %q", hazard.ErrUnknownKind, a.kind)
	}

	digest, err := res.ComputeDigest()
	if err != nil {
		return nil, err
	}
	res.Digest = digest
	a.frozen = true
	a.slots = nil
	return res, nil
}

// reduceCurves sums exceedance rates per (group, gmm) in task id order, then
// per realization over its groups in ascending group id, and converts the
// total rate to a probability of exceedance
func (a *Aggregator) reduceCurves(ids []uint64, res *AggregateResult) {
	byKey := make(map[realization.Key][][]float64)
	for _, id := range ids {
		p := a.slots[id]
		gmms := make([]string, 0, len(p.Rates))
		for gmm := range p.Rates {
			gmms = append(gmms, gmm)
		}
		sort.Strings(gmms)
		for _, gmm := range gmms {
			key := realization.Key{GroupID: p.GroupID, GMM: gmm}
			acc, ok := byKey[key]
			if !ok {
				acc = a.newCurve()
				byKey[key] = acc
			}
			for i, row := range p.Rates[gmm] {
				dst := acc[a.sitePos[p.SiteIDs[i]]]
				for l, v := range row {
					dst[l] += v
				}
			}
		}
	}

	rates := make([][][]float64, len(res.Realizations))
	for i := range rates {
		rates[i] = a.newCurve()
	}
	for _, key := range a.assoc.Keys() {
		acc, ok := byKey[key]
		if !ok {
			continue
		}
		for _, o := range a.assoc.Rlzs(key) {
			for s, row := range acc {
				for l, v := range row {
					rates[o][s][l] += v
				}
			}
		}
	}

	for o, curve := range rates {
		for _, row := range curve {
			for l, v := range row {
				row[l] = -math.Expm1(-v)
			}
		}
		res.Realizations[o].Curves = curve
	}
}

// reduceRuptures gives every realization the union of the ruptures of its
// groups, sorted by rupture identity
func (a *Aggregator) reduceRuptures(ids []uint64, res *AggregateResult) {
	byGroup := make(map[int][]hazard.RuptureOccurrence)
	for _, id := range ids {
		p := a.slots[id]
		byGroup[p.GroupID] = append(byGroup[p.GroupID], p.Ruptures...)
	}

	for _, key := range a.assoc.Keys() {
		rups := byGroup[key.GroupID]
		for _, o := range a.assoc.Rlzs(key) {
			res.Realizations[o].Ruptures = append(res.Realizations[o].Ruptures, rups...)
		}
	}
	for o := range res.Realizations {
		rups := res.Realizations[o].Ruptures
		sort.Slice(rups, func(i, j int) bool {
			if rups[i].Less(rups[j]) {
				return true
			}
			if rups[j].Less(rups[i]) {
				return false
			}
			return rups[i].GroupID < rups[j].GroupID
		})
	}
}

func (a *Aggregator) newCurve() [][]float64 {
	curve := make([][]float64, len(a.siteIDs))
	for i := range curve {
		curve[i] = make([]float64, a.nLevels)
	}
	return curve
}
