package aggregate

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
	"github.com/dd0wney/cluso-hazard/pkg/hazard"
	"github.com/dd0wney/cluso-hazard/pkg/logictree"
	"github.com/dd0wney/cluso-hazard/pkg/realization"
	"github.com/dd0wney/cluso-hazard/pkg/source"
)

const (
	active = "Active"
	stable = "Stable"
)

var imtls = []hazard.IMTLevels{{IMT: "PGA", Levels: []float64{0.1, 0.2}}}

func testSource(id, trt string) source.Source {
	return source.Source{
		ID:        id,
		TRT:       trt,
		Kind:      source.KindArea,
		Locations: []geo.Point{{Depth: 10}},
		MFD:       []source.MagBin{{Mag: 5, Rate: 0.01}},
	}
}

// testAssoc has group 0 (active, gmms G1/G2) and group 1 (stable, S1), so
// realization #0 uses G1+S1 and #1 uses G2+S1
func testAssoc(t testing.TB) *realization.RlzsAssoc {
	store, err := source.NewStore([]source.ModelInput{{
		Name:    "sm",
		Path:    []string{"b1"},
		Sources: []source.Source{testSource("a", active), testSource("b", stable), testSource("c", stable)},
	}})
	require.NoError(t, err)

	smTree, err := logictree.Compile(logictree.Definition{BranchSets: []logictree.BranchSetDef{{
		ID:       "bs",
		Branches: []logictree.BranchDef{{ID: "b1", Value: "sm", Weight: 1}},
	}}}, 0)
	require.NoError(t, err)

	gmmTree, err := logictree.CompileGMM(logictree.Definition{BranchSets: []logictree.BranchSetDef{
		{ID: "ga", TRT: active, Branches: []logictree.BranchDef{
			{ID: "g1", Value: "G1", Weight: 0.5},
			{ID: "g2", Value: "G2", Weight: 0.5},
		}},
		{ID: "gs", TRT: stable, Branches: []logictree.BranchDef{{ID: "s1", Value: "S1", Weight: 1}}},
	}}, 0)
	require.NoError(t, err)

	assoc, err := realization.Associate(store, smTree, gmmTree, realization.Options{})
	require.NoError(t, err)
	require.Equal(t, 2, assoc.Len())
	return assoc
}

func classicalOpts() Options {
	return Options{CalculationID: "calc", Kind: hazard.KindClassical, SiteIDs: []int{0, 1}, IMTLs: imtls, InvestigationTime: 50}
}

func partials() []*hazard.PartialResult {
	return []*hazard.PartialResult{
		{TaskID: 0, Kind: hazard.KindClassical, GroupID: 0, SiteIDs: []int{0, 1}, EffRuptures: 3, Rates: map[string][][]float64{
			"G1": {{0.1, 0.01}, {0.2, 0.02}},
			"G2": {{0.3, 0.03}, {0.4, 0.04}},
		}},
		{TaskID: 1, Kind: hazard.KindClassical, GroupID: 0, SiteIDs: []int{1}, EffRuptures: 1, Rates: map[string][][]float64{
			"G1": {{0.05, 0.005}},
			"G2": {{0.06, 0.006}},
		}},
		{TaskID: 2, Kind: hazard.KindClassical, GroupID: 1, SiteIDs: []int{0, 1}, EffRuptures: 2, Rates: map[string][][]float64{
			"S1": {{0.5, 0.05}, {0.6, 0.06}},
		}},
	}
}

func finalize(t testing.TB, assoc *realization.RlzsAssoc, order []int) *AggregateResult {
	all := partials()
	agg := New(assoc, classicalOpts())
	require.NoError(t, agg.Expect(0, 1, 2))
	for _, i := range order {
		require.NoError(t, agg.Fold(all[i]))
	}
	res, err := agg.Finalize()
	require.NoError(t, err)
	return res
}

func poe(rate float64) float64 { return 1 - math.Exp(-rate) }

func TestFinalizeClassical(t *testing.T) {
	res := finalize(t, testAssoc(t), []int{0, 1, 2})

	require.Len(t, res.Realizations, 2)
	assert.Equal(t, "calc", res.CalculationID)
	assert.Equal(t, map[int]int{0: 4, 1: 2}, res.EffRuptures)
	assert.Equal(t, 3, res.NumTasks)
	assert.Len(t, res.Digest, 64)

	g1s1 := res.Realizations[0].Curves
	assert.InDelta(t, poe(0.1+0.5), g1s1[0][0], 1e-15)
	assert.InDelta(t, poe(0.01+0.05), g1s1[0][1], 1e-15)
	assert.InDelta(t, poe(0.2+0.05+0.6), g1s1[1][0], 1e-15)

	g2s1 := res.Realizations[1].Curves
	assert.InDelta(t, poe(0.4+0.06+0.6), g2s1[1][0], 1e-15)
	assert.InDelta(t, 0.5, res.Realizations[1].Weight, 1e-12)
}

func TestFinalizeOrderIndependent(t *testing.T) {
	assoc := testAssoc(t)
	want := finalize(t, assoc, []int{0, 1, 2})

	for _, order := range [][]int{{0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}} {
		got := finalize(t, assoc, order)
		assert.Equal(t, want.Realizations, got.Realizations, "order %v", order)
		assert.Equal(t, want.Digest, got.Digest, "order %v", order)
	}
}

func TestFoldOrderProperty(t *testing.T) {
	assoc := testAssoc(t)
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("random task sets fold to the same digest in any order", prop.ForAll(
		func(rates []float64, seed uint64) bool {
			build := func() []*hazard.PartialResult {
				out := make([]*hazard.PartialResult, len(rates))
				for i, r := range rates {
					gmm, group := "G1", 0
					if i%3 == 2 {
						gmm, group = "S1", 1
					}
					out[i] = &hazard.PartialResult{
						TaskID:  uint64(i),
						Kind:    hazard.KindClassical,
						GroupID: group,
						SiteIDs: []int{i % 2},
						Rates:   map[string][][]float64{gmm: {{r, r / 3}}},
					}
				}
				return out
			}
			run := func(order []int) string {
				agg := New(assoc, classicalOpts())
				all := build()
				for i := range all {
					agg.Expect(uint64(i))
				}
				for _, i := range order {
					if err := agg.Fold(all[i]); err != nil {
						return "fold: " + err.Error()
					}
				}
				res, err := agg.Finalize()
				if err != nil {
					return "finalize: " + err.Error()
				}
				return res.Digest
			}

			order := make([]int, len(rates))
			for i := range order {
				order[i] = i
			}
			want := run(order)
			rand.New(rand.NewPCG(seed, 1)).Shuffle(len(order), func(i, j int) {
				order[i], order[j] = order[j], order[i]
			})
			return run(order) == want
		},
		gen.SliceOfN(12, gen.Float64Range(0, 1)),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}

func TestFoldErrors(t *testing.T) {
	all := partials()
	agg := New(testAssoc(t), classicalOpts())
	require.NoError(t, agg.Expect(0, 1, 2))
	assert.Error(t, agg.Expect(1))

	require.NoError(t, agg.Fold(all[0]))
	assert.ErrorIs(t, agg.Fold(all[0]), ErrDuplicateFold)
	assert.ErrorIs(t, agg.Fold(&hazard.PartialResult{TaskID: 9, Kind: hazard.KindClassical}), ErrUnexpectedTask)

	wrongKind := *all[1]
	wrongKind.Kind = hazard.KindEventBased
	assert.ErrorIs(t, agg.Fold(&wrongKind), ErrKindMismatch)

	badSite := *all[1]
	badSite.SiteIDs = []int{7}
	assert.ErrorIs(t, agg.Fold(&badSite), ErrShapeMismatch)

	badLevels := *all[1]
	badLevels.Rates = map[string][][]float64{"G1": {{0.1}}}
	assert.ErrorIs(t, agg.Fold(&badLevels), ErrShapeMismatch)

	assert.False(t, agg.Done())
	_, err := agg.Finalize()
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, agg.Fold(all[1]))
	require.NoError(t, agg.Fold(all[2]))
	assert.True(t, agg.Done())
	assert.Equal(t, 3, agg.Folded())

	_, err = agg.Finalize()
	require.NoError(t, err)
	_, err = agg.Finalize()
	assert.ErrorIs(t, err, ErrFrozen)
	assert.True(t, errors.Is(agg.Fold(all[0]), ErrFrozen))
}

func TestFinalizeEventBased(t *testing.T) {
	opts := classicalOpts()
	opts.Kind = hazard.KindEventBased
	agg := New(testAssoc(t), opts)
	require.NoError(t, agg.Expect(4, 7))

	require.NoError(t, agg.Fold(&hazard.PartialResult{TaskID: 7, Kind: hazard.KindEventBased, GroupID: 1, SiteIDs: []int{0},
		Ruptures: []hazard.RuptureOccurrence{{RootID: "b", Serial: 0, GroupID: 1, Occurrences: 1}}}))
	require.NoError(t, agg.Fold(&hazard.PartialResult{TaskID: 4, Kind: hazard.KindEventBased, GroupID: 0, SiteIDs: []int{0},
		Ruptures: []hazard.RuptureOccurrence{
			{RootID: "a", Serial: 3, GroupID: 0, Occurrences: 2},
			{RootID: "a", Serial: 1, GroupID: 0, Occurrences: 1},
		}}))

	res, err := agg.Finalize()
	require.NoError(t, err)
	for _, rlz := range res.Realizations {
		require.Len(t, rlz.Ruptures, 3)
		assert.Equal(t, "a", rlz.Ruptures[0].RootID)
		assert.Equal(t, 1, rlz.Ruptures[0].Serial)
		assert.Equal(t, 3, rlz.Ruptures[1].Serial)
		assert.Equal(t, "b", rlz.Ruptures[2].RootID)
		assert.Nil(t, rlz.Curves)
	}
}

func TestRealizationLookup(t *testing.T) {
	res := finalize(t, testAssoc(t), []int{0, 1, 2})
	rlz, err := res.Realization(1)
	require.NoError(t, err)
	assert.Equal(t, 1, rlz.Ordinal)
	_, err = res.Realization(2)
	assert.Error(t, err)
	assert.Equal(t, []float64{0.5, 0.5}, res.Weights())
}
