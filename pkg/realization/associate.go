package realization

import (
	"errors"
	"sort"

	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/logictree"
	"github.com/dd0wney/cluso-hazard/pkg/source"
)

// Options controls how realizations are produced
type Options struct {
	// NumSamples selects Monte Carlo sampling when positive; zero means
	// full enumeration
	NumSamples int
	Seed       int64
	Logger     logging.Logger
}

// Associate builds the realizations and their association table. Source-model
// paths are iterated outermost and GMM combinations innermost; ordinals follow
// that order.
func Associate(store *source.Store, smTree *logictree.Tree, gmmTree *logictree.GMMLogicTree, opts Options) (*RlzsAssoc, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	a := &RlzsAssoc{
		byKey:       make(map[Key][]int),
		groupTRT:    make(map[int]string),
		gmmsByGroup: make(map[int][]string),
		sampled:     opts.NumSamples > 0,
	}

	var smPaths []logictree.Path
	if a.sampled {
		smPaths = smTree.Sample(opts.NumSamples, opts.Seed)
	} else {
		smPaths = smTree.Enumerate()
	}

	for idx, smPath := range smPaths {
		sm, err := modelFor(store, smPath)
		if err != nil {
			return nil, &AssociationError{GroupID: -1, Path: smPath.Key(), Reason: err.Error()}
		}

		groups, trts := activeGroups(sm)
		if len(groups) == 0 {
			logger.Warn("source model path activates no group",
				logging.Path(smPath.Key()), logging.String("model", sm.Name))
			continue
		}

		trees := make([]*logictree.Tree, len(trts))
		for i, trt := range trts {
			tree, ok := gmmTree.For(trt)
			if !ok || len(tree.LeafValues()) == 0 {
				g := firstGroupOf(groups, trt)
				return nil, &AssociationError{
					GroupID: g.id,
					TRT:     trt,
					Path:    smPath.Key(),
					Reason:  "no applicable ground-motion model",
				}
			}
			trees[i] = tree
		}

		if a.sampled {
			rng := logictree.NewRand(opts.Seed + int64(idx))
			combo := make([]logictree.Path, len(trees))
			for i, tree := range trees {
				combo[i] = tree.SampleOne(rng)
			}
			a.add(newRealization(len(a.realizations), sm.Name, smPath, trts, combo, smPath.Weight), groups)
			continue
		}

		for _, combo := range crossProduct(trees) {
			w := smPath.Weight
			for _, p := range combo {
				w *= p.Weight
			}
			a.add(newRealization(len(a.realizations), sm.Name, smPath, trts, combo, w), groups)
		}
	}

	if len(a.realizations) == 0 {
		return nil, &AssociationError{GroupID: -1, Path: "*", Reason: "no realization could be built"}
	}
	a.freeze()

	logger.Info("realizations associated",
		logging.Int("realizations", len(a.realizations)),
		logging.Int("groups", len(a.groups)),
		logging.Bool("sampled", a.sampled))
	return a, nil
}

func newRealization(ordinal int, model string, smPath logictree.Path, trts []string, combo []logictree.Path, weight float64) *Realization {
	r := &Realization{
		Ordinal:   ordinal,
		ModelName: model,
		SMPath:    smPath,
		GMMPaths:  make(map[string]logictree.Path, len(trts)),
		GMMByTRT:  make(map[string]string, len(trts)),
		Weight:    weight,
	}
	for i, trt := range trts {
		r.GMMPaths[trt] = combo[i]
		r.GMMByTRT[trt] = combo[i].Leaf()
	}
	r.Name = r.name(trts)
	return r
}

// modelFor finds the source model for a path, trying the full path first and
// then ever shorter prefixes, so branch sets below the source-model choice
// need no model of their own
func modelFor(store *source.Store, path logictree.Path) (*source.SourceModel, error) {
	var firstErr error
	for n := len(path.IDs); n > 0; n-- {
		sm, err := store.ModelByPath(path.IDs[:n])
		if err == nil {
			return sm, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if firstErr == nil {
		firstErr = errors.New("empty path")
	}
	return nil, firstErr
}

// activeGroups returns the groups of sm generating at least one rupture and
// their sorted distinct TRTs
func activeGroups(sm *source.SourceModel) ([]groupRef, []string) {
	var groups []groupRef
	seen := make(map[string]bool)
	var trts []string
	for _, g := range sm.Groups {
		if g.NumRuptures == 0 {
			continue
		}
		groups = append(groups, groupRef{id: g.ID, trt: g.TRT})
		if !seen[g.TRT] {
			seen[g.TRT] = true
			trts = append(trts, g.TRT)
		}
	}
	sort.Strings(trts)
	return groups, trts
}

func firstGroupOf(groups []groupRef, trt string) groupRef {
	for _, g := range groups {
		if g.trt == trt {
			return g
		}
	}
	return groupRef{id: -1, trt: trt}
}

// crossProduct enumerates every combination of one path per tree, the first
// tree varying slowest
func crossProduct(trees []*logictree.Tree) [][]logictree.Path {
	combos := [][]logictree.Path{nil}
	for _, tree := range trees {
		paths := tree.Enumerate()
		next := make([][]logictree.Path, 0, len(combos)*len(paths))
		for _, c := range combos {
			for _, p := range paths {
				combo := append(append([]logictree.Path(nil), c...), p)
				next = append(next, combo)
			}
		}
		combos = next
	}
	return combos
}
