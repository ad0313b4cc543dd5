package hazard

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
	"github.com/dd0wney/cluso-hazard/pkg/gmm"
	"github.com/dd0wney/cluso-hazard/pkg/source"
)

// Classical accumulates, for every GMM, site and level, the sum over
// ruptures of rate * T * poe. The probability of exceedance in T years is
// 1 - exp(-sum), so partial sums from different tasks combine by addition.
func Classical(ctx context.Context, task *Task, registry *gmm.Registry) (*PartialResult, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	models, err := resolve(task.GMMs, registry)
	if err != nil {
		return nil, err
	}

	sites := task.Sites.Sites
	nLevels := NumLevels(task.IMTLs)
	res := newResult(task)
	res.Rates = make(map[string][][]float64, len(models))
	for _, m := range models {
		acc := make([][]float64, len(sites))
		for i := range acc {
			acc[i] = make([]float64, nLevels)
		}
		res.Rates[m.Name()] = acc
	}

	for _, src := range task.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		src.EachRupture(func(rup source.Rupture) {
			effective := false
			scale := rup.Rate * task.InvestigationTime
			for si, site := range sites {
				dist := geo.Distance(rup.Location, site.Location)
				if task.MaxDistance > 0 && dist > task.MaxDistance {
					continue
				}
				effective = true
				for _, m := range models {
					acc := res.Rates[m.Name()][si]
					offset := 0
					for _, il := range task.IMTLs {
						poes := m.PoEs(rup.Mag, dist, site, il.IMT, il.Levels, task.Truncation)
						for l, poe := range poes {
							acc[offset+l] += scale * poe
						}
						offset += len(il.Levels)
					}
				}
			}
			if effective {
				res.EffRuptures++
			}
		})
		res.SourceTimes = append(res.SourceTimes, SourceTime{
			SourceID:    src.ID,
			NumRuptures: src.NumRuptures(),
			Elapsed:     time.Since(start),
		})
	}
	return res, nil
}

// EventBased samples the number of occurrences of every rupture over
// T * SESPerPath years. The draw of a rupture depends only on the task seed
// and the rupture identity, so splitting a source never changes the sample.
func EventBased(ctx context.Context, task *Task) (*PartialResult, error) {
	if err := task.Validate(); err != nil {
		return nil, err
	}
	ses := task.SESPerPath
	if ses <= 0 {
		ses = 1
	}
	span := task.InvestigationTime * float64(ses)
	sites := task.Sites.Sites
	res := newResult(task)

	for _, src := range task.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := time.Now()
		src.EachRupture(func(rup source.Rupture) {
			if !withinAny(rup.Location, sites, task.MaxDistance) {
				return
			}
			res.EffRuptures++
			n := poisson(ruptureRand(task.Seed, rup.RootID, rup.Serial), rup.Rate*span)
			if n == 0 {
				return
			}
			res.Ruptures = append(res.Ruptures, RuptureOccurrence{
				RootID:      rup.RootID,
				Serial:      rup.Serial,
				GroupID:     task.GroupID,
				Mag:         rup.Mag,
				Occurrences: n,
			})
		})
		res.SourceTimes = append(res.SourceTimes, SourceTime{
			SourceID:    src.ID,
			NumRuptures: src.NumRuptures(),
			Elapsed:     time.Since(start),
		})
	}
	sort.Slice(res.Ruptures, func(i, j int) bool { return res.Ruptures[i].Less(res.Ruptures[j]) })
	return res, nil
}

// Run dispatches the task to its kernel
func Run(ctx context.Context, task *Task, registry *gmm.Registry) (*PartialResult, error) {
	switch task.Kind {
	case KindClassical:
		return Classical(ctx, task, registry)
	case KindEventBased:
		return EventBased(ctx, task)
	default:
		return nil, task.Validate()
	}
}

func newResult(task *Task) *PartialResult {
	return &PartialResult{
		TaskID:  task.ID,
		Kind:    task.Kind,
		GroupID: task.GroupID,
		SiteIDs: task.Sites.IDs(),
	}
}

func resolve(names []string, registry *gmm.Registry) ([]gmm.Model, error) {
	models := make([]gmm.Model, len(names))
	for i, name := range names {
		m, err := registry.Get(name)
		if err != nil {
			return nil, err
		}
		models[i] = m
	}
	return models, nil
}

func withinAny(p geo.Point, sites []geo.Site, maxDist float64) bool {
	if maxDist <= 0 {
		return len(sites) > 0
	}
	for _, s := range sites {
		if geo.Distance(p, s.Location) <= maxDist {
			return true
		}
	}
	return false
}

// ruptureRand returns a generator determined by the seed and the rupture
func ruptureRand(seed int64, rootID string, serial int) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(rootID))
	return rand.New(rand.NewPCG(uint64(seed)^h.Sum64(), uint64(serial)))
}

// poisson draws from a Poisson distribution of mean lambda
func poisson(rng *rand.Rand, lambda float64) int {
	if lambda <= 0 {
		return 0
	}
	if lambda > 500 {
		// normal approximation for large means
		n := math.Round(lambda + math.Sqrt(lambda)*rng.NormFloat64())
		return int(math.Max(0, n))
	}
	limit := math.Exp(-lambda)
	n := 0
	p := rng.Float64()
	for p > limit {
		n++
		p *= rng.Float64()
	}
	return n
}
