// Package stats derives statistical curves and hazard maps from the
// per-realization curves of a frozen result.
package stats

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/dd0wney/cluso-hazard/pkg/aggregate"
	"github.com/dd0wney/cluso-hazard/pkg/hazard"
)

// Epsilon is the cutoff applied to poes before log interpolation
const Epsilon = 1e-30

var (
	ErrNoCurves      = errors.New("no curves")
	ErrShapeMismatch = errors.New("curves have different shapes")
	ErrBadQuantile   = errors.New("quantile must be in [0, 1]")
	ErrBadWeights    = errors.New("weights do not match curves")
)

// Curve is a probability-of-exceedance curve per site per level
type Curve = [][]float64

func checkShape(curves []Curve, weights []float64) error {
	if len(curves) == 0 {
		return ErrNoCurves
	}
	if weights != nil && len(weights) != len(curves) {
		return fmt.Errorf("%w: %d weights for %d curves", ErrBadWeights, len(weights), len(curves))
	}
	for _, c := range curves[1:] {
		if len(c) != len(curves[0]) {
			return ErrShapeMismatch
		}
		for s := range c {
			if len(c[s]) != len(curves[0][s]) {
				return ErrShapeMismatch
			}
		}
	}
	return nil
}

func newLike(c Curve) Curve {
	out := make(Curve, len(c))
	for s := range c {
		out[s] = make([]float64, len(c[s]))
	}
	return out
}

// MeanCurve returns the weighted mean of the curves; nil weights mean equal
// weights
func MeanCurve(curves []Curve, weights []float64) (Curve, error) {
	if err := checkShape(curves, weights); err != nil {
		return nil, err
	}
	out := newLike(curves[0])
	total := 0.0
	for i, c := range curves {
		w := 1.0
		if weights != nil {
			w = weights[i]
		}
		total += w
		for s, row := range c {
			for l, v := range row {
				out[s][l] += w * v
			}
		}
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: zero total weight", ErrBadWeights)
	}
	for _, row := range out {
		for l := range row {
			row[l] /= total
		}
	}
	return out, nil
}

// QuantileCurve returns the q-quantile of the curves at every site and
// level. With nil weights (sampled realizations) the sample quantile uses
// the plotting positions alpha = beta = 0.4; otherwise the weighted quantile
// interpolates on the cumulative weights.
func QuantileCurve(curves []Curve, q float64, weights []float64) (Curve, error) {
	if q < 0 || q > 1 || math.IsNaN(q) {
		return nil, fmt.Errorf("%w: %v", ErrBadQuantile, q)
	}
	if err := checkShape(curves, weights); err != nil {
		return nil, err
	}
	if weights != nil {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		if total <= 0 {
			return nil, fmt.Errorf("%w: zero total weight", ErrBadWeights)
		}
	}
	out := newLike(curves[0])
	values := make([]float64, len(curves))
	for s := range out {
		for l := range out[s] {
			for i, c := range curves {
				values[i] = c[s][l]
			}
			if weights == nil {
				out[s][l] = sampleQuantile(values, q)
			} else {
				out[s][l] = weightedQuantile(values, weights, q)
			}
		}
	}
	return out, nil
}

func sampleQuantile(values []float64, q float64) float64 {
	data := append([]float64(nil), values...)
	sort.Float64s(data)
	n := len(data)
	if n == 1 {
		return data[0]
	}
	aleph := float64(n)*q + 0.4 + 0.2*q
	k := int(math.Floor(math.Min(math.Max(aleph, 1), float64(n-1))))
	gamma := math.Min(math.Max(aleph-float64(k), 0), 1)
	return (1-gamma)*data[k-1] + gamma*data[k]
}

func weightedQuantile(values, weights []float64, q float64) float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	cum := make([]float64, len(idx))
	sorted := make([]float64, len(idx))
	total := 0.0
	for i, j := range idx {
		total += weights[j]
		cum[i] = total
		sorted[i] = values[j]
	}
	// weights need not sum to one, as for MeanCurve
	for i := range cum {
		cum[i] /= total
	}
	return interp(q, cum, sorted)
}

// interp is linear interpolation of (xp, fp) at x, clamped to the end
// values outside xp; xp must be non-decreasing
func interp(x float64, xp, fp []float64) float64 {
	n := len(xp)
	if x <= xp[0] {
		return fp[0]
	}
	if x >= xp[n-1] {
		return fp[n-1]
	}
	i := sort.SearchFloat64s(xp, x)
	// xp[i-1] < x <= xp[i]
	if xp[i] == xp[i-1] {
		return fp[i]
	}
	t := (x - xp[i-1]) / (xp[i] - xp[i-1])
	return fp[i-1] + t*(fp[i]-fp[i-1])
}

// HazardMap returns, for every poe, the intensity level at which the curve
// reaches it, interpolated in log-log space. A poe above the curve maximum
// gives 0.
func HazardMap(curve, levels, poes []float64) ([]float64, error) {
	if len(curve) != len(levels) {
		return nil, fmt.Errorf("the curve has %d levels, %d were passed", len(curve), len(levels))
	}
	n := len(curve)
	logPoes := make([]float64, n)
	logLevels := make([]float64, n)
	// reversed so the poes increase
	for i := 0; i < n; i++ {
		logPoes[i] = math.Log(math.Max(curve[n-1-i], Epsilon))
		logLevels[i] = math.Log(levels[n-1-i])
	}

	out := make([]float64, len(poes))
	for j, poe := range poes {
		if n == 0 || poe > math.Max(curve[0], Epsilon) {
			continue
		}
		out[j] = math.Exp(interp(math.Log(poe), logPoes, logLevels))
	}
	return out, nil
}

// HazardMaps computes the map of every site and IMT of a curve; the result
// is indexed [site][imt][poe]
func HazardMaps(curve Curve, imtls []hazard.IMTLevels, poes []float64) ([][][]float64, error) {
	out := make([][][]float64, len(curve))
	for s, row := range curve {
		if len(row) != hazard.NumLevels(imtls) {
			return nil, fmt.Errorf("%w: site %d has %d levels", ErrShapeMismatch, s, len(row))
		}
		offset := 0
		out[s] = make([][]float64, len(imtls))
		for m, il := range imtls {
			vals, err := HazardMap(row[offset:offset+len(il.Levels)], il.Levels, poes)
			if err != nil {
				return nil, err
			}
			out[s][m] = vals
			offset += len(il.Levels)
		}
	}
	return out, nil
}

// Options selects the statistics to compute
type Options struct {
	Mean      bool
	Quantiles []float64
	PoEs      []float64 // hazard map poes
	Sampled   bool      // realizations are Monte Carlo samples of equal weight
}

// QuantileKey names a quantile curve, e.g. "quantile-0.15"
func QuantileKey(q float64) string {
	return fmt.Sprintf("quantile-%v", q)
}

// Compute derives the statistics of a classical result
func Compute(res *aggregate.AggregateResult, opts Options) (*aggregate.Statistics, error) {
	if res.Kind != hazard.KindClassical {
		return nil, nil
	}
	curves := make([]Curve, len(res.Realizations))
	for i, rlz := range res.Realizations {
		curves[i] = rlz.Curves
	}
	var weights []float64
	if !opts.Sampled {
		weights = res.Weights()
	}

	st := &aggregate.Statistics{}
	named := make(map[string]Curve)
	var names []string
	if opts.Mean || len(opts.Quantiles) == 0 && len(opts.PoEs) > 0 {
		mean, err := MeanCurve(curves, weights)
		if err != nil {
			return nil, fmt.Errorf("mean: %w", err)
		}
		if opts.Mean {
			st.Mean = mean
		}
		named["mean"] = mean
		names = append(names, "mean")
	}
	for _, q := range opts.Quantiles {
		qc, err := QuantileCurve(curves, q, weights)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", QuantileKey(q), err)
		}
		if st.Quantiles == nil {
			st.Quantiles = make(map[string][][]float64)
		}
		st.Quantiles[QuantileKey(q)] = qc
		named[QuantileKey(q)] = qc
		names = append(names, QuantileKey(q))
	}
	if len(opts.PoEs) > 0 {
		st.HazardMaps = make(map[string][][][]float64)
		for _, name := range names {
			hm, err := HazardMaps(named[name], res.IMTLs, opts.PoEs)
			if err != nil {
				return nil, fmt.Errorf("hazard map %s: %w", name, err)
			}
			st.HazardMaps[name] = hm
		}
	}
	return st, nil
}
