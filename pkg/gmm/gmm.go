// Package gmm defines the ground-motion model capability used by the task
// kernels and a parametric reference model. Concrete published models plug in
// by implementing Model.
package gmm

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
)

var (
	ErrUnknownModel    = errors.New("unknown ground-motion model")
	ErrDuplicatedModel = errors.New("ground-motion model already registered")
	ErrInvalidModel    = errors.New("invalid ground-motion model")
)

// Model computes probabilities of exceedance of intensity levels
type Model interface {
	Name() string
	// PoEs returns, for each level, the probability that the intensity
	// measure imt exceeds it at site given a rupture of magnitude mag at
	// distance distKm. truncation is the number of standard deviations at
	// which the distribution is cut; zero means untruncated.
	PoEs(mag, distKm float64, site geo.Site, imt string, levels []float64, truncation float64) []float64
}

// LogLinear is a reference model with lognormal residuals:
//
//	ln Y = A + B*M - C*ln(sqrt(R^2 + H^2)) + D*ln(Vs30/760)
type LogLinear struct {
	Label string  `json:"name" yaml:"name" validate:"required"`
	A     float64 `json:"a" yaml:"a"`
	B     float64 `json:"b" yaml:"b"`
	C     float64 `json:"c" yaml:"c"`
	D     float64 `json:"d" yaml:"d"`
	H     float64 `json:"h" yaml:"h" validate:"gte=0"`
	Sigma float64 `json:"sigma" yaml:"sigma" validate:"gte=0"`
}

// Name returns the label of the model
func (m LogLinear) Name() string {
	return m.Label
}

// Mean returns the median ln intensity
func (m LogLinear) Mean(mag, distKm float64, site geo.Site) float64 {
	mean := m.A + m.B*mag - m.C*math.Log(math.Sqrt(distKm*distKm+m.H*m.H))
	if site.Vs30 > 0 && m.D != 0 {
		mean += m.D * math.Log(site.Vs30/760)
	}
	return mean
}

// PoEs implements Model
func (m LogLinear) PoEs(mag, distKm float64, site geo.Site, imt string, levels []float64, truncation float64) []float64 {
	mean := m.Mean(mag, distKm, site)
	out := make([]float64, len(levels))
	for i, level := range levels {
		out[i] = exceedance(math.Log(level), mean, m.Sigma, truncation)
	}
	return out
}

// exceedance returns P(X > x) for X normal(mean, sigma), optionally
// truncated symmetrically at truncation standard deviations
func exceedance(x, mean, sigma, truncation float64) float64 {
	if sigma == 0 {
		if mean > x {
			return 1
		}
		return 0
	}
	z := (x - mean) / sigma
	if truncation <= 0 {
		return 1 - normCDF(z)
	}
	if z >= truncation {
		return 0
	}
	if z <= -truncation {
		return 1
	}
	hi, lo := normCDF(truncation), normCDF(-truncation)
	return (hi - normCDF(z)) / (hi - lo)
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}

// Validate checks the parameters of the model
func (m LogLinear) Validate() error {
	if m.Label == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidModel)
	}
	if m.Sigma < 0 || m.H < 0 {
		return fmt.Errorf("%w: %s has negative sigma or h", ErrInvalidModel, m.Label)
	}
	return nil
}

// Registry resolves model names. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	models map[string]Model
}

// NewRegistry creates a registry holding the given models
func NewRegistry(models ...Model) (*Registry, error) {
	r := &Registry{models: make(map[string]Model, len(models))}
	for _, m := range models {
		if err := r.Register(m); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a model
func (r *Registry) Register(m Model) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.models[m.Name()]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicatedModel, m.Name())
	}
	r.models[m.Name()] = m
	return nil
}

// Get returns the named model
func (r *Registry) Get(name string) (Model, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return m, nil
}

// Names returns the registered names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
