package source

import (
	"fmt"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
)

// Kind is the geometry family of a source
type Kind string

const (
	KindPoint Kind = "point"
	KindArea  Kind = "area"
	KindFault Kind = "fault"
)

// PointSourceWeight scales the weight of point sources, which are much
// cheaper per rupture than extended ones
const PointSourceWeight = 1.0 / 40

// MagBin is one bin of a magnitude-frequency distribution
type MagBin struct {
	Mag  float64 `json:"mag" yaml:"mag"`
	Rate float64 `json:"rate" yaml:"rate"` // annual occurrence rate of the whole source
}

// Span locates a source inside its root source. A freshly loaded source is
// its own root; split children keep the root's coordinates so rupture
// identity and rates are preserved.
type Span struct {
	RootID      string `json:"root_id"`
	LocOffset   int    `json:"loc_offset"`
	MagOffset   int    `json:"mag_offset"`
	RootLocs    int    `json:"root_locs"`
	RootMags    int    `json:"root_mags"`
	SplitNumber int    `json:"split_number"`
}

// Source is a seismic source definition. Immutable once loaded.
type Source struct {
	ID        string      `json:"id" yaml:"id"`
	TRT       string      `json:"trt" yaml:"trt"`
	Kind      Kind        `json:"kind" yaml:"kind"`
	Locations []geo.Point `json:"locations" yaml:"locations"`
	MFD       []MagBin    `json:"mfd" yaml:"mfd"`
	Weight    float64     `json:"weight,omitempty" yaml:"weight,omitempty"`
	Span      Span        `json:"span" yaml:"-"`
}

// Rupture is one possible earthquake generated by a source
type Rupture struct {
	RootID   string    `json:"root_id"`
	Serial   int       `json:"serial"`
	Mag      float64   `json:"mag"`
	Rate     float64   `json:"rate"`
	Location geo.Point `json:"location"`
}

// Key identifies a rupture independently of how its source was split
type Key struct {
	RootID string
	Serial int
}

// Key returns the identity of the rupture
func (r Rupture) Key() Key {
	return Key{RootID: r.RootID, Serial: r.Serial}
}

// normalize fills the span and weight of a source loaded from input
func (s *Source) normalize() {
	if s.Span.RootID == "" {
		s.Span = Span{
			RootID:   s.ID,
			RootLocs: len(s.Locations),
			RootMags: len(s.MFD),
		}
	}
	if s.Weight == 0 {
		s.Weight = s.EstimateWeight()
	}
}

// Validate checks the source has the minimum data needed to generate ruptures
func (s *Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("source: %w", ErrEmptySourceID)
	}
	if s.TRT == "" {
		return fmt.Errorf("source %s: %w", s.ID, ErrEmptyTRT)
	}
	if len(s.Locations) == 0 {
		return fmt.Errorf("source %s: %w", s.ID, ErrNoLocations)
	}
	if len(s.MFD) == 0 {
		return fmt.Errorf("source %s: %w", s.ID, ErrEmptyMFD)
	}
	for i, b := range s.MFD {
		if b.Rate < 0 {
			return fmt.Errorf("source %s bin %d: %w", s.ID, i, ErrNegativeRate)
		}
	}
	return nil
}

// NumRuptures returns the number of ruptures the source generates
func (s *Source) NumRuptures() int {
	return len(s.Locations) * len(s.MFD)
}

// EstimateWeight returns the load estimate of the source from its rupture count
func (s *Source) EstimateWeight() float64 {
	n := float64(s.NumRuptures())
	if s.Kind == KindPoint {
		return n * PointSourceWeight
	}
	return n
}

// weightPerRupture returns the weight carried by a single rupture
func (s *Source) weightPerRupture() float64 {
	n := s.NumRuptures()
	if n == 0 {
		return 0
	}
	return s.Weight / float64(n)
}

// MinMaxMag returns the magnitude range of the source
func (s *Source) MinMaxMag() (float64, float64) {
	if len(s.MFD) == 0 {
		return 0, 0
	}
	lo, hi := s.MFD[0].Mag, s.MFD[0].Mag
	for _, b := range s.MFD[1:] {
		if b.Mag < lo {
			lo = b.Mag
		}
		if b.Mag > hi {
			hi = b.Mag
		}
	}
	return lo, hi
}

// Ruptures generates the ruptures of the source in serial order
func (s *Source) Ruptures() []Rupture {
	rups := make([]Rupture, 0, s.NumRuptures())
	s.EachRupture(func(r Rupture) {
		rups = append(rups, r)
	})
	return rups
}

// EachRupture calls fn for every rupture without materializing the set
func (s *Source) EachRupture(fn func(Rupture)) {
	span := s.Span
	rootLocs := span.RootLocs
	if rootLocs == 0 {
		rootLocs = len(s.Locations)
	}
	rootMags := span.RootMags
	if rootMags == 0 {
		rootMags = len(s.MFD)
	}
	rootID := span.RootID
	if rootID == "" {
		rootID = s.ID
	}
	for i, loc := range s.Locations {
		for j, bin := range s.MFD {
			fn(Rupture{
				RootID:   rootID,
				Serial:   (span.LocOffset+i)*rootMags + span.MagOffset + j,
				Mag:      bin.Mag,
				Rate:     bin.Rate / float64(rootLocs),
				Location: loc,
			})
		}
	}
}
