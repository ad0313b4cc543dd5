package source

import (
	"fmt"
	"math"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
)

// Split decomposes a source whose weight exceeds the ceiling into an ordered
// sequence of sub-sources, each weighing at most the ceiling. The rupture
// sets of the sub-sources partition the parent's rupture set. A single
// rupture heavier than the ceiling becomes a sub-source on its own.
func Split(src *Source, ceiling float64) ([]*Source, error) {
	if ceiling <= 0 {
		return nil, ErrInvalidCeiling
	}
	if src.Weight <= ceiling || src.NumRuptures() <= 1 {
		return []*Source{src}, nil
	}

	perRupture := src.weightPerRupture()
	perLocation := perRupture * float64(len(src.MFD))
	var out []*Source

	if perLocation <= ceiling {
		// whole locations fit: chunk the location list
		step := chunkSize(ceiling, perLocation, len(src.Locations))
		for i := 0; i < len(src.Locations); i += step {
			end := min(i+step, len(src.Locations))
			out = append(out, src.child(len(out), i, end, 0, len(src.MFD), perRupture))
		}
		return out, nil
	}

	// a single location is too heavy: chunk its magnitude bins
	step := chunkSize(ceiling, perRupture, len(src.MFD))
	for i := range src.Locations {
		for j := 0; j < len(src.MFD); j += step {
			end := min(j+step, len(src.MFD))
			out = append(out, src.child(len(out), i, i+1, j, end, perRupture))
		}
	}
	return out, nil
}

// chunkSize returns how many units of the given weight fit under the
// ceiling, at least one and at most limit
func chunkSize(ceiling, unit float64, limit int) int {
	if unit <= 0 {
		return limit
	}
	n := int(math.Floor(ceiling / unit))
	for n > 1 && float64(n)*unit > ceiling {
		n--
	}
	return max(1, min(n, limit))
}

// child builds the sub-source covering locations [l0, l1) and bins [m0, m1)
func (s *Source) child(n, l0, l1, m0, m1 int, perRupture float64) *Source {
	locs := make([]geo.Point, l1-l0)
	copy(locs, s.Locations[l0:l1])
	mfd := make([]MagBin, m1-m0)
	copy(mfd, s.MFD[m0:m1])

	span := s.Span
	if span.RootID == "" {
		span = Span{RootID: s.ID, RootLocs: len(s.Locations), RootMags: len(s.MFD)}
	}
	span.LocOffset += l0
	span.MagOffset += m0
	span.SplitNumber = n

	return &Source{
		ID:        fmt.Sprintf("%s:%d", s.ID, n),
		TRT:       s.TRT,
		Kind:      s.Kind,
		Locations: locs,
		MFD:       mfd,
		Weight:    perRupture * float64(len(locs)*len(mfd)),
		Span:      span,
	}
}
