package geo

import "math"

// Site is a location where hazard is computed
type Site struct {
	ID       int     `json:"id" yaml:"id"`
	Location Point   `json:"location" yaml:"location"`
	Vs30     float64 `json:"vs30,omitempty" yaml:"vs30,omitempty"`
}

// SiteCollection is an ordered set of sites with dense ids
type SiteCollection struct {
	Sites []Site `json:"sites" yaml:"sites"`
}

// NewSiteCollection renumbers the sites densely in the given order
func NewSiteCollection(sites []Site) *SiteCollection {
	out := make([]Site, len(sites))
	for i, s := range sites {
		s.ID = i
		out[i] = s
	}
	return &SiteCollection{Sites: out}
}

// Len returns the number of sites
func (sc *SiteCollection) Len() int {
	if sc == nil {
		return 0
	}
	return len(sc.Sites)
}

// Within returns the ids of the sites closer than maxDist to any of the
// points. A non-positive maxDist means unlimited.
func (sc *SiteCollection) Within(points []Point, maxDist float64) []int {
	var ids []int
	for _, s := range sc.Sites {
		if maxDist <= 0 || MinDistance(points, s.Location) <= maxDist {
			ids = append(ids, s.ID)
		}
	}
	return ids
}

// MinDistance returns the smallest distance between the points and any site.
// An empty collection gives +Inf.
func (sc *SiteCollection) MinDistance(points []Point) float64 {
	best := math.Inf(1)
	for _, s := range sc.Sites {
		if d := MinDistance(points, s.Location); d < best {
			best = d
		}
	}
	return best
}

// Filter returns the sub-collection holding the given site ids, in
// collection order and keeping the original ids. Unknown ids are ignored.
func (sc *SiteCollection) Filter(ids []int) *SiteCollection {
	keep := make(map[int]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}
	out := &SiteCollection{Sites: make([]Site, 0, len(ids))}
	for _, s := range sc.Sites {
		if keep[s.ID] {
			out.Sites = append(out.Sites, s)
		}
	}
	return out
}

// IDs returns the ids of the sites in order
func (sc *SiteCollection) IDs() []int {
	ids := make([]int, len(sc.Sites))
	for i, s := range sc.Sites {
		ids[i] = s.ID
	}
	return ids
}
