// Package sourcemgr prepares the per-group workload of a calculation: it
// discards sources too far from every site and splits heavy sources into
// sub-sources bounded by a weight ceiling.
package sourcemgr

import (
	"context"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
	"github.com/dd0wney/cluso-hazard/pkg/logging"
	"github.com/dd0wney/cluso-hazard/pkg/monitor"
	"github.com/dd0wney/cluso-hazard/pkg/source"
)

// DefaultKey is the MaxDistance entry used for TRTs without their own
const DefaultKey = "default"

// MaxDistance is the integration distance in km per TRT
type MaxDistance map[string]float64

// For returns the distance for trt; zero means unlimited
func (md MaxDistance) For(trt string) float64 {
	if d, ok := md[trt]; ok {
		return d
	}
	return md[DefaultKey]
}

// SourceInfo describes what happened to one root source during preparation
type SourceInfo struct {
	GroupID    int           `json:"grp_id"`
	SourceID   string        `json:"source_id"`
	TRT        string        `json:"trt"`
	NumSites   int           `json:"num_sites"`
	NumSplit   int           `json:"num_split"`
	Weight     float64       `json:"weight"`
	FilterTime time.Duration `json:"filter_time"`
	SplitTime  time.Duration `json:"split_time"`
}

// PreparedGroup is the filtered and split content of one group
type PreparedGroup struct {
	GroupID int
	TRT     string
	Sources []*source.Source
}

// Weight returns the total weight of the prepared sources
func (p PreparedGroup) Weight() float64 {
	total := 0.0
	for _, src := range p.Sources {
		total += src.Weight
	}
	return total
}

// Manager filters and splits sources for a site collection
type Manager struct {
	Sites       *geo.SiteCollection
	MaxDistance MaxDistance
	Ceiling     float64 // split sources heavier than this; zero disables splitting
	Monitor     *monitor.Monitor
}

// Prepare returns, for every requested group in the given order, the sources
// within range of the sites, heavy ones replaced by their in-range
// sub-sources. Untouched sources keep their input order and split children
// keep their sequence.
func (m *Manager) Prepare(ctx context.Context, store *source.Store, groupIDs []int) ([]PreparedGroup, []SourceInfo, error) {
	mon := m.Monitor
	if mon == nil {
		mon = monitor.New("", nil, nil)
	}
	logger := mon.Logger()

	var infos []SourceInfo
	prepared := make([]PreparedGroup, 0, len(groupIDs))

	for _, id := range groupIDs {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		g, err := store.Group(id)
		if err != nil {
			return nil, nil, err
		}

		maxDist := m.MaxDistance.For(g.TRT)
		pg := PreparedGroup{GroupID: g.ID, TRT: g.TRT}
		var kept, discarded, splitParents, children int
		var filterTime, splitTime time.Duration

		for _, src := range g.Sources {
			info := SourceInfo{GroupID: g.ID, SourceID: src.ID, TRT: g.TRT, Weight: src.Weight}

			start := time.Now()
			sites := m.Sites.Within(src.Locations, maxDist)
			info.FilterTime = time.Since(start)
			filterTime += info.FilterTime
			info.NumSites = len(sites)

			if len(sites) == 0 {
				discarded++
				infos = append(infos, info)
				continue
			}
			kept++

			if m.Ceiling <= 0 || src.Weight <= m.Ceiling {
				pg.Sources = append(pg.Sources, src)
				infos = append(infos, info)
				continue
			}

			start = time.Now()
			parts, err := source.Split(src, m.Ceiling)
			if err != nil {
				return nil, nil, fmt.Errorf("group %d source %s: %w", g.ID, src.ID, err)
			}
			for _, part := range parts {
				if len(m.Sites.Within(part.Locations, maxDist)) > 0 {
					pg.Sources = append(pg.Sources, part)
					info.NumSplit++
				}
			}
			info.SplitTime = time.Since(start)
			splitTime += info.SplitTime
			splitParents++
			children += info.NumSplit
			infos = append(infos, info)
		}

		mon.Record("filter", filterTime, 0, kept+discarded)
		if splitParents > 0 {
			mon.Record("split", splitTime, 0, children)
		}
		if reg := mon.Metrics(); reg != nil {
			reg.RecordFilter(g.TRT, kept, discarded, filterTime)
			if splitParents > 0 {
				reg.RecordSplit(g.TRT, splitParents, children, splitTime)
			}
		}
		logger.Debug("group prepared",
			logging.GroupID(g.ID),
			logging.TRT(g.TRT),
			logging.Int("kept", kept),
			logging.Int("discarded", discarded),
			logging.Int("split", splitParents),
			logging.Int("sub_sources", children))

		prepared = append(prepared, pg)
	}
	return prepared, infos, nil
}
