// Package scheduler turns prepared source groups into weight-bounded tasks,
// dispatches them to a worker pool and collects their results.
package scheduler

import (
	"fmt"
	"math"

	"github.com/dd0wney/cluso-hazard/pkg/source"
	"github.com/dd0wney/cluso-hazard/pkg/sourcemgr"
)

// BlockSplit packs items greedily, in input order, into blocks whose total
// weight does not exceed maxWeight. A block is closed as soon as the next
// item would overflow it; an item heavier than maxWeight forms a block alone.
func BlockSplit[T any](items []T, maxWeight float64, weight func(T) float64) [][]T {
	var blocks [][]T
	var cur []T
	total := 0.0
	for _, item := range items {
		w := weight(item)
		if len(cur) > 0 && total+w > maxWeight {
			blocks = append(blocks, cur)
			cur, total = nil, 0
		}
		cur = append(cur, item)
		total += w
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
	}
	return blocks
}

// MaxWeight derives the per-task weight ceiling from the total weight of a
// calculation and the number of tasks it should produce
func MaxWeight(totalWeight float64, concurrentTasks int, minWeight float64) float64 {
	if concurrentTasks <= 0 {
		return math.Max(totalWeight, minWeight)
	}
	return math.Max(math.Ceil(totalWeight/float64(concurrentTasks)), minWeight)
}

// TaskSpec is a planned task: a block of sources of one group
type TaskSpec struct {
	ID          uint64
	GroupID     int
	TRT         string
	Sources     []*source.Source
	Weight      float64
	SourceRange string
}

// Plan splits every group into blocks and numbers them densely from zero,
// groups in the given order
func Plan(groups []sourcemgr.PreparedGroup, maxWeight float64) []TaskSpec {
	var specs []TaskSpec
	for _, g := range groups {
		for _, block := range BlockSplit(g.Sources, maxWeight, sourceWeight) {
			w := 0.0
			for _, src := range block {
				w += src.Weight
			}
			specs = append(specs, TaskSpec{
				ID:          uint64(len(specs)),
				GroupID:     g.GroupID,
				TRT:         g.TRT,
				Sources:     block,
				Weight:      w,
				SourceRange: sourceRange(g.GroupID, block),
			})
		}
	}
	return specs
}

func sourceWeight(src *source.Source) float64 {
	return src.Weight
}

func sourceRange(groupID int, block []*source.Source) string {
	first, last := block[0].ID, block[len(block)-1].ID
	if first == last {
		return fmt.Sprintf("group %d source %s", groupID, first)
	}
	return fmt.Sprintf("group %d sources [%s .. %s]", groupID, first, last)
}
