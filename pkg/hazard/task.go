// Package hazard holds the worker-side task kernels. A Task carries every
// input a worker needs; the kernels are pure functions of it.
package hazard

import (
	"errors"
	"fmt"
	"time"

	"github.com/dd0wney/cluso-hazard/pkg/geo"
	"github.com/dd0wney/cluso-hazard/pkg/source"
)

// Kind selects the kernel run by a task
type Kind string

const (
	KindClassical  Kind = "classical"
	KindEventBased Kind = "event_based"
)

var (
	ErrUnknownKind = errors.New("unknown task kind")
	ErrNoSites     = errors.New("task has no sites")
	ErrNoLevels    = errors.New("task has no intensity levels")
)

// IMTLevels is an intensity measure type with its increasing levels
type IMTLevels struct {
	IMT    string    `json:"imt" yaml:"imt"`
	Levels []float64 `json:"levels" yaml:"levels"`
}

// NumLevels returns the total number of levels across IMTs
func NumLevels(imtls []IMTLevels) int {
	n := 0
	for _, il := range imtls {
		n += len(il.Levels)
	}
	return n
}

// Task is a bounded unit of work on one TRT group
type Task struct {
	ID                uint64              `json:"id"`
	Kind              Kind                `json:"kind"`
	GroupID           int                 `json:"grp_id"`
	TRT               string              `json:"trt"`
	Sources           []*source.Source    `json:"sources"`
	Sites             *geo.SiteCollection `json:"sites"`
	GMMs              []string            `json:"gmms"`
	IMTLs             []IMTLevels         `json:"imtls"`
	InvestigationTime float64             `json:"investigation_time"`
	Truncation        float64             `json:"truncation_level"`
	MaxDistance       float64             `json:"maximum_distance"`
	Seed              int64               `json:"seed"`
	SESPerPath        int                 `json:"ses_per_logic_tree_path"`
}

// Weight returns the summed weight of the task's sources
func (t *Task) Weight() float64 {
	total := 0.0
	for _, src := range t.Sources {
		total += src.Weight
	}
	return total
}

// Validate checks the task carries what its kernel needs
func (t *Task) Validate() error {
	switch t.Kind {
	case KindClassical:
		if NumLevels(t.IMTLs) == 0 {
			return fmt.Errorf("task %d: %w", t.ID, ErrNoLevels)
		}
	case KindEventBased:
	default:
		return fmt.Errorf("task %d: %w: %q", t.ID, ErrUnknownKind, t.Kind)
	}
	if t.Sites.Len() == 0 {
		return fmt.Errorf("task %d: %w", t.ID, ErrNoSites)
	}
	return nil
}

// RuptureOccurrence is a rupture sampled at least once by an event-based task
type RuptureOccurrence struct {
	RootID      string  `json:"root_id"`
	Serial      int     `json:"serial"`
	GroupID     int     `json:"grp_id"`
	Mag         float64 `json:"mag"`
	Occurrences int     `json:"n_occ"`
}

// Less orders occurrences by rupture identity
func (r RuptureOccurrence) Less(o RuptureOccurrence) bool {
	if r.RootID != o.RootID {
		return r.RootID < o.RootID
	}
	return r.Serial < o.Serial
}

// SourceTime records the cost of one source inside a task
type SourceTime struct {
	SourceID    string        `json:"source_id"`
	NumRuptures int           `json:"num_ruptures"`
	Elapsed     time.Duration `json:"elapsed"`
}

// PartialResult is the output of one task. Rates are indexed
// [gmm][site position][level] where the site position follows SiteIDs and
// the levels are the concatenated levels of every IMT.
type PartialResult struct {
	TaskID      uint64                 `json:"task_id"`
	Kind        Kind                   `json:"kind"`
	GroupID     int                    `json:"grp_id"`
	SiteIDs     []int                  `json:"site_ids"`
	Rates       map[string][][]float64 `json:"rates,omitempty"`
	Ruptures    []RuptureOccurrence    `json:"ruptures,omitempty"`
	EffRuptures int                    `json:"eff_ruptures"`
	SourceTimes []SourceTime           `json:"source_times,omitempty"`
}
