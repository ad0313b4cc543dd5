package source

import (
	"fmt"
	"sort"
	"strings"
)

// ModelInput is a parsed source model as handed over by the input layer
type ModelInput struct {
	Name    string   `json:"name" yaml:"name"`
	Path    []string `json:"path" yaml:"path"` // source-model logic tree branch ids
	Sources []Source `json:"sources" yaml:"sources"`
}

// Group is a partition of the sources of one source model sharing one
// tectonic region type
type Group struct {
	ID           int
	TRT          string
	ModelOrdinal int
	Sources      []*Source
	NumRuptures  int
	MinMag       float64
	MaxMag       float64
}

// Weight returns the total weight of the group's sources
func (g *Group) Weight() float64 {
	total := 0.0
	for _, src := range g.Sources {
		total += src.Weight
	}
	return total
}

func (g *Group) add(src *Source) {
	lo, hi := src.MinMaxMag()
	if len(g.Sources) == 0 || lo < g.MinMag {
		g.MinMag = lo
	}
	if len(g.Sources) == 0 || hi > g.MaxMag {
		g.MaxMag = hi
	}
	g.Sources = append(g.Sources, src)
	g.NumRuptures += src.NumRuptures()
}

// SourceModel is one source model of the composite model, reachable through
// one source-model logic tree path
type SourceModel struct {
	Name    string
	Path    []string
	Ordinal int
	Groups  []*Group
}

// PathKey returns a stable map key for a logic tree path
func PathKey(path []string) string {
	return strings.Join(path, "/")
}

// Store holds the parsed sources grouped by tectonic region type. It is
// read-only after construction.
type Store struct {
	models []*SourceModel
	byPath map[string]*SourceModel
	groups []*Group
	trts   []string
}

// NewStore builds the composite source model. Group ids are dense and
// assigned in model order; inside a model, groups with fewer sources come
// first and ties are broken by TRT name.
func NewStore(inputs []ModelInput) (*Store, error) {
	if len(inputs) == 0 {
		return nil, ErrNoSourceModels
	}

	s := &Store{byPath: make(map[string]*SourceModel)}
	trtSet := make(map[string]bool)

	for ordinal, in := range inputs {
		key := PathKey(in.Path)
		if _, dup := s.byPath[key]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatedModel, key)
		}

		byTRT := make(map[string]*Group)
		seen := make(map[string]bool)
		for i := range in.Sources {
			src := in.Sources[i]
			if err := src.Validate(); err != nil {
				return nil, fmt.Errorf("model %s: %w", in.Name, err)
			}
			if seen[src.ID] {
				return nil, fmt.Errorf("model %s: %w: %s", in.Name, ErrDuplicatedSource, src.ID)
			}
			seen[src.ID] = true
			src.normalize()

			g, ok := byTRT[src.TRT]
			if !ok {
				g = &Group{TRT: src.TRT, ModelOrdinal: ordinal}
				byTRT[src.TRT] = g
			}
			g.add(&src)
			trtSet[src.TRT] = true
		}

		groups := make([]*Group, 0, len(byTRT))
		for _, g := range byTRT {
			groups = append(groups, g)
		}
		sort.Slice(groups, func(i, j int) bool {
			if len(groups[i].Sources) != len(groups[j].Sources) {
				return len(groups[i].Sources) < len(groups[j].Sources)
			}
			return groups[i].TRT < groups[j].TRT
		})
		for _, g := range groups {
			g.ID = len(s.groups)
			s.groups = append(s.groups, g)
		}

		sm := &SourceModel{
			Name:    in.Name,
			Path:    append([]string(nil), in.Path...),
			Ordinal: ordinal,
			Groups:  groups,
		}
		s.models = append(s.models, sm)
		s.byPath[key] = sm
	}

	for trt := range trtSet {
		s.trts = append(s.trts, trt)
	}
	sort.Strings(s.trts)
	return s, nil
}

// Models returns the source models in input order
func (s *Store) Models() []*SourceModel {
	return s.models
}

// ModelByPath returns the source model reached by the given path
func (s *Store) ModelByPath(path []string) (*SourceModel, error) {
	sm, ok := s.byPath[PathKey(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, PathKey(path))
	}
	return sm, nil
}

// Group returns the group with the given id
func (s *Store) Group(id int) (*Group, error) {
	if id < 0 || id >= len(s.groups) {
		return nil, fmt.Errorf("%w: %d", ErrGroupNotFound, id)
	}
	return s.groups[id], nil
}

// Groups returns every group ordered by id
func (s *Store) Groups() []*Group {
	return s.groups
}

// TRTs returns the sorted tectonic region types present in the store
func (s *Store) TRTs() []string {
	return s.trts
}

// NumSources returns the total number of sources
func (s *Store) NumSources() int {
	n := 0
	for _, g := range s.groups {
		n += len(g.Sources)
	}
	return n
}
