package aggregate

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/dd0wney/cluso-hazard/pkg/hazard"
)

// RealizationResult is the final output of one realization
type RealizationResult struct {
	Ordinal  int                        `json:"ordinal"`
	Name     string                     `json:"name"`
	Weight   float64                    `json:"weight"`
	Curves   [][]float64                `json:"curves,omitempty"` // PoE per site per level
	Ruptures []hazard.RuptureOccurrence `json:"ruptures,omitempty"`
}

// Statistics are the curves derived across realizations
type Statistics struct {
	Mean      [][]float64            `json:"mean,omitempty"`
	Quantiles map[string][][]float64 `json:"quantiles,omitempty"`
	// HazardMaps holds, per curve kind ("mean", "quantile-0.5", ...),
	// the intensity per site per IMT per poe
	HazardMaps map[string][][][]float64 `json:"hazard_maps,omitempty"`
}

// AggregateResult is the frozen result of a calculation
type AggregateResult struct {
	CalculationID     string              `json:"calc_id"`
	Kind              hazard.Kind         `json:"kind"`
	SiteIDs           []int               `json:"site_ids"`
	IMTLs             []hazard.IMTLevels  `json:"imtls,omitempty"`
	InvestigationTime float64             `json:"investigation_time"`
	Realizations      []RealizationResult `json:"realizations"`
	EffRuptures       map[int]int         `json:"eff_ruptures"`
	NumTasks          int                 `json:"num_tasks"`
	Digest            string              `json:"digest"`
	Statistics        *Statistics         `json:"statistics,omitempty"`
}

// Realization returns the result of one realization
func (r *AggregateResult) Realization(ordinal int) (*RealizationResult, error) {
	if ordinal < 0 || ordinal >= len(r.Realizations) {
		return nil, fmt.Errorf("realization %d out of range [0, %d)", ordinal, len(r.Realizations))
	}
	return &r.Realizations[ordinal], nil
}

// Weights returns the realization weights indexed by ordinal
func (r *AggregateResult) Weights() []float64 {
	w := make([]float64, len(r.Realizations))
	for i, rlz := range r.Realizations {
		w[i] = rlz.Weight
	}
	return w
}

// digestView is the canonical content hashed into the digest
type digestView struct {
	Kind         hazard.Kind         `json:"kind"`
	SiteIDs      []int               `json:"site_ids"`
	IMTLs        []hazard.IMTLevels  `json:"imtls"`
	Realizations []RealizationResult `json:"realizations"`
	EffRuptures  map[int]int         `json:"eff_ruptures"`
}

// ComputeDigest returns the BLAKE2b-256 of the canonical encoding of the
// result. Two runs with the same tasks produce the same digest whatever
// order the tasks completed in.
func (r *AggregateResult) ComputeDigest() (string, error) {
	data, err := json.Marshal(digestView{
		Kind:         r.Kind,
		SiteIDs:      r.SiteIDs,
		IMTLs:        r.IMTLs,
		Realizations: r.Realizations,
		EffRuptures:  r.EffRuptures,
	})
	if err != nil {
		return "", fmt.Errorf("encode digest view: %w", err)
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
