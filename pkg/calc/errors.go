package calc

import (
	"errors"
	"fmt"
)

// Stage names, in pipeline order
const (
	StageValidate    = "validate"
	StageSampling    = "sampling"
	StageAssociation = "association"
	StageFiltering   = "filtering/splitting"
	StageExecution   = "task execution"
	StageAggregation = "aggregation"
	StageStatistics  = "statistics"
	StagePersist     = "persist"
)

var (
	ErrNoSites    = errors.New("no sites")
	ErrNoRegistry = errors.New("no ground-motion model registry")
)

// CalculationError is the single error a failed calculation reports: the
// stage it failed in, the offending entity when known, and the typed cause
type CalculationError struct {
	CalculationID string
	Stage         string
	Entity        string
	Err           error
}

func (e *CalculationError) Error() string {
	if e.Entity == "" {
		return fmt.Sprintf("calculation %s failed during %s: %v", e.CalculationID, e.Stage, e.Err)
	}
	return fmt.Sprintf("calculation %s failed during %s at %s: %v", e.CalculationID, e.Stage, e.Entity, e.Err)
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}
