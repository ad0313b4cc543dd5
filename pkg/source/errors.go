package source

import "errors"

// Validation errors
var (
	ErrEmptySourceID = errors.New("source id cannot be empty")
	ErrEmptyTRT      = errors.New("tectonic region type cannot be empty")
	ErrNoLocations   = errors.New("source has no locations")
	ErrEmptyMFD      = errors.New("source has an empty magnitude-frequency distribution")
	ErrNegativeRate  = errors.New("occurrence rate cannot be negative")
)

// Store errors
var (
	ErrDuplicatedSource = errors.New("duplicated source id")
	ErrModelNotFound    = errors.New("no source model for logic tree path")
	ErrGroupNotFound    = errors.New("source group not found")
	ErrDuplicatedModel  = errors.New("duplicated source model path")
	ErrNoSourceModels   = errors.New("no source models")
)

// ErrInvalidCeiling is returned when splitting with a non-positive ceiling
var ErrInvalidCeiling = errors.New("split ceiling must be positive")
