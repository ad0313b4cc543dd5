package validation

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ConfigValidator provides a fluent interface for validating configuration values.
// It collects all validation errors rather than failing on the first one.
type ConfigValidator struct {
	errors []error
	name   string // config section name for error messages
}

// NewConfigValidator creates a new config validator with the given section name.
func NewConfigValidator(configName string) *ConfigValidator {
	return &ConfigValidator{
		name:   configName,
		errors: make([]error, 0),
	}
}

func (cv *ConfigValidator) fail(field, format string, args ...any) *ConfigValidator {
	cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %s", cv.name, field, fmt.Sprintf(format, args...)))
	return cv
}

// Required validates that a string field is not empty.
func (cv *ConfigValidator) Required(field, value string) *ConfigValidator {
	if value == "" {
		return cv.fail(field, "required field is empty")
	}
	return cv
}

// Positive validates that an int field is positive (> 0).
func (cv *ConfigValidator) Positive(field string, value int) *ConfigValidator {
	if value <= 0 {
		return cv.fail(field, "value %d must be positive", value)
	}
	return cv
}

// NonNegative validates that an int field is non-negative (>= 0).
func (cv *ConfigValidator) NonNegative(field string, value int) *ConfigValidator {
	if value < 0 {
		return cv.fail(field, "value %d must be non-negative", value)
	}
	return cv
}

// PositiveFloat validates that a float field is positive (> 0).
func (cv *ConfigValidator) PositiveFloat(field string, value float64) *ConfigValidator {
	if !(value > 0) || math.IsInf(value, 0) {
		return cv.fail(field, "value %v must be positive", value)
	}
	return cv
}

// NonNegativeFloat validates that a float field is non-negative (>= 0).
func (cv *ConfigValidator) NonNegativeFloat(field string, value float64) *ConfigValidator {
	if !(value >= 0) {
		return cv.fail(field, "value %v must be non-negative", value)
	}
	return cv
}

// RangeFloat validates that a float field is within [min, max].
func (cv *ConfigValidator) RangeFloat(field string, value, min, max float64) *ConfigValidator {
	if !(value >= min && value <= max) {
		return cv.fail(field, "value %v is outside range [%v, %v]", value, min, max)
	}
	return cv
}

// NonNegativeDuration validates that a duration is not negative.
func (cv *ConfigValidator) NonNegativeDuration(field string, value time.Duration) *ConfigValidator {
	if value < 0 {
		return cv.fail(field, "duration %v must be non-negative", value)
	}
	return cv
}

// Increasing validates that a float sequence is non-empty, positive and
// strictly increasing.
func (cv *ConfigValidator) Increasing(field string, values []float64) *ConfigValidator {
	if len(values) == 0 {
		return cv.fail(field, "no values")
	}
	for i, v := range values {
		if !(v > 0) {
			return cv.fail(field, "value %v at %d must be positive", v, i)
		}
		if i > 0 && v <= values[i-1] {
			return cv.fail(field, "values must be strictly increasing, %v follows %v", v, values[i-1])
		}
	}
	return cv
}

// OneOf validates that a string field is one of the allowed values.
func (cv *ConfigValidator) OneOf(field, value string, allowed []string) *ConfigValidator {
	for _, a := range allowed {
		if value == a {
			return cv
		}
	}
	return cv.fail(field, "value %q must be one of %v", value, allowed)
}

// Custom applies a custom validation function.
func (cv *ConfigValidator) Custom(field string, fn func() error) *ConfigValidator {
	if err := fn(); err != nil {
		cv.errors = append(cv.errors, fmt.Errorf("%s.%s: %w", cv.name, field, err))
	}
	return cv
}

// When conditionally applies validations if the condition is true.
func (cv *ConfigValidator) When(condition bool, validations func(*ConfigValidator)) *ConfigValidator {
	if condition {
		validations(cv)
	}
	return cv
}

// Add appends errors produced elsewhere, e.g. by struct tag validation.
func (cv *ConfigValidator) Add(errs ...error) *ConfigValidator {
	for _, err := range errs {
		if err != nil {
			cv.errors = append(cv.errors, err)
		}
	}
	return cv
}

// HasErrors returns true if any validation errors occurred.
func (cv *ConfigValidator) HasErrors() bool {
	return len(cv.errors) > 0
}

// Errors returns all validation errors.
func (cv *ConfigValidator) Errors() []error {
	return cv.errors
}

// Validate returns every collected error joined into one, or nil.
func (cv *ConfigValidator) Validate() error {
	if len(cv.errors) == 0 {
		return nil
	}
	return &Error{Name: cv.name, Violations: cv.errors}
}

// Error reports all violations of one configuration
type Error struct {
	Name       string
	Violations []error
}

func (e *Error) Error() string {
	if len(e.Violations) == 1 {
		return e.Violations[0].Error()
	}
	return fmt.Sprintf("%s validation failed with %d errors: %v", e.Name, len(e.Violations), errors.Join(e.Violations...))
}

func (e *Error) Unwrap() []error {
	return e.Violations
}

// DefaultOr returns the value if it's non-zero, otherwise returns the default.
func DefaultOr[T comparable](value, defaultValue T) T {
	var zero T
	if value == zero {
		return defaultValue
	}
	return value
}
