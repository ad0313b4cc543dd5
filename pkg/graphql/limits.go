package graphql

import (
	"errors"
	"fmt"
)

var errInvalidLimits = errors.New("invalid list limits")

// LimitConfig bounds the number of jobs a list query returns
type LimitConfig struct {
	DefaultLimit int // used when the query gives no limit
	MaxLimit     int
}

// DefaultLimitConfig returns the limits used by GenerateSchema
func DefaultLimitConfig() *LimitConfig {
	return &LimitConfig{DefaultLimit: 100, MaxLimit: 1000}
}

// ValidateLimitConfig requires 0 < DefaultLimit <= MaxLimit
func ValidateLimitConfig(config *LimitConfig) error {
	switch {
	case config == nil:
		return fmt.Errorf("%w: no config", errInvalidLimits)
	case config.MaxLimit <= 0, config.DefaultLimit <= 0:
		return fmt.Errorf("%w: default %d and max %d must be positive",
			errInvalidLimits, config.DefaultLimit, config.MaxLimit)
	case config.DefaultLimit > config.MaxLimit:
		return fmt.Errorf("%w: default %d above max %d",
			errInvalidLimits, config.DefaultLimit, config.MaxLimit)
	}
	return nil
}

// applyLimit clamps a requested limit; a negative request means none was given
func applyLimit(requested int, config *LimitConfig) int {
	if requested < 0 {
		return config.DefaultLimit
	}
	return min(requested, config.MaxLimit)
}
