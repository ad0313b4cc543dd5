package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Component field helpers for common component names
func Component(name string) Field {
	return String("component", name)
}

// Calculation-scoped field helpers
func CalculationID(id string) Field {
	return String("calc_id", id)
}

func GroupID(id int) Field {
	return Int("grp_id", id)
}

func TaskID(id uint64) Field {
	return Uint64("task_id", id)
}

func Attempt(n int) Field {
	return Int("attempt", n)
}

func Realization(ordinal int) Field {
	return Int("rlz", ordinal)
}

func TRT(trt string) Field {
	return String("trt", trt)
}

func SourceID(id string) Field {
	return String("source_id", id)
}

func Stage(name string) Field {
	return String("stage", name)
}

func Bytes(key string, n int64) Field {
	return Int64(key, n)
}

func Operation(op string) Field {
	return String("operation", op)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}

func Path(p string) Field {
	return String("path", p)
}
