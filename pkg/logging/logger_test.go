package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// decodeLines parses every JSON line written to buf
func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to unmarshal %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"WARNING", WarnLevel},
		{"warn", WarnLevel},
		{"error", ErrorLevel},
		{"verbose", InfoLevel}, // Default
		{"", InfoLevel},
	}
	for _, l := range []Level{DebugLevel, InfoLevel, WarnLevel, ErrorLevel} {
		if got := ParseLevel(l.String()); got != l {
			t.Errorf("ParseLevel(%q) = %v, want %v", l.String(), got, l)
		}
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFieldConstructors(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		key   string
		value any
	}{
		{"CalculationID", CalculationID("c-1"), "calc_id", "c-1"},
		{"GroupID", GroupID(3), "grp_id", 3},
		{"TaskID", TaskID(17), "task_id", uint64(17)},
		{"Attempt", Attempt(2), "attempt", 2},
		{"Realization", Realization(5), "rlz", 5},
		{"TRT", TRT("Stable Continental"), "trt", "Stable Continental"},
		{"SourceID", SourceID("src-9"), "source_id", "src-9"},
		{"Stage", Stage("aggregation"), "stage", "aggregation"},
		{"Component", Component("scheduler"), "component", "scheduler"},
		{"Bytes", Bytes("sent", 2048), "sent", int64(2048)},
		{"Count", Count(4), "count", 4},
		{"Latency", Latency(1500 * time.Millisecond), "latency", "1.5s"},
		{"Error", Error(errors.New("worker lost")), "error", "worker lost"},
		{"Error nil", Error(nil), "error", nil},
		{"Float64", Float64("max_weight", 12.5), "max_weight", 12.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.field.Key != tt.key || tt.field.Value != tt.value {
				t.Errorf("got %+v, want {Key:%s Value:%v}", tt.field, tt.key, tt.value)
			}
		})
	}
}

func TestJSONLogger_Entry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	logger.Info("task folded",
		CalculationID("c-1"),
		TaskID(4),
		Bool("retried", true),
	)

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Level != "INFO" || entry.Message != "task folded" || entry.Time == "" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields["calc_id"] != "c-1" {
		t.Errorf("calc_id = %v, want c-1", entry.Fields["calc_id"])
	}
	if entry.Fields["task_id"] != float64(4) { // JSON unmarshals numbers as float64
		t.Errorf("task_id = %v, want 4", entry.Fields["task_id"])
	}
	if entry.Fields["retried"] != true {
		t.Errorf("retried = %v, want true", entry.Fields["retried"])
	}
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 log entries, got %d", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("levels = %s, %s; want WARN, ERROR", entries[0].Level, entries[1].Level)
	}

	buf.Reset()
	logger.SetLevel(DebugLevel)
	if logger.GetLevel() != DebugLevel {
		t.Errorf("After SetLevel, level = %v, want DebugLevel", logger.GetLevel())
	}
	logger.Debug("now visible")
	if len(decodeLines(t, &buf)) != 1 {
		t.Error("Expected Debug output after lowering the level")
	}
}

func TestJSONLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	calc := logger.With(Component("calc"), CalculationID("c-7"))
	calc.With(Stage("statistics")).Info("stage done", Count(2))
	calc.Info("calculation complete")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	first := entries[0].Fields
	if first["component"] != "calc" || first["calc_id"] != "c-7" || first["stage"] != "statistics" || first["count"] != float64(2) {
		t.Errorf("first fields = %v", first)
	}
	if _, ok := entries[1].Fields["stage"]; ok {
		t.Error("child fields leaked into the parent logger")
	}
}

func TestJSONLogger_NoFieldsOmitted(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLogger(&buf, InfoLevel).Info("message without fields")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Failed to unmarshal: %v", err)
	}
	if _, exists := entry["fields"]; exists {
		t.Error("Expected fields key to be omitted when empty")
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Error("dropped", CalculationID("c-1"))
	if logger.With(Stage("x")) == nil {
		t.Error("With() returned nil")
	}
	if logger.GetLevel() != InfoLevel {
		t.Errorf("GetLevel() = %v, want InfoLevel", logger.GetLevel())
	}
}

func TestTimedOperation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	StartTimer(logger, "filter sources", TRT("Active")).End()
	StartTimer(logger, "split sources").EndWithLevel(DebugLevel, "sources split")
	StartTimer(logger, "persist").EndError(errors.New("disk full"))

	entries := decodeLines(t, &buf)
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Level != "INFO" || entries[0].Fields["trt"] != "Active" {
		t.Errorf("End() entry = %+v", entries[0])
	}
	if entries[1].Level != "DEBUG" || entries[1].Message != "sources split" {
		t.Errorf("EndWithLevel() entry = %+v", entries[1])
	}
	if entries[2].Level != "ERROR" || entries[2].Fields["error"] != "disk full" {
		t.Errorf("EndError() entry = %+v", entries[2])
	}
	for _, e := range entries {
		if _, ok := e.Fields["latency"]; !ok {
			t.Errorf("%q has no latency", e.Message)
		}
	}
}

func TestLevelText(t *testing.T) {
	var l Level
	if err := l.UnmarshalText([]byte("warning")); err != nil || l != WarnLevel {
		t.Errorf("UnmarshalText(warning) = %v, %v", l, err)
	}
	if err := l.UnmarshalText([]byte("verbose")); err == nil {
		t.Error("UnmarshalText(verbose) should fail")
	}
	text, _ := ErrorLevel.MarshalText()
	if string(text) != "ERROR" {
		t.Errorf("MarshalText() = %s, want ERROR", text)
	}
	if Level(9).String() != "UNKNOWN" {
		t.Errorf("Level(9) = %s", Level(9))
	}
}

func TestJSONLogger_ConcurrentChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	const workers, perWorker = 8, 50
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		child := logger.With(Component("worker"), Int("worker", w))
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				child.Info("job done", TaskID(uint64(i)))
			}
		}()
	}
	wg.Wait()

	// every line must still be a whole JSON object
	if got := len(decodeLines(t, &buf)); got != workers*perWorker {
		t.Errorf("got %d entries, want %d", got, workers*perWorker)
	}
}

func TestJSONLogger_ChildLevelIndependent(t *testing.T) {
	var buf bytes.Buffer
	parent := NewJSONLogger(&buf, WarnLevel)
	child := parent.With(Component("scheduler"))
	if child.GetLevel() != WarnLevel {
		t.Errorf("child level = %v, want inherited WARN", child.GetLevel())
	}
	child.SetLevel(DebugLevel)
	if parent.GetLevel() != WarnLevel {
		t.Error("child SetLevel changed the parent")
	}
}

func BenchmarkJSONLogger_Info(b *testing.B) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("task folded", CalculationID("c-1"), TaskID(uint64(i)))
	}
}

func BenchmarkJSONLogger_InfoFiltered(b *testing.B) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, ErrorLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("task folded", CalculationID("c-1"), TaskID(uint64(i)))
	}
}
