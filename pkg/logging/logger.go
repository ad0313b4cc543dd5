package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// NewJSONLogger creates a logger writing to writer
func NewJSONLogger(writer io.Writer, level Level) *JSONLogger {
	l := &JSONLogger{out: &sink{w: writer}}
	l.level.Store(int32(level))
	return l
}

// NewDefaultLogger writes to stderr at the level named by LOG_LEVEL (INFO
// when unset). Stdout is left to command output.
func NewDefaultLogger() *JSONLogger {
	return NewJSONLogger(os.Stderr, ParseLevel(os.Getenv("LOG_LEVEL")))
}

func (l *JSONLogger) log(level Level, msg string, fields ...Field) {
	if level < l.GetLevel() {
		return
	}

	entry := LogEntry{
		Time:    time.Now().UTC().Format(time.RFC3339Nano),
		Level:   level.String(),
		Message: msg,
	}
	if n := len(l.fields) + len(fields); n > 0 {
		entry.Fields = make(map[string]any, n)
		// call-site fields override preset ones
		for _, f := range l.fields {
			entry.Fields[f.Key] = f.Value
		}
		for _, f := range fields {
			entry.Fields[f.Key] = f.Value
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		data = fmt.Appendf(nil, `{"time":%q,"level":"ERROR","msg":"unencodable log entry","fields":{"error":%q,"dropped_msg":%q}}`,
			entry.Time, err.Error(), msg)
	}
	data = append(data, '\n')

	l.out.mu.Lock()
	defer l.out.mu.Unlock()
	l.out.w.Write(data)
}

// Debug logs a debug-level message
func (l *JSONLogger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields...)
}

// Info logs an info-level message
func (l *JSONLogger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields...)
}

// Warn logs a warning-level message
func (l *JSONLogger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields...)
}

// Error logs an error-level message
func (l *JSONLogger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields...)
}

// With returns a child sharing the writer. The child starts at the
// parent's level and changes to either level do not propagate.
func (l *JSONLogger) With(fields ...Field) Logger {
	child := &JSONLogger{
		out:    l.out,
		fields: append(append(make([]Field, 0, len(l.fields)+len(fields)), l.fields...), fields...),
	}
	child.level.Store(l.level.Load())
	return child
}

// SetLevel sets the minimum log level
func (l *JSONLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// GetLevel returns the current log level
func (l *JSONLogger) GetLevel() Level {
	return Level(l.level.Load())
}

// StartTimer begins timing an operation
func StartTimer(logger Logger, msg string, fields ...Field) *TimedOperation {
	return &TimedOperation{
		logger: logger,
		msg:    msg,
		start:  time.Now(),
		fields: fields,
	}
}

func (t *TimedOperation) withLatency(extra ...Field) []Field {
	out := make([]Field, 0, len(t.fields)+len(extra)+1)
	out = append(out, t.fields...)
	out = append(out, Latency(time.Since(t.start)))
	return append(out, extra...)
}

// End logs the operation at INFO with its duration
func (t *TimedOperation) End() {
	t.logger.Info(t.msg, t.withLatency()...)
}

// EndWithLevel logs the operation at level under msg
func (t *TimedOperation) EndWithLevel(level Level, msg string) {
	fields := t.withLatency()
	switch level {
	case DebugLevel:
		t.logger.Debug(msg, fields...)
	case WarnLevel:
		t.logger.Warn(msg, fields...)
	case ErrorLevel:
		t.logger.Error(msg, fields...)
	default:
		t.logger.Info(msg, fields...)
	}
}

// EndError logs the operation as failed
func (t *TimedOperation) EndError(err error) {
	t.logger.Error(t.msg, t.withLatency(Error(err))...)
}
