// Package common provides shared utilities for Dictum
package common

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// memoryLogCapacity bounds the in-memory log buffer used by diagnostics.
const memoryLogCapacity = 1000

// Logger wraps zerolog.Logger to provide a consistent interface
type Logger struct {
	zerolog.Logger
	memory *memoryLogWriter
}

// MemoryLogEntry is one captured log line, surfaced by /api/diagnostics.
type MemoryLogEntry struct {
	Time          time.Time              `json:"time"`
	Level         string                 `json:"level"`
	Message       string                 `json:"message"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Fields        map[string]interface{} `json:"fields,omitempty"`
}

// memoryLogWriter keeps the most recent log lines in a ring buffer so
// diagnostics can report them without touching disk.
type memoryLogWriter struct {
	mu      sync.Mutex
	entries []MemoryLogEntry
	next    int
	size    int
}

func newMemoryLogWriter() *memoryLogWriter {
	return &memoryLogWriter{
		entries: make([]MemoryLogEntry, memoryLogCapacity),
	}
}

// Write parses one zerolog JSON line into an entry. Unparseable lines
// are counted as written and dropped; logging must never fail a request.
func (w *memoryLogWriter) Write(p []byte) (int, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	entry := MemoryLogEntry{}
	if ts, ok := raw[zerolog.TimestampFieldName].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Time = t
		}
	}
	if lvl, ok := raw[zerolog.LevelFieldName].(string); ok {
		entry.Level = lvl
	}
	if msg, ok := raw[zerolog.MessageFieldName].(string); ok {
		entry.Message = msg
	}
	if cid, ok := raw["correlation_id"].(string); ok {
		entry.CorrelationID = cid
	}
	delete(raw, zerolog.TimestampFieldName)
	delete(raw, zerolog.LevelFieldName)
	delete(raw, zerolog.MessageFieldName)
	delete(raw, "correlation_id")
	if len(raw) > 0 {
		entry.Fields = raw
	}

	w.mu.Lock()
	w.entries[w.next] = entry
	w.next = (w.next + 1) % len(w.entries)
	if w.size < len(w.entries) {
		w.size++
	}
	w.mu.Unlock()

	return len(p), nil
}

// recent returns up to limit entries, newest first.
func (w *memoryLogWriter) recent(limit int) []MemoryLogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()

	if limit <= 0 || limit > w.size {
		limit = w.size
	}
	out := make([]MemoryLogEntry, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (w.next - i + len(w.entries)) % len(w.entries)
		out = append(out, w.entries[idx])
	}
	return out
}

// GetMemoryLogsWithLimit returns the most recent captured log entries,
// newest first. Loggers without capture return an empty slice.
func (l *Logger) GetMemoryLogsWithLimit(limit int) ([]MemoryLogEntry, error) {
	if l.memory == nil {
		return []MemoryLogEntry{}, nil
	}
	return l.memory.recent(limit), nil
}

// GetMemoryLogsForCorrelation returns captured entries carrying the given
// correlation ID, newest first.
func (l *Logger) GetMemoryLogsForCorrelation(correlationID string) ([]MemoryLogEntry, error) {
	if l.memory == nil || correlationID == "" {
		return []MemoryLogEntry{}, nil
	}
	all := l.memory.recent(0)
	out := make([]MemoryLogEntry, 0)
	for _, e := range all {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func newCapturingLogger(level string, primary io.Writer) *Logger {
	memory := newMemoryLogWriter()
	logger := zerolog.New(zerolog.MultiLevelWriter(primary, memory)).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
	return &Logger{Logger: logger, memory: memory}
}

// NewLogger creates a new logger with the specified level
func NewLogger(level string) *Logger {
	output := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	}
	return newCapturingLogger(level, output)
}

// NewLoggerFromConfig creates a logger from a LoggingConfig.
// Format "json" writes raw JSON lines, anything else uses the console writer.
func NewLoggerFromConfig(cfg LoggingConfig) *Logger {
	if cfg.Format == "json" {
		return newCapturingLogger(cfg.Level, os.Stderr)
	}
	return NewLogger(cfg.Level)
}

// NewLoggerWithOutput creates a logger writing to a specific output
func NewLoggerWithOutput(level string, w io.Writer) *Logger {
	return newCapturingLogger(level, w)
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger() *Logger {
	return NewLogger("info")
}

// NewSilentLogger creates a logger that discards all output and
// captures nothing.
func NewSilentLogger() *Logger {
	logger := zerolog.New(io.Discard)
	return &Logger{Logger: logger}
}
