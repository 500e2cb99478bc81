package domain

import (
	"time"
)

// Level is the severity classification of a captured event.
type Level string

const (
	LevelLog     Level = "log"
	LevelInfo    Level = "info"
	LevelWarn    Level = "warn"
	LevelError   Level = "error"
	LevelDebug   Level = "debug"
	LevelTrace   Level = "trace"
	LevelTime    Level = "time"
	LevelNetwork Level = "network"
)

// Levels lists every recognized level.
var Levels = []Level{
	LevelLog, LevelInfo, LevelWarn, LevelError,
	LevelDebug, LevelTrace, LevelTime, LevelNetwork,
}

// CoerceLevel maps a raw level string onto the fixed enumeration.
// Unrecognized levels are coerced to LevelLog.
func CoerceLevel(raw string) Level {
	candidate := Level(raw)
	for _, level := range Levels {
		if candidate == level {
			return level
		}
	}
	return LevelLog
}

// Location is a raw, unresolved capture site: a file path or URL plus a
// one-based line and column as reported by the instrumented runtime.
type Location struct {
	File   string // File path, file URI, or URL as captured
	Line   int    // One-based line number
	Column int    // One-based column number
}

// LogEvent represents one captured occurrence (console call, timer, error,
// or network call) together with its metadata. A LogEvent is immutable once
// created; the ID is assigned by the log store on ingestion and is the only
// stable external reference.
type LogEvent struct {
	ID         int64     // Monotonically increasing store identifier
	Level      Level     // Severity level, coerced onto the fixed enumeration
	Kind       string    // Sub-classification driving presentation, defaults to the level
	Text       string    // Human-readable preview line, may be empty
	Values     []any     // Serialized values in their original order
	Timestamp  time.Time // Producer timestamp, defaulted to ingestion time
	Location   *Location // Optional raw capture site
	Stack      string    // Optional raw stack trace text
	URL        string    // Network events: target URL
	Method     string    // Network events: HTTP method
	Status     int       // Network events: response status code
	DurationMs float64   // Network and timer events: elapsed milliseconds
	Label      string    // Timer events: timer label
	ClientID   int64     // Originating session id
}

// Metadata represents a flexible key-value store for additional data
// associated with sessions and events.
type Metadata map[string]any

// Merge copies the entries of other into the metadata additively. Existing
// keys are overwritten by incoming values but keys absent from other are
// never removed.
func (m Metadata) Merge(other Metadata) {
	for key, value := range other {
		m[key] = value
	}
}
