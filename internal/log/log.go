// Package log provides the leveled, structured logging sink used across
// relaymq components. It mirrors the minimal contract spec.md expects
// from an injected logger (debug/info/warn/error with structured
// context) without pulling in a specific backend by default.
package log

// Fields carries structured context for a single log entry.
type Fields = map[string]interface{}

// Level identifies the severity of a log entry.
type Level uint

const (
	// Debug messages are broadly interesting to developers only.
	Debug Level = iota
	// Info messages highlight normal progress.
	Info
	// Warning messages flag recoverable, potentially harmful conditions.
	Warning
	// Error messages indicate a failure that does not stop the process.
	Error
)

// String returns the textual name for a level value.
func (l Level) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Logger is the sink every relaymq component accepts through its
// configuration options. Two implementations are provided in this
// package: Discard (silent) and NewZero (structured console).
type Logger interface {
	Debug(msg string, fields ...Fields)
	Info(msg string, fields ...Fields)
	Warning(msg string, fields ...Fields)
	Error(msg string, fields ...Fields)

	// WithFields returns a derived logger that includes the given
	// fields on every subsequent entry.
	WithFields(fields Fields) Logger

	// WithField is a convenience wrapper around WithFields for a
	// single key/value pair.
	WithField(key string, value interface{}) Logger
}
