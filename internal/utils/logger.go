package utils

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// base is the process-wide logrus instance every component logger derives from.
var base = logrus.New()

// ConfigureLogging sets the level and output format of all component loggers.
// Unknown levels fall back to info; format is "json" or "text".
func ConfigureLogging(level, format string) {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		base.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLogOutput redirects all component loggers, mostly useful in tests.
func SetLogOutput(w io.Writer) {
	base.SetOutput(w)
}

// Logger provides structured logging scoped to one component
type Logger struct {
	entry *logrus.Entry
}

// NewLogger creates a new logger tagged with the given component name
func NewLogger(component string) *Logger {
	return &Logger{entry: base.WithField("component", component)}
}

// With returns a child logger carrying extra key-value pairs
func (l *Logger) With(keyvals ...interface{}) *Logger {
	return &Logger{entry: l.entry.WithFields(toFields(keyvals))}
}

// Info logs an informational message
func (l *Logger) Info(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Info(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Error(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Warn(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keyvals ...interface{}) {
	l.entry.WithFields(toFields(keyvals)).Debug(msg)
}

// toFields turns alternating key-value pairs into logrus fields.
// A trailing key without a value is kept under "extra".
func toFields(keyvals []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keyvals)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			fields["extra"] = key
			break
		}
		val := keyvals[i+1]
		if err, ok := val.(error); ok && err != nil {
			val = err.Error()
		}
		fields[key] = val
	}
	return fields
}
