// Package logging provides the tagged std-library logger the teacher's
// service code uses throughout (log.Printf("[SQL ERROR] ...")-style
// prefixes), rather than introducing a structured-logging dependency the
// example pack never imports directly.
package logging

import (
	"log"
	"os"
)

// Logger tags every line with a component name, matching the bracketed
// prefixes visible in internal/database/postgres.go.
type Logger struct {
	component string
	std       *log.Logger
}

// New returns a Logger for component, writing to stderr.
func New(component string) *Logger {
	return &Logger{
		component: component,
		std:       log.New(os.Stderr, "", log.LstdFlags),
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf("[%s] "+format, append([]any{l.component}, args...)...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf("[%s][WARN] "+format, append([]any{l.component}, args...)...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("[%s][ERROR] "+format, append([]any{l.component}, args...)...)
}
