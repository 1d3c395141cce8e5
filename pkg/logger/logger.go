// Package logger provides the structured logger shared by all components.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is a component-scoped logrus entry.
type Logger struct {
	*logrus.Entry
}

// Config controls logger output.
type Config struct {
	Level  string
	Format string // json|text
	Output io.Writer
}

// New creates a logger for the given component.
func New(component string, cfg Config) *Logger {
	base := logrus.New()

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	base.SetOutput(out)

	switch strings.ToLower(cfg.Format) {
	case "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	return &Logger{Entry: base.WithField("component", component)}
}

// NewDefault creates an info-level JSON logger writing to stderr.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info"})
}

// Named returns a child logger that shares output and level but reports a
// different component.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Entry: l.Entry.WithField("component", component)}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return New("discard", Config{Level: "panic", Output: io.Discard})
}
