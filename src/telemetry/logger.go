// Package telemetry provides the structured logging used throughout the
// module, backed by logrus instead of a hand-rolled writer.
package telemetry

import (
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	root     *logrus.Logger
	initOnce sync.Once
)

// Init configures the package-wide logrus instance from the environment.
// Environment variables:
//   - LOG_LEVEL: one of debug, info, warn, error (default info).
//   - LOG_FORMAT: "json" for structured output, anything else for text
//     (default text).
func Init() {
	initOnce.Do(func() {
		root = logrus.New()
		root.SetOutput(os.Stdout)

		level, err := logrus.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
		if err != nil {
			level = logrus.InfoLevel
		}
		root.SetLevel(level)

		if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
			root.SetFormatter(&logrus.JSONFormatter{})
		} else {
			root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		}
	})
}

func defaultLogger() *logrus.Logger {
	if root == nil {
		Init()
	}
	return root
}

// Logger is a component-scoped logging handle, analogous to the teacher's
// WithPrefix loggers but backed by a logrus.Entry carrying a "component"
// field instead of a string-interpolated prefix.
type Logger struct {
	entry *logrus.Entry
}

// NewLogger returns a Logger scoped to component, e.g. a processor or
// transport name.
func NewLogger(component string) *Logger {
	return &Logger{entry: defaultLogger().WithField("component", component)}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// WithField returns a derived Logger carrying an additional structured field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{entry: l.entry.WithField(key, value)}
}
