// Package logging provides the logger used across the node. It uses logrus
// under the hood.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Logger is the subset of logrus used by the node components.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	WithField(key string, value any) *logrus.Entry
	WithFields(fields logrus.Fields) *logrus.Entry
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.Formatter = &logrus.TextFormatter{
		FullTimestamp: true,
	}
	return l
}

// Parse builds a logger from a textual level such as "info" or "debug".
func Parse(w io.Writer, level string) (Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return New(w, lvl), nil
}

// Discard returns a logger that drops everything, for tests.
func Discard() Logger {
	return New(io.Discard, logrus.PanicLevel)
}
