// Package logger wraps logrus with the field conventions used across the service.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Log is a logrus entry carrying the fields of the component that owns it.
type Log struct {
	*logrus.Entry
}

// Fields are a representation of formatted log fields.
type Fields map[string]interface{}

// Logger is the logging dependency handed to every component.
type Logger interface {
	// GetLevel returns the configured level name.
	GetLevel() string
	With(fields Fields) *Log
}

// NewLogger builds a stdout text logger at the named level.
func NewLogger(level string) (*Log, error) {
	return newLogger(level, os.Stdout)
}

func newLogger(level string, out io.Writer) (*Log, error) {
	log := logrus.New()

	log.SetOutput(out)

	log.Formatter = &logrus.TextFormatter{
		TimestampFormat:  "2006-01-02 15:04:05.0000",
		FullTimestamp:    true,
		QuoteEmptyFields: true,
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logger: invalid level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	log.Debug("set level: ", lvl)

	return FromLogrus(log), nil
}

// FromLogrus wraps an existing logrus logger, e.g. a test logger with hooks.
func FromLogrus(l *logrus.Logger) *Log {
	return &Log{Entry: logrus.NewEntry(l)}
}

// Discard returns a logger that writes nowhere.
func Discard() *Log {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return FromLogrus(l)
}

// With will add the fields to the formatted log entry.
func (l *Log) With(fields Fields) *Log {
	return &Log{Entry: l.WithFields(logrus.Fields(fields))}
}

// GetLevel returns the configured level name.
func (l *Log) GetLevel() string {
	return l.Logger.Level.String()
}
