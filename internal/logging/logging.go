// Package logging builds the run logger shared by the harness and its helper processes.
package logging

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a logger writing timestamped logfmt lines to w.
// Every line carries the run ID so lines from several runs appended to one
// file can be told apart.
func New(w io.Writer, runID string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339Nano,
		Formatter:       log.LogfmtFormatter,
		Level:           log.DebugLevel,
	})
	if runID != "" {
		logger = logger.With("run", runID)
	}
	return logger
}

// Component derives a logger tagged with the component name
func Component(logger *log.Logger, name string) *log.Logger {
	return logger.With("component", name)
}

// Discard returns a logger that drops everything, for tests
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}
