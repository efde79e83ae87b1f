package testhelpers

import (
	"github.com/myrjola/casefile/internal/logging"
	"io"
	"log/slog"
)

// NewLogger creates a debug level logger writing to logSink such as io.Discard.
//
// Attributes added with [logging.WithAttrs] are included like in production.
func NewLogger(logSink io.Writer) *slog.Logger {
	return logging.NewLogger(logSink, slog.LevelDebug)
}
