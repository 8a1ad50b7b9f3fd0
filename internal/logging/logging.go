// Package logging configures the zerolog.Logger shared across cmd/harvest
// and its collaborators. There is no package-global logger: every
// component constructor takes a zerolog.Logger explicitly so tests can
// pass zerolog.Nop() and production wiring can pass one console/JSON
// writer, configured once in main.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. pretty selects a human-readable console
// writer (for local `harvest index`/`harvest serve` runs); false selects
// structured JSON suitable for log aggregation.
func New(pretty bool, level zerolog.Level) zerolog.Logger {
	var w io.Writer = os.Stderr
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}
