package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// logOutput receives log events; tests swap it for a buffer.
var logOutput io.Writer = os.Stderr

// newLogger writes human-readable lines to a terminal and JSON lines
// everywhere else.
func newLogger(verbose bool) zerolog.Logger {
	out := logOutput
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		out = zerolog.ConsoleWriter{Out: f}
	}
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}
