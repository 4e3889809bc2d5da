package common

import (
	"io"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the zerolog logger shared by the client and the CLI.
// format "json" writes structured lines; anything else writes human-readable console output.
// An unknown level falls back to info.
func NewLogger(w io.Writer, level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	out := w
	if format != "json" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen, NoColor: true}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
