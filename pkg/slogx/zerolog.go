package slogx

import (
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/phsym/zeroslog"
	"github.com/rs/zerolog"
)

// NewZerolog returns a slog.Logger that writes through zerolog. Console output
// is human readable, otherwise every record is a JSON line.
func NewZerolog(w io.Writer, level slog.Level, console bool) *slog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Stamp}
	}
	log := zerolog.New(w).With().Timestamp().Logger()
	return slog.New(zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}))
}

// ParseLevel maps a level name to a slog.Level. Unknown names yield info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug", "trace":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
