package logger

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// New creates a JSON logger writing to stdout. Unknown levels fall back to info.
func New(level, service string) *zerolog.Logger {
	return NewWithWriter(os.Stdout, level, service)
}

func NewWithWriter(w io.Writer, level, service string) *zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	logger := zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Str("service", service).
		Logger()

	return &logger
}
