package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the process logger. APP_ENV=dev switches to the console writer.
func New(level, appEnv string) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, appEnv)
}

func NewWithWriter(w io.Writer, level, appEnv string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.ErrorFieldName = "err"

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	out := w
	if appEnv == "dev" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02T15:04:05.000Z07:00"}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Str("app", "billbot").Logger()
}
