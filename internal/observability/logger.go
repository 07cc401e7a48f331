package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var setTimeFormat sync.Once

// Logger writes one structured line per event. Field maps are merged into the line as-is.
type Logger struct {
	base zerolog.Logger
}

func NewLogger(level, format string) *Logger {
	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewLoggerTo(out, level)
}

func NewLoggerTo(w io.Writer, level string) *Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	setTimeFormat.Do(func() { zerolog.TimeFieldFormat = time.RFC3339Nano })
	base := zerolog.New(w).Level(parsed).With().Timestamp().Logger()
	return &Logger{base: base}
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.base.Debug().Fields(fields).Msg(message)
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.base.Info().Fields(fields).Msg(message)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.base.Warn().Fields(fields).Msg(message)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.base.Error().Fields(fields).Msg(message)
}

// With returns a child logger that always carries fields.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{base: l.base.With().Fields(fields).Logger()}
}
