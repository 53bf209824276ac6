// Package telemetry builds the process logger and hands out tracers.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"  json:"level"`  // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, console
}

// NewLogger builds a zerolog logger writing to w (stderr if nil).
func NewLogger(cfg LogConfig, w io.Writer) (zerolog.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("telemetry: invalid log level %q", cfg.Level)
		}
		level = l
	}

	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("telemetry: invalid log format %q", cfg.Format)
	}

	return zerolog.New(w).Level(level).With().Timestamp().Str("service", "stancewatch").Logger(), nil
}

// SetGlobal installs logger as the package-level zerolog logger.
func SetGlobal(logger zerolog.Logger) {
	log.Logger = logger
}

// Tracer returns a named tracer from the global provider. The provider is a
// no-op unless the host process installs one.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}
