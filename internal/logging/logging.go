// Package logging builds the zerolog.Logger every service uses: JSON by
// default, a pretty console writer for local dev, one level parsed from
// config once at startup.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Format selects the wire format of log output.
type Format string

const (
	FormatJSON   Format = "json"
	FormatPretty Format = "pretty"
	FormatText   Format = "text"
)

// New builds a logger scoped to one service instance. serviceType is the
// AIPerf service kind ("worker", "timing_manager", ...); serviceID is the
// unique instance id assigned at registration.
func New(level string, format Format, serviceType, serviceID string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var w io.Writer = os.Stdout
	if format == FormatPretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	l := zerolog.New(w).With().Timestamp().Logger()
	l = l.Level(parseLevel(level))
	if serviceType != "" {
		l = l.With().Str("service_type", serviceType).Logger()
	}
	if serviceID != "" {
		l = l.With().Str("service_id", serviceID).Logger()
	}
	return l
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
