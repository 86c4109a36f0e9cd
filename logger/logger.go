// Package logger holds the process-wide zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLogger zerolog.Logger

func init() {
	zerolog.CallerMarshalFunc = func(pc uintptr, file string, line int) string {
		return filepath.Base(file) + ":" + strconv.Itoa(line)
	}
	globalLogger = newLogger(os.Stderr, "console").Level(zerolog.InfoLevel)
	log.Logger = globalLogger
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}

// Setup configures level and output format ("console" or "json").
// An unknown level falls back to info.
func Setup(level, format string) error {
	format = strings.ToLower(format)
	if format != "" && format != "console" && format != "json" {
		return fmt.Errorf("unknown log format %q", format)
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	globalLogger = newLogger(os.Stderr, format).Level(lvl)
	log.Logger = globalLogger

	if err != nil {
		Warn().Err(err).Msgf("invalid log level %q, defaulting to INFO", level)
	}
	return nil
}

// SetOutput redirects the global logger, keeping its level.
func SetOutput(w io.Writer) {
	globalLogger = globalLogger.Output(w)
	log.Logger = globalLogger
}

// With returns a child context of the global logger.
func With() zerolog.Context {
	return globalLogger.With()
}

// Error logs an error message
func Error() *zerolog.Event {
	return globalLogger.Error()
}

// Warn logs a warning message
func Warn() *zerolog.Event {
	return globalLogger.Warn()
}

// Info logs an info message
func Info() *zerolog.Event {
	return globalLogger.Info()
}

// Debug logs a debug message
func Debug() *zerolog.Event {
	return globalLogger.Debug()
}

// Trace logs a trace message
func Trace() *zerolog.Event {
	return globalLogger.Trace()
}
