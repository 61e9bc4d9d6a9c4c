package util

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Logger = zerolog.Logger

// LogLevel represents available log levels
type LogLevel = int

// Log levels
const (
	TraceLevel LogLevel = iota
	DebugLevel
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Verbosity bounds accepted on the command line; 1 is error, 5 is trace
const (
	MinVerbose = 1
	MaxVerbose = 5
)

// LevelFromVerbose maps a CLI verbosity (1 error .. 5 trace) to a LogLevel.
// Out of range values are clamped.
func LevelFromVerbose(verbose int) LogLevel {
	verbose = max(MinVerbose, min(verbose, MaxVerbose))
	lvls := [MaxVerbose]LogLevel{ErrorLevel, WarnLevel, InfoLevel, DebugLevel, TraceLevel}
	return lvls[verbose-1]
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case TraceLevel:
		return zerolog.TraceLevel
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// InitializeLogger sets up the global logger writing to stdout
func InitializeLogger(level LogLevel) {
	InitializeLoggerTo(os.Stdout, level)
}

// InitializeLoggerTo sets up the global logger with the specified configuration
// writing human readable output to w
func InitializeLoggerTo(w io.Writer, level LogLevel) {
	// Set time format to ISO8601
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerologLevel(level))

	output := zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}

	ctx := zerolog.New(output).With().Timestamp()
	if level == TraceLevel {
		ctx = ctx.Caller()
	}
	log.Logger = ctx.Logger()
	log.Debug().Int("level", level).Msg("Logger initialized")
}

// GetLogger returns a configured logger for a specific component
func GetLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
