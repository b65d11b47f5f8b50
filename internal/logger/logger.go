package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance. It discards everything until
	// Init is called, so library code can log unconditionally.
	Logger = zerolog.Nop()
)

// Init initializes the global logger
func Init(level string) {
	InitWithWriter(level, defaultOutput())
}

// InitWithWriter initializes the global logger writing to out.
func InitWithWriter(level string, out io.Writer) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	Logger = zerolog.New(out).
		Level(logLevel).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Info().
		Str("level", logLevel.String()).
		Msg("logger initialized")
}

func defaultOutput() io.Writer {
	// Pretty console logging in development
	if os.Getenv("ENV") == "development" {
		return zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}
	return os.Stdout
}

// TraceEnabled reports whether trace events would be written. Callers use it
// to skip building expensive trace fields.
func TraceEnabled() bool {
	return zerolog.GlobalLevel() <= zerolog.TraceLevel && Logger.GetLevel() <= zerolog.TraceLevel
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithCondition returns a component logger tagged with an alert condition id
func WithCondition(component string, conditionID int) zerolog.Logger {
	return Logger.With().Str("component", component).Int("condition_id", conditionID).Logger()
}

// WithError returns a logger with an error field
func WithError(err error) zerolog.Logger {
	return Logger.With().Err(err).Logger()
}
