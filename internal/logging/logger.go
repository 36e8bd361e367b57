package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry carrying the service field.
type Logger struct {
	*logrus.Entry
}

// Options tunes New. The zero value logs JSON at info level to stdout.
type Options struct {
	// Level is one of debug, info, warn, error. Empty falls back to LOG_LEVEL.
	Level string
	// Format is "json" or "text".
	Format string
	Output io.Writer
}

// New creates a logger for service using LOG_LEVEL from the environment.
func New(service string) *Logger {
	return NewWithOptions(service, Options{})
}

// NewWithOptions creates a logger for service.
func NewWithOptions(service string, opts Options) *Logger {
	log := logrus.New()

	if strings.EqualFold(opts.Format, "text") {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	log.SetOutput(out)

	level := opts.Level
	if level == "" {
		level = os.Getenv("LOG_LEVEL")
	}
	log.SetLevel(ParseLevel(level))

	return &Logger{Entry: log.WithField("service", service)}
}

// ParseLevel maps a level name to logrus, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithRequestID adds request ID to logger
func (l *Logger) WithRequestID(requestID string) *logrus.Entry {
	return l.WithField("request_id", requestID)
}

// WithStore adds the event store id to logger
func (l *Logger) WithStore(storeID string) *logrus.Entry {
	return l.WithField("store", storeID)
}

// Discard returns a logger that drops everything, for tests and quiet CLI runs.
func Discard() *Logger {
	return NewWithOptions("discard", Options{Output: io.Discard, Level: "error"})
}
