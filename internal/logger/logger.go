package logger

import (
	"os"

	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

// Init initializes the logger with the specified level and format
func Init(level, format string) {
	log = logrus.New()

	if format == "text" {
		log.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	} else {
		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	}

	log.SetOutput(os.Stderr)

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		log.Warn("Invalid log level, using info")
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)
}

// Get returns the global logger instance
func Get() *logrus.Logger {
	if log == nil {
		Init("info", "json") // Default fallback
	}
	return log
}

// WithFields creates a new entry with the specified fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Get().WithFields(fields)
}

// WithField creates a new entry with a single field
func WithField(key string, value interface{}) *logrus.Entry {
	return Get().WithField(key, value)
}

// WithCondition creates a new entry tagged with a condition name
func WithCondition(name string) *logrus.Entry {
	return Get().WithField("condition", name)
}

// WithSession creates a new entry tagged with a session identifier
func WithSession(session string) *logrus.Entry {
	return Get().WithField("session", session)
}

// WithError creates a new entry with an error field
func WithError(err error) *logrus.Entry {
	return Get().WithError(err)
}

// Debug logs a debug message
func Debug(args ...interface{}) {
	Get().Debug(args...)
}

// Info logs an info message
func Info(args ...interface{}) {
	Get().Info(args...)
}

// Warn logs a warning message
func Warn(args ...interface{}) {
	Get().Warn(args...)
}

// Error logs an error message
func Error(args ...interface{}) {
	Get().Error(args...)
}

// Fatal logs a fatal message and exits
func Fatal(args ...interface{}) {
	Get().Fatal(args...)
}
