// SPDX-License-Identifier: MIT
package log

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogLevel defines the severity of a log message.
type LogLevel uint32

// Constants for log levels.
const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// Fields is an alias so callers don't need to import logrus directly.
type Fields = logrus.Fields

// Entry is a logger bound to a set of fields.
type Entry = logrus.Entry

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string (case-insensitive) to a LogLevel.
// Returns LevelInfo and false if the string is not recognized.
func ParseLevel(levelStr string) (LogLevel, bool) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "FATAL":
		return LevelFatal, true
	default:
		return LevelInfo, false
	}
}

func (l LogLevel) logrus() logrus.Level {
	switch l {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	case LevelFatal:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

// logger is the process-wide logrus instance. logrus guards its level with
// atomics, so SetLevel is safe to call while other goroutines log.
var logger = newLogger(os.Stderr)

func newLogger(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000000",
	})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// SetLevel sets the global logging level.
func SetLevel(level LogLevel) {
	logger.SetLevel(level.logrus())
}

// GetLevel gets the current global logging level.
func GetLevel() LogLevel {
	switch logger.GetLevel() {
	case logrus.DebugLevel, logrus.TraceLevel:
		return LevelDebug
	case logrus.WarnLevel:
		return LevelWarn
	case logrus.ErrorLevel:
		return LevelError
	case logrus.FatalLevel, logrus.PanicLevel:
		return LevelFatal
	default:
		return LevelInfo
	}
}

// SetOutput redirects log output, mostly useful in tests.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// WithFields returns an entry carrying structured fields.
func WithFields(fields Fields) *Entry {
	return logger.WithFields(fields)
}

// Debugf logs a formatted debug message if the level is appropriate.
func Debugf(format string, v ...interface{}) {
	logger.Debugf(format, v...)
}

// Infof logs a formatted info message if the level is appropriate.
func Infof(format string, v ...interface{}) {
	logger.Infof(format, v...)
}

// Warnf logs a formatted warning message if the level is appropriate.
func Warnf(format string, v ...interface{}) {
	logger.Warnf(format, v...)
}

// Errorf logs a formatted error message if the level is appropriate.
func Errorf(format string, v ...interface{}) {
	logger.Errorf(format, v...)
}

// Fatalf logs a formatted fatal message and exits the application.
func Fatalf(format string, v ...interface{}) {
	logger.Fatalf(format, v...)
}

func Debug(v ...interface{}) { logger.Debug(v...) }
func Info(v ...interface{})  { logger.Info(v...) }
func Warn(v ...interface{})  { logger.Warn(v...) }
func Error(v ...interface{}) { logger.Error(v...) }
func Fatal(v ...interface{}) { logger.Fatal(v...) }
