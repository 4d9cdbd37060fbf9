package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"portfolio-dashboard/src/models"
)

// -----------------------------------------------------------------------------

const (
	LevelDebug = iota
	LevelInfo
	LevelWarning
	LevelError
)

// -----------------------------------------------------------------------------

// Logger provides structured logging functionality
type Logger struct {
	name   string
	level  int
	logger *log.Logger
}

// -----------------------------------------------------------------------------

// NewLogger creates a new Logger instance. A nil config logs at INFO.
func NewLogger(config *models.MConfig, name string) *Logger {
	level := LevelInfo
	if config != nil {
		level = ParseLevel(config.LogLevel)
	}
	return &Logger{
		name:   name,
		level:  level,
		logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

// -----------------------------------------------------------------------------

// ParseLevel maps a config log level to its threshold; unknown values mean INFO.
func ParseLevel(level string) int {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return LevelDebug
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

// -----------------------------------------------------------------------------

// SetOutput redirects the log output
func (l *Logger) SetOutput(w io.Writer) {
	l.logger.SetOutput(w)
}

// -----------------------------------------------------------------------------

// Named derives a logger for a sub-component sharing the same level and output.
func (l *Logger) Named(name string) *Logger {
	return &Logger{
		name:   name,
		level:  l.level,
		logger: l.logger,
	}
}

// -----------------------------------------------------------------------------

func (l *Logger) write(level int, tag, format string, args ...interface{}) {
	if level < l.level {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] %s: %s", l.name, tag, msg)
}

// -----------------------------------------------------------------------------

// Debug logs diagnostic messages
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// -----------------------------------------------------------------------------

// Info logs informational messages
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// -----------------------------------------------------------------------------

// Warning logs recoverable problems
func (l *Logger) Warning(format string, args ...interface{}) {
	l.write(LevelWarning, "WARNING", format, args...)
}

// -----------------------------------------------------------------------------

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// -----------------------------------------------------------------------------

// Critical logs critical errors and exits the application
func (l *Logger) Critical(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("[%s] CRITICAL: %s", l.name, msg)
	os.Exit(1)
}
