package logging

import (
	"fmt"
	"log"
	"maps"
	"os"
)

// DebugEnvVar enables debug tracing when set to a non-empty value. The
// helper has no command line, so the environment is the only out-of-band
// knob.
const DebugEnvVar = "TZ_SPECTRUM_HELPER_DEBUG"

// DefaultLogger writes every level to stderr using Go's standard log
// package. Stdout is reserved for the response payload and must never
// receive log output.
type DefaultLogger struct {
	stderrLogger *log.Logger
	level        Level
	fields       Fields
}

// NewDefaultLogger creates a new stderr logger. The level defaults to
// silent; set DebugEnvVar to trace stage progress.
func NewDefaultLogger() *DefaultLogger {
	level := SilentLevel
	if os.Getenv(DebugEnvVar) != "" {
		level = DebugLevel
	}
	return &DefaultLogger{
		stderrLogger: log.New(os.Stderr, "", log.LstdFlags),
		level:        level,
		fields:       make(Fields),
	}
}

func (d *DefaultLogger) formatMessage(level Level, err error, msg string, fields ...Fields) string {
	// Merge preset and call-site fields
	allFields := make(Fields)
	maps.Copy(allFields, d.fields)
	for _, f := range fields {
		maps.Copy(allFields, f)
	}

	logMsg := fmt.Sprintf("[%s] %s", level.String(), msg)

	if err != nil {
		logMsg += fmt.Sprintf(": %v", err)
	}

	if len(allFields) > 0 {
		logMsg += fmt.Sprintf(" %+v", allFields)
	}

	return logMsg
}

func (d *DefaultLogger) log(level Level, err error, msg string, fields ...Fields) {
	if level < d.level {
		return
	}
	d.stderrLogger.Println(d.formatMessage(level, err, msg, fields...))
}

func (d *DefaultLogger) Debug(msg string, fields ...Fields) {
	d.log(DebugLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Info(msg string, fields ...Fields) {
	d.log(InfoLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Warn(msg string, fields ...Fields) {
	d.log(WarnLevel, nil, msg, fields...)
}

func (d *DefaultLogger) Error(err error, msg string, fields ...Fields) {
	d.log(ErrorLevel, err, msg, fields...)
}

func (d *DefaultLogger) WithFields(fields Fields) Logger {
	newFields := make(Fields)
	maps.Copy(newFields, d.fields)
	maps.Copy(newFields, fields)

	return &DefaultLogger{
		stderrLogger: d.stderrLogger,
		level:        d.level,
		fields:       newFields,
	}
}

func (d *DefaultLogger) SetLevel(level Level) {
	d.level = level
}

// NoOpLogger is a logger that does nothing - useful for tests
type NoOpLogger struct{}

func (n *NoOpLogger) Debug(msg string, fields ...Fields)            {}
func (n *NoOpLogger) Info(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Warn(msg string, fields ...Fields)             {}
func (n *NoOpLogger) Error(err error, msg string, fields ...Fields) {}
func (n *NoOpLogger) WithFields(fields Fields) Logger               { return n }
func (n *NoOpLogger) SetLevel(level Level)                          {}
