package utils

import (
	"fmt"
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02T15:04:05Z07:00"

// logger is shared by the whole process; JSON to stdout at info level until
// Configure says otherwise
var logger = &log.Logger{
	Out:       os.Stdout,
	Formatter: &log.JSONFormatter{TimestampFormat: timestampFormat},
	Hooks:     make(log.LevelHooks),
	Level:     log.InfoLevel,
	ExitFunc:  os.Exit,
}

// Configure sets the level ("debug", "info", ...) and the format ("json" or
// "text"). Nothing changes when either value is invalid.
func Configure(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return err
	}

	var formatter log.Formatter
	switch format {
	case "", "json":
		formatter = &log.JSONFormatter{TimestampFormat: timestampFormat}
	case "text":
		formatter = &log.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true, DisableColors: true}
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	logger.SetFormatter(formatter)
	logger.SetLevel(lvl)
	return nil
}

// SetOutput redirects log output, mostly to silence tests
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

func Debug(message string, fields map[string]any) {
	logger.WithFields(fields).Debug(message)
}

// Info logs a message at info level with optional fields
func Info(message string, fields map[string]any) {
	logger.WithFields(fields).Info(message)
}

// Warn logs a message at warning level with optional fields
func Warn(message string, fields map[string]any) {
	logger.WithFields(fields).Warn(message)
}

// Error logs a message at error level with optional fields
func Error(message string, fields map[string]any) {
	logger.WithFields(fields).Error(message)
}

// Fatal logs a message at fatal level and exits the application
func Fatal(message string, fields map[string]any) {
	logger.WithFields(fields).Fatal(message)
}
