package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// NewLogger builds the process logger. format is "json" (the default) or
// "text"; output defaults to stdout.
func NewLogger(level, format string, output io.Writer) *logrus.Logger {
	if output == nil {
		output = os.Stdout
	}

	var formatter logrus.Formatter = &logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano}
	if strings.EqualFold(format, "text") {
		formatter = &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339}
	}

	return &logrus.Logger{
		Out:       output,
		Formatter: formatter,
		Hooks:     make(logrus.LevelHooks),
		Level:     ParseLevel(level),
		ExitFunc:  os.Exit,
	}
}

// ParseLevel maps a configured level name onto logrus, falling back to info
// for anything it does not recognise
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}
