package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = logrus.New()

func init() {
	base.SetOutput(os.Stdout)
	base.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	base.SetLevel(logrus.InfoLevel)
}

// Configure switches formatter and level once config is loaded. Production gets
// JSON lines, everything else the text formatter.
func Configure(environment, level string) {
	if environment == "production" {
		base.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl := logrus.InfoLevel
	if environment == "development" {
		lvl = logrus.DebugLevel
	}
	if level != "" {
		if parsed, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
			lvl = parsed
		}
	}
	base.SetLevel(lvl)
}

// Fields is re-exported so callers don't import logrus directly.
type Fields = logrus.Fields

func WithFields(fields Fields) *logrus.Entry {
	return base.WithFields(fields)
}

func Info(format string, v ...interface{}) {
	base.Infof(format, v...)
}

func Error(format string, v ...interface{}) {
	base.Errorf(format, v...)
}

func Debug(format string, v ...interface{}) {
	base.Debugf(format, v...)
}

func Warn(format string, v ...interface{}) {
	base.Warnf(format, v...)
}

// Guard logs a rejected state-machine guard.
func Guard(entity, id, actor, reason string) {
	base.WithFields(logrus.Fields{
		"entity": entity,
		"id":     id,
		"actor":  actor,
	}).Warn("transition rejected: " + reason)
}

// Logger returns the underlying logrus instance for adapters that want one
// (cron, echo).
func Logger() *logrus.Logger {
	return base
}
