// Package logger provides structured JSON logging with PII redaction.
//
// Call sites use the key/value helpers (logger.Info("msg", "campaign_id", id))
// so that every line is machine-parseable. Email and phone values are masked
// before they reach the output unless redaction is disabled.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	redaction = newRedactHook(true)
	base      = newBase(os.Stderr)
)

func newBase(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyMsg: "msg",
		},
	})
	l.AddHook(redaction)
	return l
}

// SetLevel sets the minimum log level. Unknown names leave the level unchanged.
func SetLevel(level string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return
	}
	base.SetLevel(lvl)
}

// SetRedactPII enables or disables PII redaction.
// Safe to call while other goroutines are logging.
func SetRedactPII(enabled bool) {
	redaction.enabled.Store(enabled)
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) { base.SetOutput(w) }

// Logger returns the underlying logrus logger for libraries that want one.
func Logger() *logrus.Logger { return base }

// With returns an entry carrying the given key/value pairs.
func With(fields ...interface{}) *logrus.Entry {
	return base.WithFields(toFields(fields))
}

// Debug emits a DEBUG-level structured log entry.
func Debug(msg string, fields ...interface{}) { base.WithFields(toFields(fields)).Debug(msg) }

// Info emits an INFO-level structured log entry.
func Info(msg string, fields ...interface{}) { base.WithFields(toFields(fields)).Info(msg) }

// Warn emits a WARN-level structured log entry.
func Warn(msg string, fields ...interface{}) { base.WithFields(toFields(fields)).Warn(msg) }

// Error emits an ERROR-level structured log entry.
func Error(msg string, fields ...interface{}) { base.WithFields(toFields(fields)).Error(msg) }

func toFields(kv []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(kv)/2)
	for i := 0; i < len(kv)-1; i += 2 {
		key := fmt.Sprintf("%v", kv[i])
		switch v := kv[i+1].(type) {
		case error:
			f[key] = v.Error()
		default:
			f[key] = v
		}
	}
	return f
}
