package logger

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
)

// EnableSentry initializes the Sentry client and forwards error-level
// entries to it. Returns a flush function to call on shutdown.
func EnableSentry(dsn, environment string) (func(), error) {
	if dsn == "" {
		return func() {}, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return func() {}, fmt.Errorf("sentry init: %w", err)
	}
	base.AddHook(sentryHook{})
	return func() { sentry.Flush(2 * time.Second) }, nil
}

type sentryHook struct{}

func (sentryHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel}
}

func (sentryHook) Fire(e *logrus.Entry) error {
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range e.Data {
			scope.SetTag(k, fmt.Sprintf("%v", v))
		}
		scope.SetLevel(sentry.LevelError)
		sentry.CaptureMessage(e.Message)
	})
	return nil
}
