package log

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap/zapcore"
)

// sentryCore 把 Error 级别以上的日志作为事件发送到 Sentry
type sentryCore struct {
	zapcore.LevelEnabler
	sender *sentry.Client
	fields []zapcore.Field
}

func newSentryCore(dsn, env string, level zapcore.LevelEnabler) zapcore.Core {
	sender, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: env,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error starting Sentry client: %s\n", err)
		return zapcore.NewNopCore()
	}
	return &sentryCore{LevelEnabler: level, sender: sender}
}

func (sc *sentryCore) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(sc.fields)+len(fields))
	merged = append(merged, sc.fields...)
	merged = append(merged, fields...)
	return &sentryCore{LevelEnabler: sc.LevelEnabler, sender: sc.sender, fields: merged}
}

func (sc *sentryCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if sc.Enabled(ent.Level) {
		return ce.AddCore(ent, sc)
	}
	return ce
}

func (sc *sentryCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	err := errors.New(ent.Message)
	event := sentry.NewEvent()
	event.Level = sentry.Level(ent.Level.String())
	event.Message = ent.Message
	event.Timestamp = ent.Time
	event.Exception = append(event.Exception, sentry.Exception{
		Value:      ent.Message,
		Type:       reflect.TypeOf(err).String(),
		Stacktrace: sentry.ExtractStacktrace(err),
	})

	scope := sentry.NewScope()
	for _, field := range append(sc.fields, fields...) {
		switch {
		case field.String != "":
			scope.SetTag(field.Key, field.String)
		case field.Interface != nil:
			if e, ok := field.Interface.(error); ok {
				scope.SetTag(field.Key, e.Error())
			}
		}
	}
	sc.sender.CaptureEvent(event, &sentry.EventHint{OriginalException: err}, scope)
	return nil
}

func (sc *sentryCore) Sync() error {
	if !sc.sender.Flush(5 * time.Second) {
		return fmt.Errorf("failed to flush Sentry, some events may not have been sent")
	}
	return nil
}
