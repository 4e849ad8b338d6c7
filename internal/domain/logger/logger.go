package logger

import (
	"errors"
	"log/slog"
	"time"
)

// QueryLogger times one store call and logs its outcome under the db type.
type QueryLogger struct {
	Operation string
	Entity    string
	Args      []any
	StartTime time.Time

	// Expected marks errors that are part of normal trading (a lost race, a
	// missing row). They are logged at debug level instead of error.
	Expected []error
}

func NewQueryLogger(operation, entity string, args ...any) *QueryLogger {
	return &QueryLogger{
		Operation: operation,
		Entity:    entity,
		Args:      args,
		StartTime: time.Now(),
	}
}

func (l *QueryLogger) Log(err error) {
	duration := time.Since(l.StartTime)
	attrs := []any{
		slog.String("type", "db"),
		slog.String("operation", l.Operation),
		slog.String("entity", l.Entity),
		slog.Any("args", l.Args),
		slog.Duration("took", duration),
	}

	if err == nil {
		slog.Debug("Store call completed", attrs...)
		return
	}

	attrs = append(attrs, slog.Any("error", err))
	for _, expected := range l.Expected {
		if errors.Is(err, expected) {
			slog.Debug("Store call rejected", attrs...)
			return
		}
	}
	slog.Error("Store call failed", attrs...)
}
