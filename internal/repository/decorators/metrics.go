package decorators

import (
	"context"
	"time"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

// DBRecorder is satisfied by *observability.Collector.
type DBRecorder interface {
	RecordDBOperation(operation, table, status string, d time.Duration)
}

func statusLabel(err error) string {
	if err == nil {
		return "success"
	}
	if ue, ok := apperrors.As(err); ok {
		switch ue.Type {
		case apperrors.ErrorTypeNotFound:
			return "not_found"
		case apperrors.ErrorTypeConflict:
			return "conflict"
		}
	}
	return "error"
}

// Metrics returns a hook counting and timing every store call.
func Metrics(recorder DBRecorder) Hook {
	return func(ctx context.Context, table, op string, call func(context.Context) error) error {
		start := time.Now()
		err := call(ctx)
		recorder.RecordDBOperation(op, table, statusLabel(err), time.Since(start))
		return err
	}
}
