package decorators

import (
	"context"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/wangmul/emotion-tracker/internal/errors"
)

// Logging returns a hook logging failed store calls at warn and every call
// at debug. Not-found answers are not failures.
func Logging(logger *zap.Logger) Hook {
	return func(ctx context.Context, table, op string, call func(context.Context) error) error {
		start := time.Now()
		err := call(ctx)
		fields := []zap.Field{
			zap.String("table", table),
			zap.String("operation", op),
			zap.Duration("duration", time.Since(start)),
		}
		switch {
		case err == nil || apperrors.IsNotFound(err):
			logger.Debug("Store call", fields...)
		default:
			logger.Warn("Store call failed", append(fields, zap.Error(err))...)
		}
		return err
	}
}
