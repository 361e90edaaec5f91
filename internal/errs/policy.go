package errs

import (
	"context"
	"log/slog"
)

// JobFunc is a unit of pipeline work run under a failure policy.
type JobFunc func(ctx context.Context) error

// Reraise logs a failure of fn with its kind and propagates it. Use for
// steps whose failure must abort the enclosing pipeline.
func Reraise(logger *slog.Logger, name string, fn JobFunc) JobFunc {
	return func(ctx context.Context) error {
		err := fn(ctx)
		if err != nil {
			logger.Error("job failed",
				slog.String("job", name),
				slog.String("kind", string(KindOf(err))),
				slog.String("error", err.Error()))
		}
		return err
	}
}

// Silence logs a failure of fn and swallows it. Use for best-effort side
// steps that must never abort the enclosing pipeline.
func Silence(logger *slog.Logger, name string, fn JobFunc) JobFunc {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			logger.Warn("job failed, continuing",
				slog.String("job", name),
				slog.String("kind", string(KindOf(err))),
				slog.String("error", err.Error()))
		}
		return nil
	}
}
