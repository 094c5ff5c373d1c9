package scan

import (
	"context"
	"log/slog"
)

// Option configures an Iterator.
type Option func(*Iterator)

// WithLogger sets the logger used for per-candidate diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(it *Iterator) {
		if logger != nil {
			it.logger = logger
		}
	}
}

// WithContext makes the iteration stop with ctx.Err() once ctx is done. The
// context is checked between steps.
func WithContext(ctx context.Context) Option {
	return func(it *Iterator) {
		if ctx != nil {
			it.ctx = ctx
		}
	}
}

// WithTolerance overrides DefaultTolerance. Zero fields keep the default.
func WithTolerance(tol Tolerance) Option {
	return func(it *Iterator) {
		if tol.Time > 0 {
			it.loc.Tol.Time = tol.Time
		}
		if tol.Value > 0 {
			it.loc.Tol.Value = tol.Value
		}
		if tol.MaxIter > 0 {
			it.loc.Tol.MaxIter = tol.MaxIter
		}
	}
}
