package storage

import "context"

type recalcSuppressKey struct{}

// WithRecalcSuppressed marks a context so adapter change hooks skip derived
// field recomputation until the current apply completes.
func WithRecalcSuppressed(ctx context.Context) context.Context {
	return context.WithValue(ctx, recalcSuppressKey{}, true)
}

// RecalcSuppressed reports whether derived-data recomputation is suppressed.
func RecalcSuppressed(ctx context.Context) bool {
	suppressed, ok := ctx.Value(recalcSuppressKey{}).(bool)
	return ok && suppressed
}
