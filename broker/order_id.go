package broker

import (
	"context"

	"github.com/google/uuid"
)

type clientOrderIDKey struct{}

// WithClientOrderID pins the idempotency key a gateway sends with the next
// order, so every retry of that order reuses it.
func WithClientOrderID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientOrderIDKey{}, id)
}

// ClientOrderID returns the pinned key, or a fresh one when none is set.
func ClientOrderID(ctx context.Context) string {
	if id, ok := ctx.Value(clientOrderIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func ensureClientOrderID(ctx context.Context) context.Context {
	if id, ok := ctx.Value(clientOrderIDKey{}).(string); ok && id != "" {
		return ctx
	}
	return WithClientOrderID(ctx, uuid.NewString())
}
