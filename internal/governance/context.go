package governance

import (
	"context"
	"sync/atomic"
	"time"
)

// AuthContext is the ephemeral marker proving a mutation call originates from
// the authority. It exists only for the duration of one Apply call.
type AuthContext struct {
	// ID uniquely identifies this authorization window.
	ID string
	// Operation names the logical operation being applied.
	Operation string
	// Source is the explicit caller tag (no stack introspection).
	Source string
	// SuppressRecalc defers the store's derived-data hooks until the apply
	// completes.
	SuppressRecalc bool
	// BlockNested rejects any attempt to open a second context while this
	// one is active.
	BlockNested bool
	// OpenedAt is when the authority opened the context.
	OpenedAt time.Time

	mutations atomic.Int64
}

// RecordMutation counts one intercepted primitive call against this context.
func (c *AuthContext) RecordMutation() {
	if c == nil {
		return
	}
	c.mutations.Add(1)
}

// Mutations returns the number of primitive calls attributed to this context.
func (c *AuthContext) Mutations() int64 {
	if c == nil {
		return 0
	}
	return c.mutations.Load()
}

type authContextKey struct{}

// withAuthContext attaches an authorization context. Only the Authority calls
// this; the key is unexported so no other package can forge authorization.
func withAuthContext(ctx context.Context, ac *AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, ac)
}

// AuthContextFrom returns the active authorization context, if any.
func AuthContextFrom(ctx context.Context) (*AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey{}).(*AuthContext)
	return ac, ok && ac != nil
}
