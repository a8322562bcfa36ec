// Package governance enforces the single-writer boundary over the entity
// store.
//
// The Authority is the only component permitted to open an authorization
// context and drive the store's write primitives. The Interceptor wraps the
// store's MutationSink by composition and rejects (strict mode) or logs
// (permissive mode) any primitive call made without an active context, which
// makes the single-writer rule a runtime-checked property instead of a
// convention.
//
// The authorization context travels on context.Context as an explicit value
// set only by the Authority; there is no module-level mutable state.
package governance
