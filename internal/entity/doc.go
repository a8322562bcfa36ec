// Package entity defines the persistent game-entity document model governed
// by the mutation authority.
//
// An Entity is an addressable document with scalar fields (reached through
// dotted field paths such as "system.credits"), owned sub-entity collections
// (inventory items, mounted equipment), and a namespaced flags bag used for
// governance metadata (lock state, transaction history, drift signatures).
//
// Field paths are validated against a per-kind namespace schema so malformed
// paths are rejected when a plan is built, not when the store write runs.
package entity
