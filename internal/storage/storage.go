// Package storage defines the persistence boundary contracts the governance
// engine depends on: entity reads, the write primitives wrapped by the
// boundary interceptor, snapshots, and the audit event log.
package storage

import (
	"context"
	"time"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/plan"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

// ErrNotFound indicates a requested persistence record is missing.
// Callers use this to differentiate between legitimate "no such entity"
// states and transport or data corruption failures.
var ErrNotFound = apperrors.New(apperrors.CodeNotFound, "record not found")

// EntityReader provides read-only access to entity documents.
type EntityReader interface {
	// GetEntity returns the current state of an entity, including fields,
	// sub-entity collections, and the flags bag.
	GetEntity(ctx context.Context, id string) (entity.Entity, error)
}

// MutationSink is the set of native store write primitives. Adapters
// implement it; the boundary interceptor wraps it by composition so that
// every write is checked against the active authorization context.
type MutationSink interface {
	// SetEntityFields applies a batch of dotted-path field overwrites.
	SetEntityFields(ctx context.Context, entityID string, values map[string]any) error
	// SetEntityFlags applies a batch of writes to the namespaced flags bag.
	SetEntityFlags(ctx context.Context, entityID string, values map[string]any) error
	// CreateSubEntities materializes sub-entities within an owned collection
	// and returns their assigned ids in spec order.
	CreateSubEntities(ctx context.Context, entityID, collection string, specs []plan.SubEntitySpec) ([]string, error)
	// DeleteSubEntities removes sub-entities from an owned collection.
	// Missing ids are ignored.
	DeleteSubEntities(ctx context.Context, entityID, collection string, ids []string) error
	// CreateEntity materializes a new top-level entity and returns its id.
	CreateEntity(ctx context.Context, spec plan.CreateSpec) (string, error)
	// RestoreEntity replaces an entity's full state from a snapshot.
	RestoreEntity(ctx context.Context, snap Snapshot) error
}

// Recalculator is optionally implemented by adapters that maintain derived
// fields through change hooks. The authority triggers one recalculation per
// apply when recalc suppression was signalled for the individual writes.
type Recalculator interface {
	RecalculateEntity(ctx context.Context, entityID string) error
}

// Snapshot is a deep, timestamped copy of an entity's governed state plus the
// operation that triggered it.
type Snapshot struct {
	Entity    entity.Entity
	Operation string
	TakenAt   time.Time
}

// TakeSnapshot reads an entity and deep-copies it into a snapshot.
func TakeSnapshot(ctx context.Context, reader EntityReader, entityID, operation string, now time.Time) (Snapshot, error) {
	e, err := reader.GetEntity(ctx, entityID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Entity: e.Clone(), Operation: operation, TakenAt: now}, nil
}

// AuditEvent is one append-only governance log record.
type AuditEvent struct {
	ID        string
	Timestamp time.Time
	// EventType classifies the record (e.g. "transaction.completed",
	// "governance.violation", "drift.detected").
	EventType string
	EntityID  string
	// ActorID is the user or participant on whose behalf the event ran.
	ActorID string
	// Source is the explicit caller tag carried through the governed path.
	Source   string
	Severity string
	Details  map[string]any
}

// AuditStore persists the bounded append-only audit log.
type AuditStore interface {
	// AppendAuditEvent appends one event to an entity's log.
	AppendAuditEvent(ctx context.Context, evt AuditEvent) error
	// ListAuditEvents returns an entity's events, oldest first.
	ListAuditEvents(ctx context.Context, entityID string) ([]AuditEvent, error)
	// TrimAuditEvents evicts the oldest events so at most keep remain.
	TrimAuditEvents(ctx context.Context, entityID string, keep int) error
	// ClearAuditEvents removes an entity's whole log (privileged callers only).
	ClearAuditEvents(ctx context.Context, entityID string) error
}

// Store combines the capabilities adapters provide to the engine.
type Store interface {
	EntityReader
	MutationSink
	AuditStore
}
