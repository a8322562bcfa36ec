package governance

import (
	"context"
	"log"

	"github.com/emberwake/warden/internal/audit"
	"github.com/emberwake/warden/internal/plan"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
	"github.com/emberwake/warden/internal/storage"
)

// Mode selects how the interceptor treats unauthorized primitive calls.
type Mode string

const (
	// ModeStrict rejects unauthorized mutations with an error.
	ModeStrict Mode = "strict"
	// ModePermissive logs unauthorized mutations and lets them through, so
	// unmigrated call sites keep working during incremental adoption.
	ModePermissive Mode = "permissive"
)

// ParseMode maps a configuration string onto a Mode, defaulting to strict.
func ParseMode(value string) Mode {
	if value == string(ModePermissive) {
		return ModePermissive
	}
	return ModeStrict
}

// ErrUnauthorizedMutation indicates a store write attempted without an active
// authorization context while the interceptor runs in strict mode.
var ErrUnauthorizedMutation = apperrors.New(apperrors.CodeGovernanceUnauthorizedMutation, "store mutation attempted outside an authorization context")

// Interceptor wraps the store's native write primitives so calls are only
// honored while an authorization context is active. It implements
// storage.MutationSink by composition over the real sink; this is the
// enforcement boundary that makes single-writer a runtime-checked property.
type Interceptor struct {
	sink  storage.MutationSink
	mode  Mode
	trail *audit.Trail
}

// NewInterceptor wraps a mutation sink in the governance boundary.
func NewInterceptor(sink storage.MutationSink, mode Mode, trail *audit.Trail) *Interceptor {
	if mode == "" {
		mode = ModeStrict
	}
	return &Interceptor{sink: sink, mode: mode, trail: trail}
}

// Mode returns the enforcement mode.
func (i *Interceptor) Mode() Mode {
	return i.mode
}

// check gates one primitive call. Authorized calls are attributed to the
// active context; unauthorized calls are rejected or logged by mode. Nested
// authorized calls within one context all attribute to that context and are
// not double-penalized.
func (i *Interceptor) check(ctx context.Context, primitive, entityID string) error {
	if ac, ok := AuthContextFrom(ctx); ok {
		ac.RecordMutation()
		return nil
	}

	if i.mode == ModeStrict {
		return apperrors.WithMetadata(apperrors.CodeGovernanceUnauthorizedMutation,
			"store mutation attempted outside an authorization context",
			map[string]string{"primitive": primitive, "entity_id": entityID})
	}

	log.Printf("governance violation primitive=%s entity_id=%s mode=permissive", primitive, entityID)
	if err := i.trail.LogEvent(ctx, storage.AuditEvent{
		EventType: audit.EventGovernanceViolation,
		EntityID:  entityID,
		Source:    "interceptor",
		Severity:  audit.SeverityWarn,
		Details:   map[string]any{"primitive": primitive},
	}); err != nil {
		log.Printf("record governance violation: %v", err)
	}
	return nil
}

// SetEntityFields implements storage.MutationSink.
func (i *Interceptor) SetEntityFields(ctx context.Context, entityID string, values map[string]any) error {
	if err := i.check(ctx, "setFields", entityID); err != nil {
		return err
	}
	return i.sink.SetEntityFields(ctx, entityID, values)
}

// SetEntityFlags implements storage.MutationSink.
func (i *Interceptor) SetEntityFlags(ctx context.Context, entityID string, values map[string]any) error {
	if err := i.check(ctx, "setFlags", entityID); err != nil {
		return err
	}
	return i.sink.SetEntityFlags(ctx, entityID, values)
}

// CreateSubEntities implements storage.MutationSink.
func (i *Interceptor) CreateSubEntities(ctx context.Context, entityID, collection string, specs []plan.SubEntitySpec) ([]string, error) {
	if err := i.check(ctx, "createSubEntities", entityID); err != nil {
		return nil, err
	}
	return i.sink.CreateSubEntities(ctx, entityID, collection, specs)
}

// DeleteSubEntities implements storage.MutationSink.
func (i *Interceptor) DeleteSubEntities(ctx context.Context, entityID, collection string, ids []string) error {
	if err := i.check(ctx, "deleteSubEntities", entityID); err != nil {
		return err
	}
	return i.sink.DeleteSubEntities(ctx, entityID, collection, ids)
}

// CreateEntity implements storage.MutationSink.
func (i *Interceptor) CreateEntity(ctx context.Context, spec plan.CreateSpec) (string, error) {
	if err := i.check(ctx, "createEntity", ""); err != nil {
		return "", err
	}
	return i.sink.CreateEntity(ctx, spec)
}

// RestoreEntity implements storage.MutationSink.
func (i *Interceptor) RestoreEntity(ctx context.Context, snap storage.Snapshot) error {
	if err := i.check(ctx, "restore", snap.Entity.ID); err != nil {
		return err
	}
	return i.sink.RestoreEntity(ctx, snap)
}

// RecalculateEntity passes the derived-data hook through when the underlying
// sink maintains derived fields. Recalculation is a read-modify-write of
// derived state, so it is governed like any other primitive.
func (i *Interceptor) RecalculateEntity(ctx context.Context, entityID string) error {
	if err := i.check(ctx, "recalculate", entityID); err != nil {
		return err
	}
	if recalc, ok := i.sink.(storage.Recalculator); ok {
		return recalc.RecalculateEntity(ctx, entityID)
	}
	return nil
}
