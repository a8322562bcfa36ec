package governance

import (
	"context"
	"log"
	"time"

	"github.com/emberwake/warden/internal/audit"
	"github.com/emberwake/warden/internal/storage"
)

// SafeMutator wraps a governed mutation with lock acquisition, a pre-state
// snapshot, and best-effort rollback on failure.
type SafeMutator struct {
	authority *Authority
	reader    storage.EntityReader
	locks     *Locks
	trail     *audit.Trail
	clock     func() time.Time
}

// NewSafeMutator wires the wrapper. The trail may be nil, in which case
// rollback outcomes are only logged.
func NewSafeMutator(authority *Authority, reader storage.EntityReader, locks *Locks, trail *audit.Trail) *SafeMutator {
	return &SafeMutator{
		authority: authority,
		reader:    reader,
		locks:     locks,
		trail:     trail,
		clock:     time.Now,
	}
}

// Execute runs fn under an entity lock with a snapshot taken first. If fn
// returns an error the snapshot is restored through the authority and fn's
// error is returned; a rollback failure is recorded on the trail but never
// masks the original error.
func (s *SafeMutator) Execute(ctx context.Context, entityID string, opts ApplyOptions, fn func(ctx context.Context) error) error {
	if err := s.locks.Acquire(entityID, opts.Operation, opts.Source); err != nil {
		return err
	}
	defer s.locks.Release(entityID)

	snap, err := storage.TakeSnapshot(ctx, s.reader, entityID, opts.Operation, s.clock())
	if err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		s.rollback(ctx, snap, opts, err)
		return err
	}
	return nil
}

func (s *SafeMutator) rollback(ctx context.Context, snap storage.Snapshot, opts ApplyOptions, cause error) {
	restoreOpts := ApplyOptions{
		Operation: opts.Operation + ":rollback",
		Source:    opts.Source,
	}
	if err := s.authority.Restore(ctx, snap, restoreOpts); err != nil {
		log.Printf("level=ERROR msg=\"rollback failed\" entity_id=%s operation=%s error=%q", snap.Entity.ID, opts.Operation, err)
		s.trail.LogEvent(ctx, storage.AuditEvent{
			EventType: audit.EventRollbackFailed,
			EntityID:  snap.Entity.ID,
			Source:    opts.Source,
			Severity:  audit.SeverityError,
			Details: map[string]any{
				"operation":      opts.Operation,
				"cause":          cause.Error(),
				"restore_error":  err.Error(),
				"snapshot_taken": snap.TakenAt.UTC().Format(time.RFC3339),
			},
		})
		return
	}
	s.trail.LogEvent(ctx, storage.AuditEvent{
		EventType: audit.EventMutationRolledBack,
		EntityID:  snap.Entity.ID,
		Source:    opts.Source,
		Severity:  audit.SeverityWarn,
		Details: map[string]any{
			"operation": opts.Operation,
			"cause":     cause.Error(),
		},
	})
}
