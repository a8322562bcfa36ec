package governance

import (
	"sync"
	"time"

	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

// ErrLockHeld indicates another operation already holds the entity.
var ErrLockHeld = apperrors.New(apperrors.CodeGovernanceLockHeld, "entity is locked by another operation")

// lockInfo describes the holder of one entity lock.
type lockInfo struct {
	Operation  string
	Source     string
	AcquiredAt time.Time
}

// Locks serializes high-value operations per entity identity. Acquisition is
// fail-fast: a second operation observing a held lock is rejected, not
// queued, leaving retry and backoff to the caller.
type Locks struct {
	mu    sync.Mutex
	held  map[string]lockInfo
	clock func() time.Time
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{held: map[string]lockInfo{}, clock: time.Now}
}

// Acquire claims the entity for one operation. Returns ErrLockHeld (with the
// holding operation in metadata) when the entity is already claimed.
func (l *Locks) Acquire(entityID, operation, source string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if holder, ok := l.held[entityID]; ok {
		return apperrors.WithMetadata(apperrors.CodeGovernanceLockHeld,
			"entity is locked by another operation",
			map[string]string{"operation": holder.Operation, "source": holder.Source})
	}
	l.held[entityID] = lockInfo{Operation: operation, Source: source, AcquiredAt: l.clock()}
	return nil
}

// Release frees the entity. Releasing an unheld lock is a no-op so release
// paths can run unconditionally in deferred blocks.
func (l *Locks) Release(entityID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, entityID)
}

// Holder reports the operation currently holding the entity, if any.
func (l *Locks) Holder(entityID string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	holder, ok := l.held[entityID]
	return holder.Operation, ok
}
