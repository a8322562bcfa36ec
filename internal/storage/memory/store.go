// Package memory provides an in-memory store adapter.
//
// It backs tests and the demo CLI. Semantics mirror the sqlite adapter:
// derived count fields are maintained by a recalculation hook that honors
// suppression, and reads return deep copies so callers cannot mutate stored
// state without going through the write primitives.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/plan"
	"github.com/emberwake/warden/internal/platform/id"
	"github.com/emberwake/warden/internal/storage"
)

// Store is a mutex-guarded in-memory implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	entities map[string]entity.Entity
	events   map[string][]storage.AuditEvent

	clock       func() time.Time
	idGenerator func() (string, error)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) { s.clock = clock }
}

// WithIDGenerator overrides id generation.
func WithIDGenerator(gen func() (string, error)) Option {
	return func(s *Store) { s.idGenerator = gen }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entities:    map[string]entity.Entity{},
		events:      map[string][]storage.AuditEvent{},
		clock:       time.Now,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed inserts an entity directly, bypassing governance. Intended for test
// fixtures and demo setup only.
func (s *Store) Seed(e entity.Entity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	s.entities[e.ID] = e.Clone()
}

// MutateRaw runs fn against the stored entity without any governance or
// derived-data maintenance. It exists to simulate out-of-band writes when
// exercising drift detection.
func (s *Store) MutateRaw(entityID string, fn func(e *entity.Entity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return storage.ErrNotFound
	}
	fn(&e)
	s.entities[entityID] = e
	return nil
}

func (s *Store) GetEntity(_ context.Context, entityID string) (entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entities[entityID]
	if !ok {
		return entity.Entity{}, storage.ErrNotFound
	}
	return e.Clone(), nil
}

func (s *Store) SetEntityFields(ctx context.Context, entityID string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return storage.ErrNotFound
	}
	for path, value := range values {
		e.Fields = entity.SetField(e.Fields, path, value)
	}
	e.UpdatedAt = s.clock().UTC()
	s.entities[entityID] = e
	return s.recalcLocked(ctx, entityID)
}

func (s *Store) SetEntityFlags(_ context.Context, entityID string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return storage.ErrNotFound
	}
	if e.Flags == nil {
		e.Flags = map[string]any{}
	}
	for key, value := range values {
		e.Flags[key] = value
	}
	e.UpdatedAt = s.clock().UTC()
	s.entities[entityID] = e
	return nil
}

func (s *Store) CreateSubEntities(ctx context.Context, entityID, collection string, specs []plan.SubEntitySpec) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if e.Collections == nil {
		e.Collections = map[string][]entity.SubEntity{}
	}
	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		subID, err := s.idGenerator()
		if err != nil {
			return nil, err
		}
		e.Collections[collection] = append(e.Collections[collection], entity.SubEntity{
			ID:   subID,
			Type: spec.Type,
			Data: spec.Data,
		})
		ids = append(ids, subID)
	}
	e.UpdatedAt = s.clock().UTC()
	s.entities[entityID] = e
	return ids, s.recalcLocked(ctx, entityID)
}

func (s *Store) DeleteSubEntities(ctx context.Context, entityID, collection string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entities[entityID]
	if !ok {
		return storage.ErrNotFound
	}
	remove := make(map[string]struct{}, len(ids))
	for _, subID := range ids {
		remove[subID] = struct{}{}
	}
	kept := e.Collections[collection][:0]
	for _, sub := range e.Collections[collection] {
		if _, gone := remove[sub.ID]; !gone {
			kept = append(kept, sub)
		}
	}
	e.Collections[collection] = kept
	e.UpdatedAt = s.clock().UTC()
	s.entities[entityID] = e
	return s.recalcLocked(ctx, entityID)
}

func (s *Store) CreateEntity(_ context.Context, spec plan.CreateSpec) (string, error) {
	if !spec.Kind.Valid() {
		return "", entity.ErrInvalidKind
	}
	entityID, err := s.idGenerator()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock().UTC()
	created := entity.Entity{
		ID:        entityID,
		Kind:      spec.Kind,
		Name:      spec.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for path, value := range spec.Fields {
		created.Fields = entity.SetField(created.Fields, path, value)
	}
	s.entities[entityID] = created
	return entityID, nil
}

func (s *Store) RestoreEntity(_ context.Context, snap storage.Snapshot) error {
	if snap.Entity.ID == "" {
		return entity.ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	restored := snap.Entity.Clone()
	restored.UpdatedAt = s.clock().UTC()
	s.entities[snap.Entity.ID] = restored
	return nil
}

// RecalculateEntity refreshes derived count fields for every collection.
func (s *Store) RecalculateEntity(ctx context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entities[entityID]; !ok {
		return storage.ErrNotFound
	}
	return s.recalcNowLocked(ctx, entityID)
}

// recalcLocked runs the derived-data hook after a write unless the caller
// suppressed it for batching.
func (s *Store) recalcLocked(ctx context.Context, entityID string) error {
	if storage.RecalcSuppressed(ctx) {
		return nil
	}
	return s.recalcNowLocked(ctx, entityID)
}

func (s *Store) recalcNowLocked(_ context.Context, entityID string) error {
	e, ok := s.entities[entityID]
	if !ok {
		return storage.ErrNotFound
	}
	for name, subs := range e.Collections {
		path := fmt.Sprintf("%s.%s_count", entity.NamespaceDerived, name)
		e.Fields = entity.SetField(e.Fields, path, len(subs))
	}
	s.entities[entityID] = e
	return nil
}

func (s *Store) AppendAuditEvent(_ context.Context, evt storage.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[evt.EntityID] = append(s.events[evt.EntityID], evt)
	return nil
}

func (s *Store) ListAuditEvents(_ context.Context, entityID string) ([]storage.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.AuditEvent(nil), s.events[entityID]...), nil
}

func (s *Store) TrimAuditEvents(_ context.Context, entityID string, keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.events[entityID]
	if keep >= 0 && len(events) > keep {
		s.events[entityID] = append([]storage.AuditEvent(nil), events[len(events)-keep:]...)
	}
	return nil
}

func (s *Store) ClearAuditEvents(_ context.Context, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, entityID)
	return nil
}
