// Package sqlite provides the SQLite-backed store adapter.
//
// Entities persist as rows with JSON field and flag documents; sub-entities
// and audit events are normalized into their own tables. Derived count
// fields are maintained by a recalculation hook that honors the batching
// suppression signal, matching the in-memory adapter's semantics.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/plan"
	"github.com/emberwake/warden/internal/platform/id"
	"github.com/emberwake/warden/internal/platform/storage/sqlitemigrate"
	"github.com/emberwake/warden/internal/storage"
	"github.com/emberwake/warden/internal/storage/sqlite/migrations"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// fromMillis reverses toMillis for persisted millisecond timestamps.
func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Store is a SQLite-backed implementation of storage.Store.
type Store struct {
	sqlDB *sql.DB

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

// Open opens (creating if needed) a SQLite store at the provided path and
// applies embedded migrations.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store := &Store{
		sqlDB:       sqlDB,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close closes the underlying SQLite database. Nil-safe so callers can defer
// it in all startup paths.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Seed inserts an entity directly, bypassing governance. Intended for demo
// setup and test fixtures; the returned id is generated when the entity has
// none.
func (s *Store) Seed(ctx context.Context, e entity.Entity) (string, error) {
	if e.ID == "" {
		generated, err := s.idGenerator()
		if err != nil {
			return "", err
		}
		e.ID = generated
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	snap := storage.Snapshot{Entity: e, Operation: "seed", TakenAt: s.clock().UTC()}
	if err := s.RestoreEntity(ctx, snap); err != nil {
		return "", err
	}
	return e.ID, nil
}

func (s *Store) GetEntity(ctx context.Context, entityID string) (entity.Entity, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT id, kind, name, controller_id, fields, flags, created_at, updated_at FROM entities WHERE id = ?",
		entityID)

	var (
		e                     entity.Entity
		kind                  string
		fieldsJSON, flagsJSON string
		createdAt, updatedAt  int64
	)
	err := row.Scan(&e.ID, &kind, &e.Name, &e.ControllerID, &fieldsJSON, &flagsJSON, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return entity.Entity{}, storage.ErrNotFound
	}
	if err != nil {
		return entity.Entity{}, fmt.Errorf("get entity: %w", err)
	}
	e.Kind = entity.Kind(kind)
	e.CreatedAt = fromMillis(createdAt)
	e.UpdatedAt = fromMillis(updatedAt)
	if err := json.Unmarshal([]byte(fieldsJSON), &e.Fields); err != nil {
		return entity.Entity{}, fmt.Errorf("decode fields: %w", err)
	}
	if err := json.Unmarshal([]byte(flagsJSON), &e.Flags); err != nil {
		return entity.Entity{}, fmt.Errorf("decode flags: %w", err)
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT id, collection, type, data FROM sub_entities WHERE entity_id = ? ORDER BY collection, position",
		entityID)
	if err != nil {
		return entity.Entity{}, fmt.Errorf("list sub entities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			sub        entity.SubEntity
			collection string
			dataJSON   string
		)
		if err := rows.Scan(&sub.ID, &collection, &sub.Type, &dataJSON); err != nil {
			return entity.Entity{}, fmt.Errorf("scan sub entity: %w", err)
		}
		if err := json.Unmarshal([]byte(dataJSON), &sub.Data); err != nil {
			return entity.Entity{}, fmt.Errorf("decode sub entity data: %w", err)
		}
		if e.Collections == nil {
			e.Collections = map[string][]entity.SubEntity{}
		}
		e.Collections[collection] = append(e.Collections[collection], sub)
	}
	if err := rows.Err(); err != nil {
		return entity.Entity{}, fmt.Errorf("read sub entities: %w", err)
	}
	return e, nil
}

func (s *Store) SetEntityFields(ctx context.Context, entityID string, values map[string]any) error {
	fields, err := s.readDocument(ctx, entityID, "fields")
	if err != nil {
		return err
	}
	for path, value := range values {
		fields = entity.SetField(fields, path, value)
	}
	if err := s.writeDocument(ctx, entityID, "fields", fields); err != nil {
		return err
	}
	return s.recalcHook(ctx, entityID)
}

func (s *Store) SetEntityFlags(ctx context.Context, entityID string, values map[string]any) error {
	flags, err := s.readDocument(ctx, entityID, "flags")
	if err != nil {
		return err
	}
	if flags == nil {
		flags = map[string]any{}
	}
	for key, value := range values {
		flags[key] = value
	}
	return s.writeDocument(ctx, entityID, "flags", flags)
}

func (s *Store) CreateSubEntities(ctx context.Context, entityID, collection string, specs []plan.SubEntitySpec) ([]string, error) {
	if err := s.requireEntity(ctx, entityID); err != nil {
		return nil, err
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create sub entities: %w", err)
	}

	var position int64
	row := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(position), 0) FROM sub_entities WHERE entity_id = ? AND collection = ?",
		entityID, collection)
	if err := row.Scan(&position); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("read collection position: %w", err)
	}

	ids := make([]string, 0, len(specs))
	for _, spec := range specs {
		subID, err := s.idGenerator()
		if err != nil {
			_ = tx.Rollback()
			return nil, err
		}
		dataJSON, err := json.Marshal(orEmpty(spec.Data))
		if err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("encode sub entity data: %w", err)
		}
		position++
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO sub_entities (id, entity_id, collection, type, data, position) VALUES (?, ?, ?, ?, ?, ?)",
			subID, entityID, collection, spec.Type, string(dataJSON), position); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("insert sub entity: %w", err)
		}
		ids = append(ids, subID)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE entities SET updated_at = ? WHERE id = ?", toMillis(s.clock()), entityID); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("touch entity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create sub entities: %w", err)
	}
	return ids, s.recalcHook(ctx, entityID)
}

func (s *Store) DeleteSubEntities(ctx context.Context, entityID, collection string, ids []string) error {
	if err := s.requireEntity(ctx, entityID); err != nil {
		return err
	}
	for _, subID := range ids {
		if _, err := s.sqlDB.ExecContext(ctx,
			"DELETE FROM sub_entities WHERE entity_id = ? AND collection = ? AND id = ?",
			entityID, collection, subID); err != nil {
			return fmt.Errorf("delete sub entity: %w", err)
		}
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"UPDATE entities SET updated_at = ? WHERE id = ?", toMillis(s.clock()), entityID); err != nil {
		return fmt.Errorf("touch entity: %w", err)
	}
	return s.recalcHook(ctx, entityID)
}

func (s *Store) CreateEntity(ctx context.Context, spec plan.CreateSpec) (string, error) {
	if !spec.Kind.Valid() {
		return "", entity.ErrInvalidKind
	}
	entityID, err := s.idGenerator()
	if err != nil {
		return "", err
	}

	fields := map[string]any{}
	for path, value := range spec.Fields {
		fields = entity.SetField(fields, path, value)
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}

	now := toMillis(s.clock())
	if _, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO entities (id, kind, name, controller_id, fields, flags, created_at, updated_at) VALUES (?, ?, ?, ?, ?, '{}', ?, ?)",
		entityID, string(spec.Kind), spec.Name, "", string(fieldsJSON), now, now); err != nil {
		return "", fmt.Errorf("insert entity: %w", err)
	}
	return entityID, nil
}

func (s *Store) RestoreEntity(ctx context.Context, snap storage.Snapshot) error {
	e := snap.Entity
	if e.ID == "" {
		return entity.ErrEmptyID
	}
	fieldsJSON, err := json.Marshal(orEmpty(e.Fields))
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	flagsJSON, err := json.Marshal(orEmpty(e.Flags))
	if err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin restore: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO entities (id, kind, name, controller_id, fields, flags, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    kind = excluded.kind,
    name = excluded.name,
    controller_id = excluded.controller_id,
    fields = excluded.fields,
    flags = excluded.flags,
    updated_at = excluded.updated_at`,
		e.ID, string(e.Kind), e.Name, e.ControllerID, string(fieldsJSON), string(flagsJSON),
		toMillis(e.CreatedAt), toMillis(s.clock())); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("restore entity row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM sub_entities WHERE entity_id = ?", e.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear sub entities: %w", err)
	}
	for collection, subs := range e.Collections {
		for i, sub := range subs {
			dataJSON, err := json.Marshal(orEmpty(sub.Data))
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("encode sub entity data: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO sub_entities (id, entity_id, collection, type, data, position) VALUES (?, ?, ?, ?, ?, ?)",
				sub.ID, e.ID, collection, sub.Type, string(dataJSON), i+1); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("restore sub entity: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit restore: %w", err)
	}
	return nil
}

// RecalculateEntity refreshes derived count fields for every collection.
func (s *Store) RecalculateEntity(ctx context.Context, entityID string) error {
	fields, err := s.readDocument(ctx, entityID, "fields")
	if err != nil {
		return err
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT collection, COUNT(*) FROM sub_entities WHERE entity_id = ? GROUP BY collection", entityID)
	if err != nil {
		return fmt.Errorf("count collections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			collection string
			count      int
		)
		if err := rows.Scan(&collection, &count); err != nil {
			return fmt.Errorf("scan collection count: %w", err)
		}
		path := fmt.Sprintf("%s.%s_count", entity.NamespaceDerived, collection)
		fields = entity.SetField(fields, path, count)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read collection counts: %w", err)
	}
	return s.writeDocument(ctx, entityID, "fields", fields)
}

func (s *Store) recalcHook(ctx context.Context, entityID string) error {
	if storage.RecalcSuppressed(ctx) {
		return nil
	}
	return s.RecalculateEntity(ctx, entityID)
}

func (s *Store) AppendAuditEvent(ctx context.Context, evt storage.AuditEvent) error {
	detailsJSON, err := json.Marshal(orEmpty(evt.Details))
	if err != nil {
		return fmt.Errorf("encode event details: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO audit_events (id, entity_id, ts, event_type, actor_id, source, severity, details) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		evt.ID, evt.EntityID, toMillis(evt.Timestamp), evt.EventType, evt.ActorID, evt.Source, evt.Severity, string(detailsJSON)); err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (s *Store) ListAuditEvents(ctx context.Context, entityID string) ([]storage.AuditEvent, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT id, entity_id, ts, event_type, actor_id, source, severity, details FROM audit_events WHERE entity_id = ? ORDER BY ts, id",
		entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []storage.AuditEvent
	for rows.Next() {
		var (
			evt         storage.AuditEvent
			ts          int64
			detailsJSON string
		)
		if err := rows.Scan(&evt.ID, &evt.EntityID, &ts, &evt.EventType, &evt.ActorID, &evt.Source, &evt.Severity, &detailsJSON); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		evt.Timestamp = fromMillis(ts)
		if err := json.Unmarshal([]byte(detailsJSON), &evt.Details); err != nil {
			return nil, fmt.Errorf("decode event details: %w", err)
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read audit events: %w", err)
	}
	return events, nil
}

func (s *Store) TrimAuditEvents(ctx context.Context, entityID string, keep int) error {
	if keep < 0 {
		return nil
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM audit_events WHERE entity_id = ? AND id NOT IN (
    SELECT id FROM audit_events WHERE entity_id = ? ORDER BY ts DESC, id DESC LIMIT ?
)`, entityID, entityID, keep); err != nil {
		return fmt.Errorf("trim audit events: %w", err)
	}
	return nil
}

func (s *Store) ClearAuditEvents(ctx context.Context, entityID string) error {
	if _, err := s.sqlDB.ExecContext(ctx, "DELETE FROM audit_events WHERE entity_id = ?", entityID); err != nil {
		return fmt.Errorf("clear audit events: %w", err)
	}
	return nil
}

func (s *Store) requireEntity(ctx context.Context, entityID string) error {
	var found int
	row := s.sqlDB.QueryRowContext(ctx, "SELECT 1 FROM entities WHERE id = ?", entityID)
	err := row.Scan(&found)
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("check entity: %w", err)
	}
	return nil
}

// readDocument loads one of the entity's JSON columns ("fields" or "flags").
func (s *Store) readDocument(ctx context.Context, entityID, column string) (map[string]any, error) {
	var raw string
	row := s.sqlDB.QueryRowContext(ctx, "SELECT "+column+" FROM entities WHERE id = ?", entityID)
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", column, err)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", column, err)
	}
	return doc, nil
}

func (s *Store) writeDocument(ctx context.Context, entityID, column string, doc map[string]any) error {
	raw, err := json.Marshal(orEmpty(doc))
	if err != nil {
		return fmt.Errorf("encode %s: %w", column, err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"UPDATE entities SET "+column+" = ?, updated_at = ? WHERE id = ?",
		string(raw), toMillis(s.clock()), entityID); err != nil {
		return fmt.Errorf("write %s: %w", column, err)
	}
	return nil
}

func orEmpty(doc map[string]any) map[string]any {
	if doc == nil {
		return map[string]any{}
	}
	return doc
}
