package audit

import (
	"context"
	"sort"
	"time"

	"github.com/emberwake/warden/internal/auth/grant"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
	"github.com/emberwake/warden/internal/platform/id"
	"github.com/emberwake/warden/internal/storage"
)

// DefaultCap is the maximum retained audit entries per entity.
const DefaultCap = 1000

// Event type constants recorded by the governance engine.
const (
	EventTransactionCompleted = "transaction.completed"
	EventTransactionFailed    = "transaction.failed"
	EventGovernanceViolation  = "governance.violation"
	EventMutationRolledBack   = "mutation.rolled_back"
	EventRollbackFailed       = "mutation.rollback_failed"
	EventDriftDetected        = "drift.detected"
	EventTrailCleared         = "audit.trail_cleared"
)

// Severity levels for audit entries.
const (
	SeverityInfo  = "INFO"
	SeverityWarn  = "WARN"
	SeverityError = "ERROR"
)

// ErrClearDenied indicates a trail clear without a valid operator grant.
var ErrClearDenied = apperrors.New(apperrors.CodeAuditClearDenied, "clearing the audit trail requires an operator grant")

// Trail records governance events against entities with a per-entity cap.
type Trail struct {
	store       storage.AuditStore
	grants      *grant.Config
	cap         int
	clock       func() time.Time
	idGenerator func() (string, error)
}

// Option configures a Trail.
type Option func(*Trail)

// WithCap overrides the per-entity retention cap.
func WithCap(limit int) Option {
	return func(t *Trail) {
		if limit > 0 {
			t.cap = limit
		}
	}
}

// WithGrants enables privileged operations verified against operator grants.
func WithGrants(config *grant.Config) Option {
	return func(t *Trail) {
		t.grants = config
	}
}

// New creates a Trail with default dependencies.
func New(store storage.AuditStore, opts ...Option) *Trail {
	t := &Trail{
		store:       store,
		cap:         DefaultCap,
		clock:       time.Now,
		idGenerator: id.NewID,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// LogEvent appends one event, assigning id and timestamp when absent, then
// evicts the oldest entries beyond the cap. It is a no-op when the store is
// nil so callers need not guard optional auditing.
func (t *Trail) LogEvent(ctx context.Context, evt storage.AuditEvent) error {
	if t == nil || t.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = t.clock().UTC()
	}
	if evt.ID == "" {
		generated, err := t.idGenerator()
		if err != nil {
			return err
		}
		evt.ID = generated
	}
	if evt.Severity == "" {
		evt.Severity = SeverityInfo
	}
	if err := t.store.AppendAuditEvent(ctx, evt); err != nil {
		return err
	}
	return t.store.TrimAuditEvents(ctx, evt.EntityID, t.cap)
}

// Timeline returns an entity's events, oldest first, narrowed by an AIP-160
// filter expression. An empty filter returns the full retained log.
func (t *Trail) Timeline(ctx context.Context, entityID, filter string) ([]storage.AuditEvent, error) {
	matcher, err := ParseTimelineFilter(filter)
	if err != nil {
		return nil, err
	}
	events, err := t.store.ListAuditEvents(ctx, entityID)
	if err != nil {
		return nil, err
	}
	matched := make([]storage.AuditEvent, 0, len(events))
	for _, evt := range events {
		if matcher(evt) {
			matched = append(matched, evt)
		}
	}
	return matched, nil
}

// Summary aggregates an entity's retained log.
type Summary struct {
	Total      int
	ByType     map[string]int
	BySeverity map[string]int
	First      time.Time
	Last       time.Time
}

// GetSummary computes counts by type and severity over the retained log.
func (t *Trail) GetSummary(ctx context.Context, entityID string) (Summary, error) {
	events, err := t.store.ListAuditEvents(ctx, entityID)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{
		ByType:     map[string]int{},
		BySeverity: map[string]int{},
	}
	for _, evt := range events {
		summary.Total++
		summary.ByType[evt.EventType]++
		summary.BySeverity[evt.Severity]++
		if summary.First.IsZero() || evt.Timestamp.Before(summary.First) {
			summary.First = evt.Timestamp
		}
		if evt.Timestamp.After(summary.Last) {
			summary.Last = evt.Timestamp
		}
	}
	return summary, nil
}

// TopEventTypes returns event types by descending count, for operator views.
func (s Summary) TopEventTypes() []string {
	types := make([]string, 0, len(s.ByType))
	for eventType := range s.ByType {
		types = append(types, eventType)
	}
	sort.Slice(types, func(i, j int) bool {
		if s.ByType[types[i]] != s.ByType[types[j]] {
			return s.ByType[types[i]] > s.ByType[types[j]]
		}
		return types[i] < types[j]
	})
	return types
}

// ClearTrail removes an entity's whole log. The caller must present an
// operator grant covering the audit:clear scope for this entity.
func (t *Trail) ClearTrail(ctx context.Context, entityID, grantToken, operatorID string) error {
	if t.grants == nil {
		return ErrClearDenied
	}
	claims, err := t.grants.Verify(grantToken, grant.Expectation{
		Scope:      grant.ScopeAuditClear,
		EntityID:   entityID,
		OperatorID: operatorID,
	})
	if err != nil {
		return err
	}
	if err := t.store.ClearAuditEvents(ctx, entityID); err != nil {
		return err
	}
	return t.LogEvent(ctx, storage.AuditEvent{
		EventType: EventTrailCleared,
		EntityID:  entityID,
		ActorID:   claims.Subject,
		Source:    "audit",
		Severity:  SeverityWarn,
		Details:   map[string]any{"grant_id": claims.JWTID},
	})
}
