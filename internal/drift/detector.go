package drift

import (
	"context"
	"time"

	"github.com/emberwake/warden/internal/audit"
	"github.com/emberwake/warden/internal/storage"
)

// BaselineRecorder stores the current structural signature for an entity
// through the governed write path. Implemented by the mutation authority.
type BaselineRecorder interface {
	RecordDriftBaseline(ctx context.Context, entityID, source string) error
}

// Report is the outcome of one drift check. Detection is advisory: a
// positive report never blocks or repairs anything.
type Report struct {
	EntityID  string
	IsDrift   bool
	Reason    string
	Expected  string
	Actual    string
	CheckedAt time.Time
}

const (
	// ReasonNoBaseline means the entity had no stored signature; the check
	// recorded one instead of reporting drift.
	ReasonNoBaseline = "baseline recorded"
	// ReasonSignatureMismatch means stored and recomputed signatures differ,
	// indicating a write that bypassed governance.
	ReasonSignatureMismatch = "signature mismatch"
	// ReasonClean means the recomputed signature matches the stored one.
	ReasonClean = "clean"
)

// Detector recomputes entity signatures and compares them against the
// sealed baseline from the last authorized mutation.
type Detector struct {
	reader   storage.EntityReader
	baseline BaselineRecorder
	trail    *audit.Trail
	clock    func() time.Time
}

// NewDetector wires a detector. The trail may be nil to disable audit
// records for detections.
func NewDetector(reader storage.EntityReader, baseline BaselineRecorder, trail *audit.Trail) *Detector {
	return &Detector{reader: reader, baseline: baseline, trail: trail, clock: time.Now}
}

// CheckDrift compares an entity's current structural signature with the one
// sealed by the last authorized mutation. An entity with no baseline gets one
// recorded and reports clean. A mismatch is logged to the audit trail and
// reported; the entity is left untouched.
func (d *Detector) CheckDrift(ctx context.Context, entityID, source string) (Report, error) {
	e, err := d.reader.GetEntity(ctx, entityID)
	if err != nil {
		return Report{}, err
	}

	report := Report{EntityID: entityID, CheckedAt: d.clock().UTC()}

	actual, err := Signature(e)
	if err != nil {
		return Report{}, err
	}
	report.Actual = actual

	expected, ok := e.Flags[SignatureFlag].(string)
	if !ok || expected == "" {
		report.Reason = ReasonNoBaseline
		if err := d.baseline.RecordDriftBaseline(ctx, entityID, source); err != nil {
			return Report{}, err
		}
		return report, nil
	}
	report.Expected = expected

	if actual == expected {
		report.Reason = ReasonClean
		return report, nil
	}

	report.IsDrift = true
	report.Reason = ReasonSignatureMismatch
	d.trail.LogEvent(ctx, storage.AuditEvent{
		EventType: audit.EventDriftDetected,
		EntityID:  entityID,
		Source:    source,
		Severity:  audit.SeverityWarn,
		Details: map[string]any{
			"expected": expected,
			"actual":   actual,
		},
	})
	return report, nil
}
