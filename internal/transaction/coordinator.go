// Package transaction coordinates multi-step purchases into one atomic
// governed apply.
//
// The coordinator never writes to the store directly: it validates, compiles
// factory plans, merges them with the credit delta, and hands the single
// merged plan to the mutation authority. Atomicity comes from that single
// apply plus the safety wrapper's snapshot rollback, not from store-level
// transactions.
package transaction

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/emberwake/warden/internal/audit"
	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/governance"
	"github.com/emberwake/warden/internal/ledger"
	"github.com/emberwake/warden/internal/plan"
	"github.com/emberwake/warden/internal/plan/factory"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
	"github.com/emberwake/warden/internal/platform/id"
	"github.com/emberwake/warden/internal/storage"
)

// SharedDockLocation is where purchased top-level entities are placed when
// the purchaser cannot carry them in a collection.
const SharedDockLocation = "shared-dock"

// ManifestCollection holds references from a character to top-level entities
// they own.
const ManifestCollection = "manifest"

// Request describes one purchase.
type Request struct {
	// PurchaserID is the entity paying for and receiving the cart.
	PurchaserID string
	// ActorID is the user driving the purchase; must control the purchaser.
	ActorID string
	// Source is the caller tag recorded on the governed apply.
	Source string
	// LineItems is the cart.
	LineItems []ledger.LineItem
}

// Outcome reports one transaction attempt. A failed attempt carries Err and
// leaves no partial state behind.
type Outcome struct {
	Success       bool
	TransactionID string
	Total         float64
	CreatedIDs    map[string]string
	Warnings      []plan.Warning
	Err           error
}

// Coordinator executes purchase transactions.
type Coordinator struct {
	reader    storage.EntityReader
	safe      *governance.SafeMutator
	authority *governance.Authority
	factories *factory.Registry
	trail     *audit.Trail

	clock       func() time.Time
	idGenerator func() (string, error)
	tracer      trace.Tracer
}

// NewCoordinator wires a coordinator over the governed mutation path.
func NewCoordinator(reader storage.EntityReader, safe *governance.SafeMutator, authority *governance.Authority, factories *factory.Registry, trail *audit.Trail) *Coordinator {
	return &Coordinator{
		reader:      reader,
		safe:        safe,
		authority:   authority,
		factories:   factories,
		trail:       trail,
		clock:       time.Now,
		idGenerator: id.NewID,
		tracer:      otel.Tracer("warden/transaction"),
	}
}

// Execute runs one purchase end to end: validate the request and funds,
// compile every line item, merge the fragments with a credit delta computed
// from a fresh balance read, and apply the merged plan as one governed write
// under the entity lock. Any failure before or during the apply yields an
// Outcome with Err set and the purchaser unchanged.
func (c *Coordinator) Execute(ctx context.Context, req Request) Outcome {
	transactionID, err := c.idGenerator()
	if err != nil {
		return Outcome{Err: err}
	}

	ctx, span := c.tracer.Start(ctx, "transaction.execute",
		trace.WithAttributes(
			attribute.String("transaction.id", transactionID),
			attribute.String("purchaser.id", req.PurchaserID),
			attribute.Int("cart.items", len(req.LineItems)),
		))
	defer span.End()

	outcome := Outcome{TransactionID: transactionID}
	outcome.Total = ledger.CalculateTotal(req.LineItems)

	purchaser, err := c.validate(ctx, req)
	if err != nil {
		return c.fail(ctx, outcome, req, err)
	}

	// Early funds check so obviously unaffordable carts fail before any
	// factory work or lock contention.
	check, err := ledger.ValidateFunds(purchaser, outcome.Total)
	if err != nil {
		return c.fail(ctx, outcome, req, err)
	}
	if !check.OK {
		return c.fail(ctx, outcome, req, apperrors.WithMetadata(apperrors.CodeLedgerInsufficientFunds,
			"insufficient funds at validation", map[string]string{"reason": check.Reason}))
	}

	fragments := make([]plan.Plan, 0, len(req.LineItems)+2)
	for _, item := range req.LineItems {
		compiled, err := c.factories.Compile(ctx, purchaser, item)
		if err != nil {
			return c.fail(ctx, outcome, req, err)
		}
		fragments = append(fragments, compiled)
		fragments = append(fragments, placementFragments(purchaser, compiled)...)
	}

	opts := governance.ApplyOptions{
		Operation:     "transaction:purchase",
		Source:        req.Source,
		BlockNested:   true,
		TransactionID: transactionID,
	}

	err = c.safe.Execute(ctx, req.PurchaserID, opts, func(ctx context.Context) error {
		// Re-read inside the lock: the balance may have moved since
		// validation, and the credit delta must deduct from the balance at
		// execution time.
		current, err := c.reader.GetEntity(ctx, req.PurchaserID)
		if err != nil {
			return err
		}
		delta, err := ledger.BuildCreditDelta(current, outcome.Total)
		if err != nil {
			if apperrors.IsCode(err, apperrors.CodeLedgerInsufficientFunds) {
				return apperrors.Wrap(apperrors.CodeLedgerInsufficientFunds,
					"insufficient funds at execution time", err)
			}
			return err
		}

		merged := plan.Merge(append(fragments, delta))
		outcome.Warnings = merged.Warnings
		for _, warning := range merged.Warnings {
			log.Printf("level=WARN msg=\"plan merge conflict\" transaction_id=%s path=%s plan_index=%d",
				transactionID, warning.Path, warning.PlanIndex)
		}

		applied, err := c.authority.Apply(ctx, req.PurchaserID, merged.Plan, opts)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeTransactionApplyFailed, "transaction apply failed", err)
		}
		outcome.CreatedIDs = applied.CreatedIDs
		return nil
	})
	if err != nil {
		return c.fail(ctx, outcome, req, err)
	}

	outcome.Success = true
	c.trail.LogEvent(ctx, storage.AuditEvent{
		EventType: audit.EventTransactionCompleted,
		EntityID:  req.PurchaserID,
		ActorID:   req.ActorID,
		Source:    req.Source,
		Severity:  audit.SeverityInfo,
		Details:   c.eventDetails(ctx, outcome, req),
	})
	return outcome
}

// validate resolves the purchaser and checks the actor and cart shape.
func (c *Coordinator) validate(ctx context.Context, req Request) (entity.Entity, error) {
	if req.PurchaserID == "" || req.Source == "" {
		return entity.Entity{}, apperrors.New(apperrors.CodeTransactionInvalidInput, "purchaser id and source are required")
	}
	if len(req.LineItems) == 0 {
		return entity.Entity{}, apperrors.New(apperrors.CodeTransactionInvalidInput, "cart is empty")
	}
	for _, item := range req.LineItems {
		if item.Kind == "" {
			return entity.Entity{}, apperrors.New(apperrors.CodeTransactionInvalidInput, "line item kind is required")
		}
		if item.Cost < 0 {
			return entity.Entity{}, ledger.ErrInvalidCost
		}
	}

	purchaser, err := c.reader.GetEntity(ctx, req.PurchaserID)
	if err != nil {
		return entity.Entity{}, err
	}
	if purchaser.ControllerID != "" && purchaser.ControllerID != req.ActorID {
		return entity.Entity{}, apperrors.WithMetadata(apperrors.CodeTransactionNotController,
			"actor does not control the purchaser", map[string]string{
				"actor_id":      req.ActorID,
				"controller_id": purchaser.ControllerID,
			})
	}
	return purchaser, nil
}

func (c *Coordinator) fail(ctx context.Context, outcome Outcome, req Request, err error) Outcome {
	outcome.Err = err
	details := c.eventDetails(ctx, outcome, req)
	details["error"] = err.Error()
	if code := apperrors.GetCode(err); code != apperrors.CodeUnknown {
		details["code"] = string(code)
	}
	c.trail.LogEvent(ctx, storage.AuditEvent{
		EventType: audit.EventTransactionFailed,
		EntityID:  req.PurchaserID,
		ActorID:   req.ActorID,
		Source:    req.Source,
		Severity:  audit.SeverityError,
		Details:   details,
	})
	return outcome
}

func (c *Coordinator) eventDetails(ctx context.Context, outcome Outcome, req Request) map[string]any {
	details := map[string]any{
		"transaction_id": outcome.TransactionID,
		"total":          outcome.Total,
		"items":          len(req.LineItems),
	}
	if len(outcome.CreatedIDs) > 0 {
		created := make([]any, 0, len(outcome.CreatedIDs))
		for _, realID := range outcome.CreatedIDs {
			created = append(created, realID)
		}
		details["created"] = created
	}
	if len(outcome.Warnings) > 0 {
		warnings := make([]any, 0, len(outcome.Warnings))
		for _, warning := range outcome.Warnings {
			warnings = append(warnings, fmt.Sprintf("%s overwritten by fragment %d", warning.Path, warning.PlanIndex))
		}
		details["warnings"] = warnings
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		details["trace_id"] = sc.TraceID().String()
		details["span_id"] = sc.SpanID().String()
	}
	return details
}

// placementFragments attaches created top-level entities to the purchaser:
// characters carry a manifest reference, everything else parks the new
// entity at the shared dock.
func placementFragments(purchaser entity.Entity, compiled plan.Plan) []plan.Plan {
	var fragments []plan.Plan
	for _, specs := range compiled.Create {
		for _, spec := range specs {
			if purchaser.Kind == entity.KindCharacter {
				fragments = append(fragments, plan.AddSubEntities(ManifestCollection, plan.SubEntitySpec{
					Type: "entity_ref",
					Data: map[string]any{"entity_ref": plan.TempRef(spec.TemporaryID)},
				}))
				continue
			}
			fragments = append(fragments, plan.SetFields(map[string]any{
				plan.TempPath(spec.TemporaryID, entity.NamespaceSystem+".location"): SharedDockLocation,
			}))
		}
	}
	return fragments
}
