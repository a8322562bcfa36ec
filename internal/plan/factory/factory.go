// Package factory compiles priced line items into mutation plans.
//
// A factory is a pure translator: it inspects the purchaser and the line
// item's construction spec and emits the plan fragments that would place the
// purchased thing, without touching the store or spending credits. The
// transaction coordinator merges factory output with the credit delta and
// applies everything as one governed write.
package factory

import (
	"context"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/ledger"
	"github.com/emberwake/warden/internal/plan"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

// ErrUnknownItemKind indicates a line item kind with no registered factory.
var ErrUnknownItemKind = apperrors.New(apperrors.CodeFactoryUnknownItemKind, "no factory registered for item kind")

// Factory compiles one line item kind into a plan fragment.
type Factory interface {
	// Kind is the line item kind this factory handles.
	Kind() string
	// Compile translates an item into the plan fragment that materializes
	// it for the purchaser. Compile must not mutate anything.
	Compile(ctx context.Context, purchaser entity.Entity, item ledger.LineItem) (plan.Plan, error)
}

// Registry maps line item kinds to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry builds a registry from the given factories. A later factory
// with the same kind replaces an earlier one.
func NewRegistry(factories ...Factory) *Registry {
	r := &Registry{factories: make(map[string]Factory, len(factories))}
	for _, f := range factories {
		r.factories[f.Kind()] = f
	}
	return r
}

// Register adds or replaces a factory.
func (r *Registry) Register(f Factory) {
	r.factories[f.Kind()] = f
}

// Compile dispatches an item to its factory.
func (r *Registry) Compile(ctx context.Context, purchaser entity.Entity, item ledger.LineItem) (plan.Plan, error) {
	f, ok := r.factories[item.Kind]
	if !ok {
		return plan.Plan{}, apperrors.WithMetadata(apperrors.CodeFactoryUnknownItemKind,
			"no factory registered for item kind", map[string]string{"kind": item.Kind})
	}
	compiled, err := f.Compile(ctx, purchaser, item)
	if err != nil {
		return plan.Plan{}, apperrors.Wrap(apperrors.CodeFactoryCompilationError, "factory compilation failed", err)
	}
	return compiled, nil
}
