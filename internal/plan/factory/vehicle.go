package factory

import (
	"context"
	"fmt"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/ledger"
	"github.com/emberwake/warden/internal/plan"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
	"github.com/emberwake/warden/internal/platform/id"
)

// VehicleFactory compiles vehicle purchases into top-level entity creation.
// The created vehicle is addressed by a temporary id so the coordinator's
// placement fragments (registration fields, ownership links) can target it
// before the store assigns a real id.
type VehicleFactory struct {
	// TempIDs generates temporary ids; defaults to the platform generator.
	TempIDs func() (string, error)
}

func (VehicleFactory) Kind() string { return "vehicle" }

func (f VehicleFactory) Compile(_ context.Context, purchaser entity.Entity, item ledger.LineItem) (plan.Plan, error) {
	model, _ := item.Spec["model"].(string)
	if model == "" {
		return plan.Plan{}, apperrors.New(apperrors.CodeFactoryCompilationError, "vehicle spec requires a model")
	}
	name, _ := item.Spec["name"].(string)
	if name == "" {
		name = model
	}

	generate := f.TempIDs
	if generate == nil {
		generate = id.NewID
	}
	tempID, err := generate()
	if err != nil {
		return plan.Plan{}, err
	}

	system := map[string]any{
		"model":    model,
		"owner_id": purchaser.ID,
	}
	if hull, ok := entity.NumberField(item.Spec, "hull"); ok {
		system["hull"] = hull
	}
	if cargo, ok := entity.NumberField(item.Spec, "cargo_capacity"); ok {
		system["cargo_capacity"] = cargo
	}

	compiled := plan.CreateEntities(plan.CreateSpec{
		TemporaryID: tempID,
		Kind:        entity.KindVehicle,
		Name:        name,
		Fields:      map[string]any{entity.NamespaceSystem: system},
	})
	// Stamp the registration on the vehicle itself once it exists.
	compiled.Set = map[string]any{
		plan.TempPath(tempID, entity.NamespaceSystem+".registration"): fmt.Sprintf("WRD-%s", tempID[:8]),
	}
	return compiled, nil
}
