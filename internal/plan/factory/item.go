package factory

import (
	"context"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/ledger"
	"github.com/emberwake/warden/internal/plan"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

// ItemsCollection is the owned collection that holds simple purchased items.
const ItemsCollection = "items"

// ItemFactory compiles simple items into sub-entity additions on the
// purchaser's items collection. Quantity N yields N sub-entities.
type ItemFactory struct{}

func (ItemFactory) Kind() string { return "item" }

func (ItemFactory) Compile(_ context.Context, _ entity.Entity, item ledger.LineItem) (plan.Plan, error) {
	name, _ := item.Spec["name"].(string)
	if name == "" {
		return plan.Plan{}, apperrors.New(apperrors.CodeFactoryCompilationError, "item spec requires a name")
	}

	quantity := item.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	specs := make([]plan.SubEntitySpec, 0, quantity)
	for i := 0; i < quantity; i++ {
		data := map[string]any{"name": name, "cost": item.Cost}
		for key, value := range item.Spec {
			if key == "name" {
				continue
			}
			data[key] = value
		}
		specs = append(specs, plan.SubEntitySpec{Type: "item", Data: data})
	}
	return plan.AddSubEntities(ItemsCollection, specs...), nil
}
