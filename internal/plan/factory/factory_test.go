package factory

import (
	"context"
	"testing"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/ledger"
	"github.com/emberwake/warden/internal/plan"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

func testPurchaser() entity.Entity {
	return entity.Entity{
		ID:   "char-1",
		Kind: entity.KindCharacter,
		Name: "Vex",
		Fields: map[string]any{
			"system": map[string]any{"credits": 500.0},
		},
	}
}

func TestItemFactoryCompilesQuantity(t *testing.T) {
	compiled, err := ItemFactory{}.Compile(context.Background(), testPurchaser(), ledger.LineItem{
		Kind:     "item",
		Cost:     25,
		Quantity: 3,
		Spec:     map[string]any{"name": "Medkit", "grade": "military"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	specs := compiled.Add[ItemsCollection]
	if len(specs) != 3 {
		t.Fatalf("expected 3 sub-entity specs, got %d", len(specs))
	}
	for _, spec := range specs {
		if spec.Type != "item" {
			t.Fatalf("expected type item, got %q", spec.Type)
		}
		if spec.Data["name"] != "Medkit" || spec.Data["cost"] != 25.0 {
			t.Fatalf("expected name and cost in data, got %v", spec.Data)
		}
		if spec.Data["grade"] != "military" {
			t.Fatalf("expected extra spec keys carried over, got %v", spec.Data)
		}
	}
}

func TestItemFactoryDefaultsQuantityToOne(t *testing.T) {
	compiled, err := ItemFactory{}.Compile(context.Background(), testPurchaser(), ledger.LineItem{
		Kind: "item",
		Cost: 10,
		Spec: map[string]any{"name": "Flare"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := len(compiled.Add[ItemsCollection]); got != 1 {
		t.Fatalf("expected one spec, got %d", got)
	}
}

func TestItemFactoryRequiresName(t *testing.T) {
	_, err := ItemFactory{}.Compile(context.Background(), testPurchaser(), ledger.LineItem{
		Kind: "item",
		Cost: 10,
	})
	if !apperrors.IsCode(err, apperrors.CodeFactoryCompilationError) {
		t.Fatalf("expected compilation error, got %v", err)
	}
}

func TestVehicleFactoryCompilesCreate(t *testing.T) {
	f := VehicleFactory{TempIDs: func() (string, error) { return "veh-temp-0001", nil }}
	compiled, err := f.Compile(context.Background(), testPurchaser(), ledger.LineItem{
		Kind: "vehicle",
		Cost: 100,
		Spec: map[string]any{"model": "Skiff", "hull": 12.0, "cargo_capacity": 4.0},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	specs := compiled.Create[entity.KindVehicle]
	if len(specs) != 1 {
		t.Fatalf("expected one create spec, got %d", len(specs))
	}
	spec := specs[0]
	if spec.TemporaryID != "veh-temp-0001" {
		t.Fatalf("expected temp id, got %q", spec.TemporaryID)
	}
	if spec.Name != "Skiff" {
		t.Fatalf("expected name to default to model, got %q", spec.Name)
	}
	model, _ := entity.GetField(spec.Fields, "system.model")
	owner, _ := entity.GetField(spec.Fields, "system.owner_id")
	if model != "Skiff" || owner != "char-1" {
		t.Fatalf("unexpected fields %v", spec.Fields)
	}
	hull, _ := entity.GetField(spec.Fields, "system.hull")
	cargo, _ := entity.GetField(spec.Fields, "system.cargo_capacity")
	if hull != 12.0 || cargo != 4.0 {
		t.Fatalf("expected numeric spec fields carried over, got %v", spec.Fields)
	}

	reg, ok := compiled.Set[plan.TempPath("veh-temp-0001", "system.registration")]
	if !ok || reg != "WRD-veh-temp" {
		t.Fatalf("expected registration stamp, got %v", compiled.Set)
	}
}

func TestVehicleFactoryRequiresModel(t *testing.T) {
	_, err := VehicleFactory{}.Compile(context.Background(), testPurchaser(), ledger.LineItem{
		Kind: "vehicle",
		Cost: 100,
		Spec: map[string]any{"name": "Nameless"},
	})
	if !apperrors.IsCode(err, apperrors.CodeFactoryCompilationError) {
		t.Fatalf("expected compilation error, got %v", err)
	}
}

func TestRegistryUnknownKind(t *testing.T) {
	registry := NewRegistry(ItemFactory{})
	_, err := registry.Compile(context.Background(), testPurchaser(), ledger.LineItem{Kind: "starbase"})
	if !apperrors.IsCode(err, apperrors.CodeFactoryUnknownItemKind) {
		t.Fatalf("expected unknown kind, got %v", err)
	}
}

func TestRegistryWrapsFactoryFailure(t *testing.T) {
	registry := NewRegistry(ItemFactory{})
	_, err := registry.Compile(context.Background(), testPurchaser(), ledger.LineItem{Kind: "item"})
	if !apperrors.IsCode(err, apperrors.CodeFactoryCompilationError) {
		t.Fatalf("expected compilation error, got %v", err)
	}
}

func TestRegistryLaterFactoryWins(t *testing.T) {
	first := VehicleFactory{TempIDs: func() (string, error) { return "first-temp-01", nil }}
	second := VehicleFactory{TempIDs: func() (string, error) { return "second-temp-1", nil }}
	registry := NewRegistry(first, second)

	compiled, err := registry.Compile(context.Background(), testPurchaser(), ledger.LineItem{
		Kind: "vehicle",
		Spec: map[string]any{"model": "Skiff"},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if got := compiled.Create[entity.KindVehicle][0].TemporaryID; got != "second-temp-1" {
		t.Fatalf("expected the later registration to win, got %q", got)
	}
}
