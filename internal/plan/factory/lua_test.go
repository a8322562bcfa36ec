package factory

import (
	"context"
	"testing"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/ledger"
)

const fuelScript = `
function compile(purchaser, item)
  local adds = {}
  for i = 1, item.quantity do
    adds[i] = { type = "fuel_cell", data = { name = item.spec.name, cost = item.cost } }
  end
  return {
    set = { ["system.cargo.fuel"] = item.spec.units },
    add = { cargo = adds },
  }
end
`

func TestLuaFactoryCompilesScript(t *testing.T) {
	f := NewLuaFactory("fuel", fuelScript)
	compiled, err := f.Compile(context.Background(), testPurchaser(), ledger.LineItem{
		Kind:     "fuel",
		Cost:     25,
		Quantity: 2,
		Spec:     map[string]any{"name": "Fuel Cell", "units": 40.0},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	// Integral Lua numbers come back as ints.
	if got := compiled.Set["system.cargo.fuel"]; got != 40 {
		t.Fatalf("expected fuel 40, got %v (%T)", got, got)
	}
	specs := compiled.Add["cargo"]
	if len(specs) != 2 {
		t.Fatalf("expected 2 cargo specs, got %d", len(specs))
	}
	for _, spec := range specs {
		if spec.Type != "fuel_cell" {
			t.Fatalf("expected fuel_cell type, got %q", spec.Type)
		}
		if spec.Data["name"] != "Fuel Cell" || spec.Data["cost"] != 25 {
			t.Fatalf("unexpected data %v", spec.Data)
		}
	}
}

func TestLuaFactoryDecodesDeleteAndCreate(t *testing.T) {
	const script = `
function compile(purchaser, item)
  return {
    delete = { cargo = { "sub-1", "sub-2" } },
    create = {
      { temporary_id = "tmp-vehicle-1", kind = "vehicle", name = "Skiff",
        fields = { system = { model = "Skiff", owner_id = purchaser.id } } },
    },
  }
end
`
	compiled, err := NewLuaFactory("trade", script).Compile(context.Background(), testPurchaser(), ledger.LineItem{Kind: "trade"})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if got := compiled.Delete["cargo"]; len(got) != 2 || got[0] != "sub-1" || got[1] != "sub-2" {
		t.Fatalf("unexpected delete bucket %v", compiled.Delete)
	}
	specs := compiled.Create[entity.KindVehicle]
	if len(specs) != 1 {
		t.Fatalf("expected one create spec, got %v", compiled.Create)
	}
	owner, _ := entity.GetField(specs[0].Fields, "system.owner_id")
	if specs[0].TemporaryID != "tmp-vehicle-1" || owner != "char-1" {
		t.Fatalf("unexpected create spec %+v", specs[0])
	}
}

func TestLuaFactoryRequiresCompileFunction(t *testing.T) {
	_, err := NewLuaFactory("fuel", `x = 1`).Compile(context.Background(), testPurchaser(), ledger.LineItem{Kind: "fuel"})
	if err == nil {
		t.Fatal("expected an error for a script without compile()")
	}
}

func TestLuaFactoryRejectsNonTableReturn(t *testing.T) {
	_, err := NewLuaFactory("fuel", `function compile(p, i) return 42 end`).
		Compile(context.Background(), testPurchaser(), ledger.LineItem{Kind: "fuel"})
	if err == nil {
		t.Fatal("expected an error for a non-table return")
	}
}

func TestLuaFactoryRejectsBrokenScript(t *testing.T) {
	_, err := NewLuaFactory("fuel", `function compile(`).Compile(context.Background(), testPurchaser(), ledger.LineItem{Kind: "fuel"})
	if err == nil {
		t.Fatal("expected a load error")
	}
}
