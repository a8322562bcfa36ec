package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/plan"
	"github.com/emberwake/warden/internal/storage"
)

func seedStore(t *testing.T) *Store {
	t.Helper()
	store := New()
	store.Seed(entity.Entity{
		ID:   "char-1",
		Kind: entity.KindCharacter,
		Name: "Vex",
		Fields: map[string]any{
			"system": map[string]any{"credits": 500.0},
		},
	})
	return store
}

func TestGetEntityReturnsDeepCopy(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	first, err := store.GetEntity(ctx, "char-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	first.Fields["system"].(map[string]any)["credits"] = 0.0

	second, _ := store.GetEntity(ctx, "char-1")
	if credits, _ := entity.NumberField(second.Fields, "system.credits"); credits != 500 {
		t.Fatalf("expected stored state isolated from caller mutation, got %v", credits)
	}
}

func TestGetEntityNotFound(t *testing.T) {
	store := New()
	if _, err := store.GetEntity(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetEntityFieldsNested(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	err := store.SetEntityFields(ctx, "char-1", map[string]any{
		"system.credits":    250.0,
		"system.cargo.fuel": 40.0,
	})
	if err != nil {
		t.Fatalf("set fields: %v", err)
	}

	e, _ := store.GetEntity(ctx, "char-1")
	if credits, _ := entity.NumberField(e.Fields, "system.credits"); credits != 250 {
		t.Fatalf("expected credits 250, got %v", credits)
	}
	if fuel, _ := entity.NumberField(e.Fields, "system.cargo.fuel"); fuel != 40 {
		t.Fatalf("expected fuel 40, got %v", fuel)
	}
}

func TestSubEntityLifecycleMaintainsDerivedCounts(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	ids, err := store.CreateSubEntities(ctx, "char-1", "items", []plan.SubEntitySpec{
		{Type: "item", Data: map[string]any{"name": "Medkit"}},
		{Type: "item", Data: map[string]any{"name": "Flare"}},
	})
	if err != nil {
		t.Fatalf("create subs: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %v", ids)
	}

	e, _ := store.GetEntity(ctx, "char-1")
	if count, _ := entity.NumberField(e.Fields, "derived.items_count"); count != 2 {
		t.Fatalf("expected derived count 2, got %v", count)
	}

	if err := store.DeleteSubEntities(ctx, "char-1", "items", ids[:1]); err != nil {
		t.Fatalf("delete subs: %v", err)
	}
	e, _ = store.GetEntity(ctx, "char-1")
	if count, _ := entity.NumberField(e.Fields, "derived.items_count"); count != 1 {
		t.Fatalf("expected derived count 1, got %v", count)
	}
	if got := e.SubEntityIDs("items"); len(got) != 1 || got[0] != ids[1] {
		t.Fatalf("expected only the second item retained, got %v", got)
	}
}

func TestRecalcSuppression(t *testing.T) {
	store := seedStore(t)
	ctx := storage.WithRecalcSuppressed(context.Background())

	_, err := store.CreateSubEntities(ctx, "char-1", "items", []plan.SubEntitySpec{
		{Type: "item", Data: map[string]any{"name": "Medkit"}},
	})
	if err != nil {
		t.Fatalf("create subs: %v", err)
	}

	e, _ := store.GetEntity(context.Background(), "char-1")
	if _, ok := entity.NumberField(e.Fields, "derived.items_count"); ok {
		t.Fatal("expected no derived count while suppressed")
	}

	if err := store.RecalculateEntity(context.Background(), "char-1"); err != nil {
		t.Fatalf("recalculate: %v", err)
	}
	e, _ = store.GetEntity(context.Background(), "char-1")
	if count, _ := entity.NumberField(e.Fields, "derived.items_count"); count != 1 {
		t.Fatalf("expected derived count 1 after explicit recalc, got %v", count)
	}
}

func TestCreateEntityValidatesKind(t *testing.T) {
	store := New()
	if _, err := store.CreateEntity(context.Background(), plan.CreateSpec{Kind: "asteroid"}); !errors.Is(err, entity.ErrInvalidKind) {
		t.Fatalf("expected invalid kind, got %v", err)
	}

	id, err := store.CreateEntity(context.Background(), plan.CreateSpec{
		Kind:   entity.KindVehicle,
		Name:   "Skiff",
		Fields: map[string]any{"system": map[string]any{"model": "Skiff"}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	e, err := store.GetEntity(context.Background(), id)
	if err != nil {
		t.Fatalf("get created: %v", err)
	}
	if e.Kind != entity.KindVehicle || e.Name != "Skiff" {
		t.Fatalf("unexpected created entity %+v", e)
	}
	if e.CreatedAt.IsZero() || e.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps assigned")
	}
}

func TestRestoreEntityReplacesState(t *testing.T) {
	store := seedStore(t)
	ctx := context.Background()

	snap, err := storage.TakeSnapshot(ctx, store, "char-1", "test:restore", store.clock())
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	if err := store.SetEntityFields(ctx, "char-1", map[string]any{"system.credits": 0.0}); err != nil {
		t.Fatalf("set fields: %v", err)
	}
	if _, err := store.CreateSubEntities(ctx, "char-1", "items", []plan.SubEntitySpec{{Type: "item"}}); err != nil {
		t.Fatalf("create subs: %v", err)
	}

	if err := store.RestoreEntity(ctx, snap); err != nil {
		t.Fatalf("restore: %v", err)
	}

	e, _ := store.GetEntity(ctx, "char-1")
	if credits, _ := entity.NumberField(e.Fields, "system.credits"); credits != 500 {
		t.Fatalf("expected restored credits 500, got %v", credits)
	}
	if len(e.Collections["items"]) != 0 {
		t.Fatalf("expected restored collections, got %v", e.Collections)
	}
}

func TestMutateRawBypassesBookkeeping(t *testing.T) {
	store := seedStore(t)

	err := store.MutateRaw("char-1", func(e *entity.Entity) {
		e.Fields = entity.SetField(e.Fields, "system.credits", 9999.0)
	})
	if err != nil {
		t.Fatalf("mutate raw: %v", err)
	}

	e, _ := store.GetEntity(context.Background(), "char-1")
	if credits, _ := entity.NumberField(e.Fields, "system.credits"); credits != 9999 {
		t.Fatalf("expected raw write visible, got %v", credits)
	}
}
