package plan

import (
	"reflect"
	"testing"

	"github.com/emberwake/warden/internal/entity"
)

func TestMergeLastWriterWins(t *testing.T) {
	merged := Merge([]Plan{
		SetFields(map[string]any{"system.credits": 100, "system.fuel": 10}),
		SetFields(map[string]any{"system.credits": 50}),
	})

	if merged.Set["system.credits"] != 50 {
		t.Fatalf("expected later plan to win, got %v", merged.Set["system.credits"])
	}
	if merged.Set["system.fuel"] != 10 {
		t.Fatalf("expected non-conflicting path to survive, got %v", merged.Set["system.fuel"])
	}
	if len(merged.Warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(merged.Warnings))
	}
	warning := merged.Warnings[0]
	if warning.Path != "system.credits" || warning.Overwritten != 100 || warning.Kept != 50 || warning.PlanIndex != 1 {
		t.Fatalf("unexpected warning: %+v", warning)
	}
}

func TestMergeConcatenatesOtherBuckets(t *testing.T) {
	merged := Merge([]Plan{
		AddSubEntities("items", SubEntitySpec{Type: "item", Data: map[string]any{"name": "rope"}}),
		AddSubEntities("items", SubEntitySpec{Type: "item", Data: map[string]any{"name": "torch"}}),
		DeleteSubEntities("items", "old1"),
		DeleteSubEntities("items", "old2"),
		CreateEntities(CreateSpec{TemporaryID: "t1", Kind: entity.KindVehicle, Name: "Skiff"}),
	})

	if got := len(merged.Add["items"]); got != 2 {
		t.Fatalf("expected 2 adds, got %d", got)
	}
	if merged.Add["items"][0].Data["name"] != "rope" || merged.Add["items"][1].Data["name"] != "torch" {
		t.Fatalf("adds out of order: %+v", merged.Add["items"])
	}
	if !reflect.DeepEqual(merged.Delete["items"], []string{"old1", "old2"}) {
		t.Fatalf("deletes out of order: %v", merged.Delete["items"])
	}
	if got := len(merged.Create[entity.KindVehicle]); got != 1 {
		t.Fatalf("expected 1 create, got %d", got)
	}
	if len(merged.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %+v", merged.Warnings)
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	plans := []Plan{
		SetFields(map[string]any{"system.a": 1, "system.b": 1, "system.c": 1}),
		SetFields(map[string]any{"system.c": 2, "system.a": 2}),
		SetFields(map[string]any{"system.b": 3, "system.a": 3}),
	}

	first := Merge(plans)
	for i := 0; i < 20; i++ {
		again := Merge(plans)
		if !reflect.DeepEqual(first.Set, again.Set) {
			t.Fatalf("set bucket differs between runs: %v vs %v", first.Set, again.Set)
		}
		if !reflect.DeepEqual(first.Warnings, again.Warnings) {
			t.Fatalf("warnings differ between runs: %+v vs %+v", first.Warnings, again.Warnings)
		}
	}
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	base := SetFields(map[string]any{"system.credits": 100})
	other := AddSubEntities("items", SubEntitySpec{Type: "item", Data: map[string]any{"name": "rope"}})

	merged := Merge([]Plan{base, other})
	merged.Set["system.credits"] = 0
	merged.Add["items"][0].Data["name"] = "wire"

	if base.Set["system.credits"] != 100 {
		t.Fatal("merge aliased the set bucket of an input plan")
	}
	if other.Add["items"][0].Data["name"] != "rope" {
		t.Fatal("merge aliased sub-entity data of an input plan")
	}
}
