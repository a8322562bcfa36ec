package plan

import (
	"testing"

	"github.com/emberwake/warden/internal/entity"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

func TestPlanIsEmpty(t *testing.T) {
	if !(Plan{}).IsEmpty() {
		t.Fatal("zero plan should be empty")
	}
	if (Plan{Set: map[string]any{"system.credits": 1}}).IsEmpty() {
		t.Fatal("plan with a set entry should not be empty")
	}
	if (Plan{Delete: map[string][]string{"items": {"a"}}}).IsEmpty() {
		t.Fatal("plan with a delete entry should not be empty")
	}
}

func TestPlanValidate(t *testing.T) {
	cases := []struct {
		name string
		plan Plan
		code apperrors.Code
	}{
		{
			name: "valid set and add",
			plan: Plan{
				Set: map[string]any{"system.credits": 100},
				Add: map[string][]SubEntitySpec{"items": {{Type: "item"}}},
			},
		},
		{
			name: "temp target path checked against the created kind",
			plan: Plan{
				Set: map[string]any{TempPath("t1", "system.registration"): "WRD-1"},
				Create: map[entity.Kind][]CreateSpec{
					entity.KindVehicle: {{TemporaryID: "t1", Kind: entity.KindVehicle}},
				},
			},
		},
		{
			name: "temp target path with bad namespace",
			plan: Plan{
				Set: map[string]any{TempPath("t1", "forbidden.path"): 1},
				Create: map[entity.Kind][]CreateSpec{
					entity.KindVehicle: {{TemporaryID: "t1", Kind: entity.KindVehicle}},
				},
			},
			code: apperrors.CodePlanUnknownNamespace,
		},
		{
			name: "temp target path without a create spec defers to apply",
			plan: Plan{Set: map[string]any{TempPath("t1", "forbidden.path"): 1}},
		},
		{
			name: "create fields with bad namespace",
			plan: Plan{Create: map[entity.Kind][]CreateSpec{
				entity.KindVehicle: {{
					TemporaryID: "t1",
					Kind:        entity.KindVehicle,
					Fields:      map[string]any{"model": "skiff-mk2"},
				}},
			}},
			code: apperrors.CodePlanUnknownNamespace,
		},
		{
			name: "bad namespace",
			plan: Plan{Set: map[string]any{"secrets.stash": 1}},
			code: apperrors.CodePlanUnknownNamespace,
		},
		{
			name: "empty collection name",
			plan: Plan{Add: map[string][]SubEntitySpec{"": {{Type: "item"}}}},
			code: apperrors.CodePlanEmptyCollection,
		},
		{
			name: "create without temp id",
			plan: Plan{Create: map[entity.Kind][]CreateSpec{
				entity.KindVehicle: {{Kind: entity.KindVehicle}},
			}},
			code: apperrors.CodePlanEmptyTemporaryID,
		},
		{
			name: "duplicate temp ids",
			plan: Plan{Create: map[entity.Kind][]CreateSpec{
				entity.KindVehicle: {
					{TemporaryID: "t1", Kind: entity.KindVehicle},
					{TemporaryID: "t1", Kind: entity.KindVehicle},
				},
			}},
			code: apperrors.CodePlanDuplicateTempID,
		},
		{
			name: "create with invalid kind",
			plan: Plan{Create: map[entity.Kind][]CreateSpec{
				entity.Kind("ghost"): {{TemporaryID: "t1", Kind: entity.Kind("ghost")}},
			}},
			code: apperrors.CodeEntityInvalidKind,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.plan.Validate(entity.KindCharacter)
			if tc.code == "" {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}
			if !apperrors.IsCode(err, tc.code) {
				t.Fatalf("expected code %s, got %v", tc.code, err)
			}
		})
	}
}

func TestPlanCloneIsDeep(t *testing.T) {
	original := Plan{
		Set: map[string]any{"system.credits": 100},
		Add: map[string][]SubEntitySpec{"items": {{Type: "item", Data: map[string]any{"name": "rope"}}}},
	}
	cloned := original.Clone()
	cloned.Set["system.credits"] = 0
	cloned.Add["items"][0].Data["name"] = "wire"

	if original.Set["system.credits"] != 100 {
		t.Fatal("set mutation leaked into original")
	}
	if original.Add["items"][0].Data["name"] != "rope" {
		t.Fatal("add data mutation leaked into original")
	}
}

func TestTempRefs(t *testing.T) {
	ref := TempRef("abc")
	if !IsTempRef(ref) {
		t.Fatalf("expected %q to be a temp ref", ref)
	}
	if IsTempRef("abc") {
		t.Fatal("plain id should not read as a temp ref")
	}
	if got := TempID(ref); got != "abc" {
		t.Fatalf("expected temp id abc, got %q", got)
	}

	path := TempPath("abc", "system.location")
	tempID, fieldPath, ok := SplitTempPath(path)
	if !ok || tempID != "abc" || fieldPath != "system.location" {
		t.Fatalf("unexpected split: %q %q %v", tempID, fieldPath, ok)
	}
	if _, _, ok := SplitTempPath("system.credits"); ok {
		t.Fatal("plain path should not split as temp path")
	}
}
