package factory

import (
	"context"
	"fmt"
	"math"

	"github.com/Shopify/go-lua"
	"github.com/emberwake/warden/internal/entity"
	"github.com/emberwake/warden/internal/ledger"
	"github.com/emberwake/warden/internal/plan"
)

// LuaFactory compiles line items through an operator-supplied Lua script.
//
// The script must define a global function
//
//	function compile(purchaser, item)
//
// that returns a table with optional "set", "add", "delete" and "create"
// buckets mirroring the plan shape:
//
//	return {
//	  set = { ["system.cargo.fuel"] = 20 },
//	  add = { items = { { type = "item", data = { name = "fuel cell" } } } },
//	}
//
// Each Compile runs in a fresh interpreter state, so scripts cannot carry
// state between purchases or observe other transactions.
type LuaFactory struct {
	kind   string
	source string
}

// NewLuaFactory wraps a script as a factory for the given item kind.
func NewLuaFactory(kind, source string) *LuaFactory {
	return &LuaFactory{kind: kind, source: source}
}

func (f *LuaFactory) Kind() string { return f.kind }

func (f *LuaFactory) Compile(_ context.Context, purchaser entity.Entity, item ledger.LineItem) (plan.Plan, error) {
	state := lua.NewState()
	lua.OpenLibraries(state)

	if err := lua.LoadString(state, f.source); err != nil {
		return plan.Plan{}, fmt.Errorf("load script: %w", err)
	}
	if err := state.ProtectedCall(0, 0, 0); err != nil {
		return plan.Plan{}, fmt.Errorf("run script: %w", err)
	}

	state.Global("compile")
	if state.TypeOf(-1) != lua.TypeFunction {
		state.Pop(1)
		return plan.Plan{}, fmt.Errorf("script must define compile(purchaser, item)")
	}

	pushMap(state, map[string]any{
		"id":      purchaser.ID,
		"kind":    string(purchaser.Kind),
		"name":    purchaser.Name,
		"fields":  purchaser.Fields,
		"credits": creditsOf(purchaser),
	})
	pushMap(state, map[string]any{
		"kind":     item.Kind,
		"cost":     item.Cost,
		"quantity": item.Quantity,
		"spec":     item.Spec,
	})
	if err := state.ProtectedCall(2, 1, 0); err != nil {
		return plan.Plan{}, fmt.Errorf("compile: %w", err)
	}

	if state.TypeOf(-1) != lua.TypeTable {
		state.Pop(1)
		return plan.Plan{}, fmt.Errorf("compile must return a table")
	}
	output := tableToMap(state, -1)
	state.Pop(1)

	return planFromTable(output)
}

func creditsOf(e entity.Entity) float64 {
	credits, _ := entity.NumberField(e.Fields, entity.CreditsPath)
	return credits
}

// planFromTable decodes the Lua return shape into a plan.
func planFromTable(output map[string]any) (plan.Plan, error) {
	var p plan.Plan

	if set, ok := output["set"].(map[string]any); ok && len(set) > 0 {
		p.Set = set
	}

	if add, ok := output["add"].(map[string]any); ok {
		for collection, raw := range add {
			entries, ok := raw.([]any)
			if !ok {
				return plan.Plan{}, fmt.Errorf("add.%s must be an array", collection)
			}
			for _, entry := range entries {
				table, ok := entry.(map[string]any)
				if !ok {
					return plan.Plan{}, fmt.Errorf("add.%s entries must be tables", collection)
				}
				spec := plan.SubEntitySpec{}
				spec.Type, _ = table["type"].(string)
				spec.Data, _ = table["data"].(map[string]any)
				if p.Add == nil {
					p.Add = map[string][]plan.SubEntitySpec{}
				}
				p.Add[collection] = append(p.Add[collection], spec)
			}
		}
	}

	if del, ok := output["delete"].(map[string]any); ok {
		for collection, raw := range del {
			entries, ok := raw.([]any)
			if !ok {
				return plan.Plan{}, fmt.Errorf("delete.%s must be an array", collection)
			}
			for _, entry := range entries {
				subID, ok := entry.(string)
				if !ok {
					return plan.Plan{}, fmt.Errorf("delete.%s entries must be strings", collection)
				}
				if p.Delete == nil {
					p.Delete = map[string][]string{}
				}
				p.Delete[collection] = append(p.Delete[collection], subID)
			}
		}
	}

	if create, ok := output["create"].([]any); ok {
		for _, entry := range create {
			table, ok := entry.(map[string]any)
			if !ok {
				return plan.Plan{}, fmt.Errorf("create entries must be tables")
			}
			spec := plan.CreateSpec{}
			spec.TemporaryID, _ = table["temporary_id"].(string)
			if kind, ok := table["kind"].(string); ok {
				spec.Kind = entity.Kind(kind)
			}
			spec.Name, _ = table["name"].(string)
			spec.Fields, _ = table["fields"].(map[string]any)
			if p.Create == nil {
				p.Create = map[entity.Kind][]plan.CreateSpec{}
			}
			p.Create[spec.Kind] = append(p.Create[spec.Kind], spec)
		}
	}

	return p, nil
}

func pushMap(state *lua.State, values map[string]any) {
	state.NewTable()
	for key, value := range values {
		pushValue(state, value)
		state.SetField(-2, key)
	}
}

func pushValue(state *lua.State, value any) {
	switch v := value.(type) {
	case nil:
		state.PushNil()
	case string:
		state.PushString(v)
	case bool:
		state.PushBoolean(v)
	case int:
		state.PushInteger(v)
	case float64:
		state.PushNumber(v)
	case map[string]any:
		pushMap(state, v)
	case []any:
		state.NewTable()
		for i, element := range v {
			pushValue(state, element)
			state.RawSetInt(-2, i+1)
		}
	default:
		state.PushString(fmt.Sprintf("%v", v))
	}
}

func tableToMap(state *lua.State, index int) map[string]any {
	output := map[string]any{}
	if state.TypeOf(index) != lua.TypeTable {
		return output
	}

	index = state.AbsIndex(index)
	state.PushNil()
	for state.Next(index) {
		if state.TypeOf(-2) == lua.TypeString {
			key, _ := state.ToString(-2)
			output[key] = luaToGo(state, -1)
		}
		state.Pop(1)
	}
	return output
}

func luaToGo(state *lua.State, index int) any {
	switch state.TypeOf(index) {
	case lua.TypeString:
		value, _ := state.ToString(index)
		return value
	case lua.TypeNumber:
		value, _ := state.ToNumber(index)
		return normalizeNumber(value)
	case lua.TypeBoolean:
		return state.ToBoolean(index)
	case lua.TypeTable:
		return tableToGo(state, index)
	default:
		return nil
	}
}

func tableToGo(state *lua.State, index int) any {
	if state.TypeOf(index) != lua.TypeTable {
		return nil
	}

	index = state.AbsIndex(index)
	isArray := true
	maxIndex := 0
	count := 0
	state.PushNil()
	for state.Next(index) {
		if isArray {
			if state.TypeOf(-2) != lua.TypeNumber {
				isArray = false
			} else if idx, ok := state.ToInteger(-2); ok && idx > 0 {
				count++
				if idx > maxIndex {
					maxIndex = idx
				}
			} else {
				isArray = false
			}
		}
		state.Pop(1)
	}

	if isArray && count > 0 && maxIndex == count {
		result := make([]any, 0, maxIndex)
		for i := 1; i <= maxIndex; i++ {
			state.RawGetInt(index, i)
			result = append(result, luaToGo(state, -1))
			state.Pop(1)
		}
		return result
	}

	return tableToMap(state, index)
}

func normalizeNumber(value float64) any {
	if math.Mod(value, 1) == 0 && !math.IsInf(value, 0) {
		return int(value)
	}
	return value
}
