package entity

import (
	"time"

	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

// Kind identifies the type of a top-level entity.
type Kind string

const (
	// KindCharacter is a player- or GM-controlled character.
	KindCharacter Kind = "character"
	// KindVehicle is a pilotable vehicle, usually created as part of a purchase.
	KindVehicle Kind = "vehicle"
	// KindLocation is a shared scene or dock that placed entities attach to.
	KindLocation Kind = "location"
)

var (
	// ErrEmptyID indicates a missing entity id.
	ErrEmptyID = apperrors.New(apperrors.CodeEntityEmptyID, "entity id is required")
	// ErrInvalidKind indicates an unrecognized entity kind.
	ErrInvalidKind = apperrors.New(apperrors.CodeEntityInvalidKind, "invalid entity kind")
)

// Valid reports whether the kind is one of the known entity kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindCharacter, KindVehicle, KindLocation:
		return true
	}
	return false
}

// SubEntity is an embedded document owned by exactly one entity.
type SubEntity struct {
	// ID is the sub-entity identifier, unique within the owning collection.
	ID string
	// Type classifies the sub-entity (e.g. "weapon", "cargo").
	Type string
	// Data holds the sub-entity payload.
	Data map[string]any
}

// Entity is an addressable persistent document with scalar fields, owned
// sub-entity collections, and a namespaced flags bag.
type Entity struct {
	ID           string
	Kind         Kind
	Name         string
	ControllerID string
	// Fields holds nested scalar/object values addressed by dotted paths.
	Fields map[string]any
	// Collections holds owned sub-entities keyed by collection name.
	Collections map[string][]SubEntity
	// Flags is the namespaced governance metadata bag.
	Flags     map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy of the entity. The copy shares no mutable state
// with the original; restoring from a clone is loss-free.
func (e Entity) Clone() Entity {
	cloned := e
	cloned.Fields = cloneValueMap(e.Fields)
	cloned.Flags = cloneValueMap(e.Flags)
	if e.Collections != nil {
		cloned.Collections = make(map[string][]SubEntity, len(e.Collections))
		for name, subs := range e.Collections {
			copied := make([]SubEntity, len(subs))
			for i, sub := range subs {
				copied[i] = SubEntity{ID: sub.ID, Type: sub.Type, Data: cloneValueMap(sub.Data)}
			}
			cloned.Collections[name] = copied
		}
	}
	return cloned
}

// SubEntityIDs returns the ids of a collection's members in stored order.
func (e Entity) SubEntityIDs(collection string) []string {
	subs := e.Collections[collection]
	ids := make([]string, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	return ids
}

func cloneValueMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for key, value := range src {
		out[key] = cloneValue(value)
	}
	return out
}

func cloneValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return cloneValueMap(typed)
	case []any:
		copied := make([]any, len(typed))
		for i, item := range typed {
			copied[i] = cloneValue(item)
		}
		return copied
	default:
		return typed
	}
}
