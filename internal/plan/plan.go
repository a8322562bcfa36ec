package plan

import (
	"strings"

	"github.com/emberwake/warden/internal/entity"
	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

var (
	// ErrEmptyCollection indicates an add/delete bucket entry without a collection name.
	ErrEmptyCollection = apperrors.New(apperrors.CodePlanEmptyCollection, "collection name is required")
	// ErrEmptyTemporaryID indicates a create spec without a temporary id.
	ErrEmptyTemporaryID = apperrors.New(apperrors.CodePlanEmptyTemporaryID, "temporary id is required")
	// ErrDuplicateTemporaryID indicates two create specs sharing a temporary id.
	ErrDuplicateTemporaryID = apperrors.New(apperrors.CodePlanDuplicateTempID, "duplicate temporary id")
)

// SubEntitySpec describes a sub-entity to create within an owned collection.
type SubEntitySpec struct {
	// Type classifies the sub-entity (e.g. "weapon", "cargo").
	Type string
	// Data holds the sub-entity payload.
	Data map[string]any
}

// CreateSpec describes a top-level entity to materialize. The TemporaryID
// lets later plan fragments (placement) target the entity before it has a
// real id.
type CreateSpec struct {
	TemporaryID string
	Kind        entity.Kind
	Name        string
	Fields      map[string]any
}

// Plan is the declarative unit of deferred change against one target entity
// (plus, through the create bucket, new top-level entities it spawns).
type Plan struct {
	// Set maps dotted field paths to unconditional overwrites.
	Set map[string]any
	// Add maps collection names to sub-entities to create.
	Add map[string][]SubEntitySpec
	// Delete maps collection names to sub-entity ids to remove.
	Delete map[string][]string
	// Create maps entity kinds to top-level entities to materialize.
	Create map[entity.Kind][]CreateSpec
}

// IsEmpty reports whether the plan carries no work in any bucket.
func (p Plan) IsEmpty() bool {
	return len(p.Set) == 0 && len(p.Add) == 0 && len(p.Delete) == 0 && len(p.Create) == 0
}

// Clone returns a deep copy of the plan.
func (p Plan) Clone() Plan {
	out := Plan{}
	if p.Set != nil {
		out.Set = make(map[string]any, len(p.Set))
		for path, value := range p.Set {
			out.Set[path] = value
		}
	}
	if p.Add != nil {
		out.Add = make(map[string][]SubEntitySpec, len(p.Add))
		for collection, specs := range p.Add {
			copied := make([]SubEntitySpec, len(specs))
			for i, spec := range specs {
				copied[i] = SubEntitySpec{Type: spec.Type, Data: cloneData(spec.Data)}
			}
			out.Add[collection] = copied
		}
	}
	if p.Delete != nil {
		out.Delete = make(map[string][]string, len(p.Delete))
		for collection, ids := range p.Delete {
			out.Delete[collection] = append([]string(nil), ids...)
		}
	}
	if p.Create != nil {
		out.Create = make(map[entity.Kind][]CreateSpec, len(p.Create))
		for kind, specs := range p.Create {
			copied := make([]CreateSpec, len(specs))
			for i, spec := range specs {
				copied[i] = CreateSpec{
					TemporaryID: spec.TemporaryID,
					Kind:        spec.Kind,
					Name:        spec.Name,
					Fields:      cloneData(spec.Fields),
				}
			}
			out.Create[kind] = copied
		}
	}
	return out
}

func cloneData(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			out[key] = cloneData(nested)
			continue
		}
		out[key] = value
	}
	return out
}

// Validate checks bucket shape and field paths against the namespace schema.
// Target paths are checked against the target kind, temp-targeted set paths
// against the kind of the matching create spec, and create-spec field bags
// against the created kind. Temp paths whose id has no create spec in this
// plan are left for apply-time resolution, which rejects them as unresolved.
func (p Plan) Validate(targetKind entity.Kind) error {
	createdKinds := map[string]entity.Kind{}
	for kind, specs := range p.Create {
		for _, spec := range specs {
			createdKinds[strings.TrimSpace(spec.TemporaryID)] = kind
		}
	}
	for path := range p.Set {
		if tempID, fieldPath, ok := SplitTempPath(path); ok {
			kind, known := createdKinds[tempID]
			if !known {
				continue
			}
			if err := entity.ValidatePath(kind, fieldPath); err != nil {
				return err
			}
			continue
		}
		if err := entity.ValidatePath(targetKind, path); err != nil {
			return err
		}
	}
	for collection := range p.Add {
		if strings.TrimSpace(collection) == "" {
			return ErrEmptyCollection
		}
	}
	for collection := range p.Delete {
		if strings.TrimSpace(collection) == "" {
			return ErrEmptyCollection
		}
	}
	seen := map[string]struct{}{}
	for kind, specs := range p.Create {
		if !kind.Valid() {
			return entity.ErrInvalidKind
		}
		for _, spec := range specs {
			tempID := strings.TrimSpace(spec.TemporaryID)
			if tempID == "" {
				return ErrEmptyTemporaryID
			}
			if _, dup := seen[tempID]; dup {
				return apperrors.WithMetadata(apperrors.CodePlanDuplicateTempID,
					"duplicate temporary id", map[string]string{"id": tempID})
			}
			seen[tempID] = struct{}{}
			for key := range spec.Fields {
				if err := entity.ValidatePath(kind, key); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// SetFields returns a plan that overwrites the given field paths.
func SetFields(values map[string]any) Plan {
	set := make(map[string]any, len(values))
	for path, value := range values {
		set[path] = value
	}
	return Plan{Set: set}
}

// AddSubEntities returns a plan that creates sub-entities in one collection.
func AddSubEntities(collection string, specs ...SubEntitySpec) Plan {
	return Plan{Add: map[string][]SubEntitySpec{collection: append([]SubEntitySpec(nil), specs...)}}
}

// DeleteSubEntities returns a plan that removes sub-entities from one collection.
func DeleteSubEntities(collection string, ids ...string) Plan {
	return Plan{Delete: map[string][]string{collection: append([]string(nil), ids...)}}
}

// CreateEntities returns a plan that materializes top-level entities.
func CreateEntities(specs ...CreateSpec) Plan {
	create := map[entity.Kind][]CreateSpec{}
	for _, spec := range specs {
		create[spec.Kind] = append(create[spec.Kind], spec)
	}
	return Plan{Create: create}
}
