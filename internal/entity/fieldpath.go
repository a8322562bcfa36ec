package entity

import (
	"strings"

	apperrors "github.com/emberwake/warden/internal/platform/errors"
)

// Well-known field path namespaces.
const (
	// NamespaceSystem holds game-system scalar state (credits, attributes).
	NamespaceSystem = "system"
	// NamespaceDerived holds values recomputed by the store layer.
	NamespaceDerived = "derived"
	// NamespaceWarden holds governance metadata mirrored into fields.
	NamespaceWarden = "warden"
)

// CreditsPath is the governed currency balance field.
const CreditsPath = "system.credits"

// kindNamespaces defines which field-path namespaces each entity kind accepts.
var kindNamespaces = map[Kind]map[string]struct{}{
	KindCharacter: {NamespaceSystem: {}, NamespaceDerived: {}, NamespaceWarden: {}},
	KindVehicle:   {NamespaceSystem: {}, NamespaceDerived: {}, NamespaceWarden: {}},
	KindLocation:  {NamespaceSystem: {}, NamespaceDerived: {}, NamespaceWarden: {}},
}

// ValidatePath checks that a dotted field path is well formed and that its
// leading namespace is allowed for the given entity kind.
func ValidatePath(kind Kind, path string) error {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return apperrors.New(apperrors.CodePlanEmptyFieldPath, "field path is required")
	}
	segments := strings.Split(trimmed, ".")
	for _, segment := range segments {
		if segment == "" {
			return apperrors.WithMetadata(apperrors.CodePlanInvalidFieldPath,
				"field path has an empty segment", map[string]string{"path": path})
		}
		for _, r := range segment {
			if !isPathRune(r) {
				return apperrors.WithMetadata(apperrors.CodePlanInvalidFieldPath,
					"field path contains an invalid character", map[string]string{"path": path})
			}
		}
	}
	allowed, ok := kindNamespaces[kind]
	if !ok {
		return ErrInvalidKind
	}
	if _, ok := allowed[segments[0]]; !ok {
		return apperrors.WithMetadata(apperrors.CodePlanUnknownNamespace,
			"field path namespace not allowed for kind",
			map[string]string{"path": path, "kind": string(kind)})
	}
	return nil
}

func isPathRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '-':
		return true
	}
	return false
}

// GetField resolves a dotted path against a nested field map. The second
// return value reports whether the full path was present.
func GetField(fields map[string]any, path string) (any, bool) {
	segments := strings.Split(path, ".")
	var current any = fields
	for _, segment := range segments {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetField writes a value at a dotted path, creating intermediate maps as
// needed. The input map is mutated; callers that need immutability clone
// first.
func SetField(fields map[string]any, path string, value any) map[string]any {
	if fields == nil {
		fields = map[string]any{}
	}
	segments := strings.Split(path, ".")
	node := fields
	for _, segment := range segments[:len(segments)-1] {
		child, ok := node[segment].(map[string]any)
		if !ok {
			child = map[string]any{}
			node[segment] = child
		}
		node = child
	}
	node[segments[len(segments)-1]] = value
	return fields
}

// NumberField reads a numeric field, accepting the numeric representations
// that survive JSON round-trips.
func NumberField(fields map[string]any, path string) (float64, bool) {
	value, ok := GetField(fields, path)
	if !ok {
		return 0, false
	}
	switch typed := value.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	}
	return 0, false
}
