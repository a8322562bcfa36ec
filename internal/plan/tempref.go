package plan

import "strings"

// tempRefPrefix marks a value or path segment that refers to a not-yet
// persisted entity by its temporary id.
const tempRefPrefix = "tmp://"

// TempRef builds a reference token for a created entity's temporary id.
// The token may appear as a set value, inside sub-entity spec data, or as the
// leading segment of a set path ("tmp://veh-1#system.location").
func TempRef(temporaryID string) string {
	return tempRefPrefix + temporaryID
}

// IsTempRef reports whether a string value is a temporary-id reference.
func IsTempRef(value string) bool {
	return strings.HasPrefix(value, tempRefPrefix)
}

// TempID extracts the temporary id from a reference token.
func TempID(ref string) string {
	return strings.TrimPrefix(ref, tempRefPrefix)
}

// TempPath builds a set-bucket path that targets a field on a created entity,
// resolved after materialization.
func TempPath(temporaryID, fieldPath string) string {
	return tempRefPrefix + temporaryID + "#" + fieldPath
}

// SplitTempPath splits a temp-targeted set path into its temporary id and
// field path. The third return value reports whether the path was
// temp-targeted at all.
func SplitTempPath(path string) (temporaryID, fieldPath string, ok bool) {
	if !strings.HasPrefix(path, tempRefPrefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(path, tempRefPrefix)
	idx := strings.Index(rest, "#")
	if idx <= 0 || idx == len(rest)-1 {
		return "", "", false
	}
	return rest[:idx], rest[idx+1:], true
}
