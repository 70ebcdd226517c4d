package schema

import (
	"encoding/json"
	"strconv"
	"strings"
)

// renames lists field names changed by a schema version, old name first. A rename
// applies to documents written before that version.
var renames = map[int][][2]string{
	2: {{"experience", "xp"}},
	3: {{"mastery", "wordMastery"}},
	4: {{"coins", "credits"}},
}

// DeclaredVersion reads the schemaVersion field of a decoded document.
func DeclaredVersion(doc map[string]any) (int, bool) {
	switch v := doc["schemaVersion"].(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), true
		}
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}

// VersionOf returns the schema version a document was written with. Early layouts
// carried no version field; the version encoded in key is used for them.
func VersionOf(doc map[string]any, key string) int {
	if v, ok := DeclaredVersion(doc); ok {
		return v
	}
	if strings.HasPrefix(key, keyPrefix) {
		if n, err := strconv.Atoi(strings.TrimPrefix(key, keyPrefix)); err == nil {
			return n
		}
	}
	return 0
}

// Upgrade rewrites renamed fields of a document written by version so it can be
// hydrated onto the current defaults. The input is not modified and fields that are
// not renames are carried over untouched.
func Upgrade(version int, doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	for v := version + 1; v <= CurrentVersion; v++ {
		for _, pair := range renames[v] {
			oldName, newName := pair[0], pair[1]
			val, ok := out[oldName]
			if !ok {
				continue
			}
			if _, exists := out[newName]; !exists {
				out[newName] = val
			}
			delete(out, oldName)
		}
	}
	return out
}
