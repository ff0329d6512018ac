// Package mergepatch implements RFC 7396 JSON Merge Patch, the
// application/merge-patch+json PATCH semantics of spec.md §4.4: a recursive
// object merge where a null value deletes the corresponding key and any
// non-object patch value replaces the target wholesale.
//
// New subsystem — grounded on the FS engine's write-path requirements in
// spec.md §4.4 and the RFC 7396 algorithm itself (the teacher has no patch
// support to draw from).
package mergepatch

// Apply recursively merges patch onto target per RFC 7396 and returns the
// result. Neither target nor patch is mutated; Apply always returns a new
// value tree.
func Apply(target, patch interface{}) interface{} {
	patchMap, patchIsObject := patch.(map[string]interface{})
	if !patchIsObject {
		return cloneValue(patch)
	}

	targetMap, targetIsObject := target.(map[string]interface{})
	if !targetIsObject {
		targetMap = map[string]interface{}{}
	}

	result := make(map[string]interface{}, len(targetMap)+len(patchMap))
	for k, v := range targetMap {
		result[k] = v
	}

	for k, pv := range patchMap {
		if pv == nil {
			delete(result, k)
			continue
		}
		result[k] = Apply(result[k], pv)
	}
	return result
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	default:
		return v
	}
}
