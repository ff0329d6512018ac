package mergepatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestApply_ReplacesScalarField(t *testing.T) {
	target := map[string]interface{}{"name": "alice", "age": float64(30)}
	patch := map[string]interface{}{"age": float64(31)}
	out := Apply(target, patch)
	assert.Equal(t, map[string]interface{}{"name": "alice", "age": float64(31)}, out)
}

func TestApply_NullDeletesKey(t *testing.T) {
	target := map[string]interface{}{"name": "alice", "age": float64(30)}
	patch := map[string]interface{}{"age": nil}
	out := Apply(target, patch)
	assert.Equal(t, map[string]interface{}{"name": "alice"}, out)
}

func TestApply_AddsNewKey(t *testing.T) {
	target := map[string]interface{}{"name": "alice"}
	patch := map[string]interface{}{"email": "a@example.com"}
	out := Apply(target, patch)
	assert.Equal(t, map[string]interface{}{"name": "alice", "email": "a@example.com"}, out)
}

func TestApply_RecursesIntoNestedObjects(t *testing.T) {
	target := map[string]interface{}{
		"profile": map[string]interface{}{"city": "nyc", "zip": "10001"},
	}
	patch := map[string]interface{}{
		"profile": map[string]interface{}{"zip": "10002"},
	}
	out := Apply(target, patch)
	profile := out.(map[string]interface{})["profile"].(map[string]interface{})
	assert.Equal(t, "nyc", profile["city"])
	assert.Equal(t, "10002", profile["zip"])
}

func TestApply_ArrayValueReplacesWholesale(t *testing.T) {
	target := map[string]interface{}{"tags": []interface{}{"a", "b"}}
	patch := map[string]interface{}{"tags": []interface{}{"c"}}
	out := Apply(target, patch)
	assert.Equal(t, []interface{}{"c"}, out.(map[string]interface{})["tags"])
}

func TestApply_NonObjectPatchReplacesWholeTarget(t *testing.T) {
	target := map[string]interface{}{"name": "alice"}
	out := Apply(target, "replacement")
	assert.Equal(t, "replacement", out)
}

func TestApply_DoesNotMutateTarget(t *testing.T) {
	target := map[string]interface{}{"name": "alice"}
	patch := map[string]interface{}{"name": "bob"}
	_ = Apply(target, patch)
	assert.Equal(t, "alice", target["name"])
}

func TestApply_NestedNullCreatesObjectThenDeletesMissingKeyIsNoop(t *testing.T) {
	target := map[string]interface{}{}
	patch := map[string]interface{}{
		"profile": map[string]interface{}{"missing": nil},
	}
	out := Apply(target, patch)
	profile := out.(map[string]interface{})["profile"].(map[string]interface{})
	assert.Empty(t, profile)
}
