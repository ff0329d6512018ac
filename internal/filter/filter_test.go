package filter

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": float64(1), "status": "a", "age": float64(10)},
		{"id": float64(2), "status": "a", "age": float64(20)},
		{"id": float64(3), "status": "b", "age": float64(30)},
		{"id": float64(4), "status": "a", "age": float64(40)},
	}
}

func TestApply_EqFilter(t *testing.T) {
	rules := []Rule{{Key: "status", ValueType: TypeString, Comparison: CompEq}}
	out, err := Apply(sample(), rules, url.Values{"status": {"a"}})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestApply_NeFilter(t *testing.T) {
	rules := []Rule{{Key: "status", ValueType: TypeString, Comparison: CompNe}}
	out, err := Apply(sample(), rules, url.Values{"status": {"a"}})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestApply_GteNumberFilter(t *testing.T) {
	rules := []Rule{{Key: "age", ValueType: TypeNumber, Comparison: CompGte}}
	out, err := Apply(sample(), rules, url.Values{"age": {"20"}})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestApply_InFilterCommaSeparated(t *testing.T) {
	rules := []Rule{{Key: "id", ValueType: TypeNumber, Comparison: CompIn}}
	out, err := Apply(sample(), rules, url.Values{"id": {"1,3"}})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestApply_NinFilter(t *testing.T) {
	rules := []Rule{{Key: "id", ValueType: TypeNumber, Comparison: CompNin}}
	out, err := Apply(sample(), rules, url.Values{"id": {"1,3"}})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestApply_RegexFilter(t *testing.T) {
	rules := []Rule{{Key: "name", Field: "status", Comparison: CompRegex}}
	out, err := Apply(sample(), rules, url.Values{"name": {"^a$"}})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestApply_MissingKeySkipsRule(t *testing.T) {
	rules := []Rule{{Key: "nope", ValueType: TypeString, Comparison: CompEq}}
	out, err := Apply(sample(), rules, url.Values{})
	require.NoError(t, err)
	assert.Len(t, out, 4)
}

func TestApply_MultipleRulesCompose(t *testing.T) {
	rules := []Rule{
		{Key: "status", ValueType: TypeString, Comparison: CompEq},
		{Key: "age", ValueType: TypeNumber, Comparison: CompGt},
	}
	out, err := Apply(sample(), rules, url.Values{"status": {"a"}, "age": {"15"}})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestApply_InvalidRegexErrors(t *testing.T) {
	rules := []Rule{{Key: "status", Comparison: CompRegex}}
	_, err := Apply(sample(), rules, url.Values{"status": {"("}})
	require.Error(t, err)
}

func TestApply_DateComparison(t *testing.T) {
	data := []map[string]interface{}{
		{"id": float64(1), "created": "2024-01-01"},
		{"id": float64(2), "created": "2024-06-01"},
	}
	rules := []Rule{{Key: "since", Field: "created", ValueType: TypeDate, Comparison: CompGte}}
	out, err := Apply(data, rules, url.Values{"since": {"2024-03-01"}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, float64(2), out[0]["id"])
}
