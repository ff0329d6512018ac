package paginate

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": float64(1), "status": "a"},
		{"id": float64(2), "status": "a"},
		{"id": float64(3), "status": "b"},
		{"id": float64(4), "status": "a"},
		{"id": float64(5), "status": "b"},
		{"id": float64(6), "status": "a"},
	}
}

func TestApply_QuerySortDescAndSlice(t *testing.T) {
	spec := Spec{Source: SourceQuery, LimitKey: "limit", SkipKey: "skip", SortKey: "sortBy", OrderKey: "order"}
	q := url.Values{"limit": {"2"}, "skip": {"1"}, "sortBy": {"id"}, "order": {"DESC"}}
	out, err := Apply(items(), spec, q, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, float64(5), out[0]["id"])
	assert.Equal(t, float64(4), out[1]["id"])
}

func TestApply_NoLimitSlicesToEnd(t *testing.T) {
	spec := Spec{Source: SourceQuery, LimitKey: "limit", SkipKey: "skip"}
	q := url.Values{"skip": {"4"}}
	out, err := Apply(items(), spec, q, nil)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, float64(5), out[0]["id"])
}

func TestApply_MissingSortFieldSortsLast(t *testing.T) {
	data := []map[string]interface{}{
		{"id": float64(1), "rank": float64(5)},
		{"id": float64(2)},
		{"id": float64(3), "rank": float64(1)},
	}
	spec := Spec{Source: SourceQuery, SortKey: "sort"}
	q := url.Values{"sort": {"rank"}}
	out, err := Apply(data, spec, q, nil)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, float64(3), out[0]["id"])
	assert.Equal(t, float64(1), out[1]["id"])
	assert.Equal(t, float64(2), out[2]["id"], "item missing the sort field sorts last regardless of order")
}

func TestApply_BodySourceWithRoot(t *testing.T) {
	spec := Spec{Source: SourceBody, Root: "page", LimitKey: "limit", SkipKey: "skip"}
	body := map[string]interface{}{
		"page": map[string]interface{}{"limit": float64(2), "skip": float64(0)},
	}
	out, err := Apply(items(), spec, nil, body)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestApply_SkipBeyondLengthYieldsEmpty(t *testing.T) {
	spec := Spec{Source: SourceQuery, SkipKey: "skip"}
	q := url.Values{"skip": {"100"}}
	out, err := Apply(items(), spec, q, nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestApply_InvalidLimitErrors(t *testing.T) {
	spec := Spec{Source: SourceQuery, LimitKey: "limit"}
	q := url.Values{"limit": {"not-a-number"}}
	_, err := Apply(items(), spec, q, nil)
	require.Error(t, err)
}

func TestApply_OrderAcceptsNumericAndBooleanForms(t *testing.T) {
	spec := Spec{Source: SourceQuery, SortKey: "sort", OrderKey: "order"}
	out, err := Apply(items(), spec, url.Values{"sort": {"id"}, "order": {"-1"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(6), out[0]["id"])

	out, err = Apply(items(), spec, url.Values{"sort": {"id"}, "order": {"false"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(6), out[0]["id"])
}
