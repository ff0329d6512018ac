// Package paginate implements the PaginationSpec algorithm of spec.md §3/§4.4:
// extract limit/skip/sort/order from either the query string or a dotted
// path into the request body, sort stably with missing-field-sorts-last
// semantics, then slice [skip, skip+limit).
//
// Grounded on the teacher's applySorting/applyPagination
// (server/utils/filteredMockData.go), generalized from the teacher's fixed
// `_page`/`_limit`/`_sort`/`_order` query convention to a configurable key
// set and a query-or-body source.
package paginate

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Source selects where pagination parameters are read from.
type Source string

const (
	SourceQuery Source = "query"
	SourceBody  Source = "body"
)

// Spec is a PaginationSpec: the key names to read and where to read them from.
type Spec struct {
	Source   Source
	Root     string // dotted path into the body JSON; only used when Source == SourceBody
	LimitKey string
	SkipKey  string
	SortKey  string
	OrderKey string
}

// Apply sorts and slices items per spec, reading parameters from query (when
// Source is SourceQuery) or from body (when Source is SourceBody). Items are
// not mutated; the returned slice may alias items' elements but never
// items itself.
func Apply(items []map[string]interface{}, spec Spec, query url.Values, body interface{}) ([]map[string]interface{}, error) {
	params, err := resolveParams(spec, body)
	if err != nil {
		return nil, err
	}

	raw := func(key string) (interface{}, bool) {
		if key == "" {
			return nil, false
		}
		if spec.Source == SourceBody {
			v, ok := params[key]
			return v, ok
		}
		if vals, ok := query[key]; ok && len(vals) > 0 {
			return vals[0], true
		}
		return nil, false
	}

	limit, hasLimit, err := coerceNonNegativeInt(raw(spec.LimitKey))
	if err != nil {
		return nil, fmt.Errorf("paginate: %s: %w", spec.LimitKey, err)
	}
	skip, _, err := coerceNonNegativeInt(raw(spec.SkipKey))
	if err != nil {
		return nil, fmt.Errorf("paginate: %s: %w", spec.SkipKey, err)
	}

	var sortKey string
	if v, ok := raw(spec.SortKey); ok {
		sortKey = fmt.Sprintf("%v", v)
	}

	ascending := true
	if v, ok := raw(spec.OrderKey); ok {
		ascending, err = coerceOrder(v)
		if err != nil {
			return nil, fmt.Errorf("paginate: %s: %w", spec.OrderKey, err)
		}
	}

	working := make([]map[string]interface{}, len(items))
	copy(working, items)

	if sortKey != "" {
		sort.SliceStable(working, func(i, j int) bool {
			return less(working[i][sortKey], working[j][sortKey], ascending)
		})
	}

	if skip > len(working) {
		skip = len(working)
	}
	end := len(working)
	if hasLimit {
		end = skip + limit
		if end > len(working) {
			end = len(working)
		}
	}
	return working[skip:end], nil
}

func resolveParams(spec Spec, body interface{}) (map[string]interface{}, error) {
	if spec.Source != SourceBody {
		return nil, nil
	}
	node := body
	if spec.Root != "" {
		for _, segment := range strings.Split(spec.Root, ".") {
			m, ok := node.(map[string]interface{})
			if !ok {
				return map[string]interface{}{}, nil
			}
			node = m[segment]
		}
	}
	m, ok := node.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}, nil
	}
	return m, nil
}

// less orders missing field values (nil) last regardless of direction.
func less(a, b interface{}, ascending bool) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}

	switch va := a.(type) {
	case float64:
		vb, ok := b.(float64)
		if !ok {
			return false
		}
		if ascending {
			return va < vb
		}
		return va > vb
	case bool:
		vb, ok := b.(bool)
		if !ok {
			return false
		}
		if ascending {
			return !va && vb
		}
		return va && !vb
	default:
		sa := fmt.Sprintf("%v", a)
		sb := fmt.Sprintf("%v", b)
		if ascending {
			return sa < sb
		}
		return sa > sb
	}
}

func coerceNonNegativeInt(v interface{}, present bool) (int, bool, error) {
	if !present {
		return 0, false, nil
	}
	switch t := v.(type) {
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil || n < 0 {
			return 0, false, fmt.Errorf("must be a non-negative integer, got %q", t)
		}
		return n, true, nil
	case float64:
		if t < 0 || t != float64(int(t)) {
			return 0, false, fmt.Errorf("must be a non-negative integer, got %v", t)
		}
		return int(t), true, nil
	case int:
		if t < 0 {
			return 0, false, fmt.Errorf("must be a non-negative integer, got %v", t)
		}
		return t, true, nil
	default:
		return 0, false, fmt.Errorf("must be a non-negative integer, got %v", v)
	}
}

func coerceOrder(v interface{}) (ascending bool, err error) {
	switch t := v.(type) {
	case string:
		switch strings.ToUpper(strings.TrimSpace(t)) {
		case "ASC", "1", "TRUE":
			return true, nil
		case "DESC", "-1", "FALSE":
			return false, nil
		default:
			return true, fmt.Errorf("unrecognized order value %q", t)
		}
	case float64:
		switch t {
		case 1:
			return true, nil
		case -1:
			return false, nil
		default:
			return true, fmt.Errorf("unrecognized order value %v", t)
		}
	case bool:
		return t, nil
	default:
		return true, fmt.Errorf("unrecognized order value %v", v)
	}
}
