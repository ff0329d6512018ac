// Package filter implements the FilterSpec evaluation of spec.md §3/§4.4:
// an ordered, AND-composed list of {key, field, valueType, comparison}
// rules evaluated against each item of a JSON array resource.
//
// Grounded on the teacher's applyExactFilters/applyLikeFilters/matchExact
// (server/utils/filteredMockData.go), generalized from the teacher's two
// fixed comparisons (exact equality, substring "_like") into the full
// eq/ne/in/nin/lt/lte/gt/gte/regex set with typed coercion.
package filter

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ValueType selects how a raw query value and a field value are coerced
// before comparison.
type ValueType string

const (
	TypeString      ValueType = "string"
	TypeBoolean     ValueType = "boolean"
	TypeNumber      ValueType = "number"
	TypeDate        ValueType = "date"
	TypeStringArray ValueType = "*[]"
)

// Comparison is the operator a Spec entry applies.
type Comparison string

const (
	CompEq    Comparison = "eq"
	CompNe    Comparison = "ne"
	CompIn    Comparison = "in"
	CompNin   Comparison = "nin"
	CompLt    Comparison = "lt"
	CompLte   Comparison = "lte"
	CompGt    Comparison = "gt"
	CompGte   Comparison = "gte"
	CompRegex Comparison = "regex"
)

// Rule is one FilterSpec entry.
type Rule struct {
	Key        string
	Field      string // defaults to Key when empty
	ValueType  ValueType
	Comparison Comparison
	RegexFlags string
	// Coerce, when set, overrides ValueType with a user coercion function
	// applied to the raw query value.
	Coerce func(raw string) (interface{}, error)
}

func (r Rule) field() string {
	if r.Field != "" {
		return r.Field
	}
	return r.Key
}

// Apply returns the subset of items that satisfy every rule whose key is
// present in query (rules AND-compose; an absent key is skipped).
func Apply(items []map[string]interface{}, rules []Rule, query url.Values) ([]map[string]interface{}, error) {
	active := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if _, present := query[r.Key]; present {
			active = append(active, r)
		}
	}
	if len(active) == 0 {
		return items, nil
	}

	out := make([]map[string]interface{}, 0, len(items))
	for _, item := range items {
		ok := true
		for _, r := range active {
			matched, err := evaluate(item, r, query[r.Key])
			if err != nil {
				return nil, err
			}
			if !matched {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func evaluate(item map[string]interface{}, r Rule, rawValues []string) (bool, error) {
	fieldValue, hasField := item[r.field()]
	raw := ""
	if len(rawValues) > 0 {
		raw = rawValues[0]
	}

	if r.Comparison == CompRegex {
		if !hasField {
			return false, nil
		}
		pattern := raw
		if r.RegexFlags != "" {
			pattern = fmt.Sprintf("(?%s)%s", r.RegexFlags, raw)
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Errorf("filter: invalid regex for %q: %w", r.Key, err)
		}
		return re.MatchString(fmt.Sprintf("%v", fieldValue)), nil
	}

	if r.Comparison == CompIn || r.Comparison == CompNin {
		wanted, err := coerceList(r, rawValues)
		if err != nil {
			return false, err
		}
		contains := false
		for _, w := range wanted {
			if !hasField {
				continue
			}
			eq, err := compareEqual(fieldValue, w)
			if err != nil {
				return false, err
			}
			if eq {
				contains = true
				break
			}
		}
		if r.Comparison == CompIn {
			return contains, nil
		}
		return !contains, nil
	}

	if !hasField {
		return false, nil
	}

	target, err := coerceOne(r, raw)
	if err != nil {
		return false, err
	}

	switch r.Comparison {
	case CompEq:
		return compareEqual(fieldValue, target)
	case CompNe:
		eq, err := compareEqual(fieldValue, target)
		return !eq, err
	case CompLt, CompLte, CompGt, CompGte:
		cmp, err := compareOrdered(fieldValue, target)
		if err != nil {
			return false, err
		}
		switch r.Comparison {
		case CompLt:
			return cmp < 0, nil
		case CompLte:
			return cmp <= 0, nil
		case CompGt:
			return cmp > 0, nil
		default:
			return cmp >= 0, nil
		}
	default:
		return false, fmt.Errorf("filter: unsupported comparison %q", r.Comparison)
	}
}

func coerceList(r Rule, raw []string) ([]interface{}, error) {
	var tokens []string
	if r.ValueType == TypeStringArray || len(raw) == 1 && strings.Contains(raw[0], ",") {
		tokens = strings.Split(raw[0], ",")
	} else {
		tokens = raw
	}
	out := make([]interface{}, 0, len(tokens))
	for _, t := range tokens {
		v, err := coerceOne(r, strings.TrimSpace(t))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func coerceOne(r Rule, raw string) (interface{}, error) {
	if r.Coerce != nil {
		return r.Coerce(raw)
	}
	switch r.ValueType {
	case TypeNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("filter: %q is not a number: %w", raw, err)
		}
		return n, nil
	case TypeBoolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("filter: %q is not a boolean: %w", raw, err)
		}
		return b, nil
	case TypeDate:
		t, err := parseDate(raw)
		if err != nil {
			return nil, err
		}
		return t, nil
	default: // string, *[]
		return raw, nil
	}
}

func parseDate(raw string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("filter: %q is not a recognized date", raw)
}

func compareEqual(fieldValue, target interface{}) (bool, error) {
	cmp, err := compareOrdered(fieldValue, target)
	if err != nil {
		// fall back to stringified equality for types compareOrdered cannot rank (e.g. bool)
		if fb, ok := fieldValue.(bool); ok {
			if tb, ok := target.(bool); ok {
				return fb == tb, nil
			}
		}
		return fmt.Sprintf("%v", fieldValue) == fmt.Sprintf("%v", target), nil
	}
	return cmp == 0, nil
}

func compareOrdered(fieldValue, target interface{}) (int, error) {
	switch t := target.(type) {
	case float64:
		fv, err := toFloat(fieldValue)
		if err != nil {
			return 0, err
		}
		switch {
		case fv < t:
			return -1, nil
		case fv > t:
			return 1, nil
		default:
			return 0, nil
		}
	case time.Time:
		fv, err := toTime(fieldValue)
		if err != nil {
			return 0, err
		}
		switch {
		case fv.Before(t):
			return -1, nil
		case fv.After(t):
			return 1, nil
		default:
			return 0, nil
		}
	case bool:
		return 0, fmt.Errorf("filter: booleans are not ordered")
	default:
		fs := fmt.Sprintf("%v", fieldValue)
		ts := fmt.Sprintf("%v", target)
		return strings.Compare(fs, ts), nil
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("filter: %v is not numeric", v)
	}
}

func toTime(v interface{}) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t, nil
	case string:
		return parseDate(t)
	default:
		return time.Time{}, fmt.Errorf("filter: %v is not a date", v)
	}
}
