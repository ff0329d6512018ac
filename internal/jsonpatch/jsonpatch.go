// Package jsonpatch implements RFC 6902 JSON Patch application for the
// application/json-patch+json PATCH semantics of spec.md §4.4. Applying a
// patch is atomic: if any operation fails, the original document is
// returned untouched (spec.md testable property 5), and the caller's
// document reference is never mutated in place.
//
// New subsystem — no direct teacher analogue (the teacher's mock files are
// read-only fixtures); grounded on the FS engine's write-path requirements
// in spec.md §4.4 and the RFC 6902 operation set itself.
package jsonpatch

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Operation is one step of an RFC 6902 patch document.
type Operation struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	From  string      `json:"from,omitempty"`
	Value interface{} `json:"value,omitempty"`
}

// Apply applies ops to doc in sequence and returns the resulting document.
// On any operation failure (including a failed "test"), it returns doc
// unchanged alongside the error — callers must not persist the result when
// err != nil.
func Apply(doc interface{}, ops []Operation) (interface{}, error) {
	root, err := deepCopy(doc)
	if err != nil {
		return doc, fmt.Errorf("jsonpatch: cloning document: %w", err)
	}

	for i, op := range ops {
		root, err = applyOne(root, op)
		if err != nil {
			return doc, fmt.Errorf("jsonpatch: operation %d (%s %s): %w", i, op.Op, op.Path, err)
		}
	}
	return root, nil
}

func applyOne(root interface{}, op Operation) (interface{}, error) {
	tokens, err := parsePointer(op.Path)
	if err != nil {
		return root, err
	}

	switch op.Op {
	case "add":
		return modify(root, tokens, "add", op.Value)
	case "remove":
		return modify(root, tokens, "remove", nil)
	case "replace":
		return modify(root, tokens, "replace", op.Value)
	case "move":
		fromTokens, err := parsePointer(op.From)
		if err != nil {
			return root, err
		}
		val, err := getAt(root, fromTokens)
		if err != nil {
			return root, err
		}
		root, err = modify(root, fromTokens, "remove", nil)
		if err != nil {
			return root, err
		}
		return modify(root, tokens, "add", val)
	case "copy":
		fromTokens, err := parsePointer(op.From)
		if err != nil {
			return root, err
		}
		val, err := getAt(root, fromTokens)
		if err != nil {
			return root, err
		}
		valCopy, err := deepCopy(val)
		if err != nil {
			return root, err
		}
		return modify(root, tokens, "add", valCopy)
	case "test":
		val, err := getAt(root, tokens)
		if err != nil {
			return root, err
		}
		if !reflect.DeepEqual(val, op.Value) {
			return root, fmt.Errorf("test failed: value does not match")
		}
		return root, nil
	default:
		return root, fmt.Errorf("unsupported op %q", op.Op)
	}
}

// modify applies add/replace/remove at the location tokens addresses
// within node, returning the (possibly new, for array resizes) node.
func modify(node interface{}, tokens []string, mode string, value interface{}) (interface{}, error) {
	if len(tokens) == 0 {
		switch mode {
		case "add", "replace":
			return value, nil
		default: // remove
			return nil, fmt.Errorf("cannot remove document root")
		}
	}

	key := tokens[0]
	rest := tokens[1:]

	if len(rest) == 0 {
		switch n := node.(type) {
		case map[string]interface{}:
			switch mode {
			case "add":
				n[key] = value
				return n, nil
			case "replace":
				if _, exists := n[key]; !exists {
					return nil, fmt.Errorf("path not found: %q", key)
				}
				n[key] = value
				return n, nil
			default: // remove
				if _, exists := n[key]; !exists {
					return nil, fmt.Errorf("path not found: %q", key)
				}
				delete(n, key)
				return n, nil
			}
		case []interface{}:
			idx, isDash, err := parseArrayIndex(key, len(n))
			if err != nil {
				return nil, err
			}
			switch mode {
			case "add":
				if isDash {
					idx = len(n)
				}
				if idx < 0 || idx > len(n) {
					return nil, fmt.Errorf("array index out of bounds: %s", key)
				}
				out := make([]interface{}, 0, len(n)+1)
				out = append(out, n[:idx]...)
				out = append(out, value)
				out = append(out, n[idx:]...)
				return out, nil
			case "replace":
				if isDash || idx < 0 || idx >= len(n) {
					return nil, fmt.Errorf("array index out of bounds: %s", key)
				}
				n[idx] = value
				return n, nil
			default: // remove
				if isDash || idx < 0 || idx >= len(n) {
					return nil, fmt.Errorf("array index out of bounds: %s", key)
				}
				out := make([]interface{}, 0, len(n)-1)
				out = append(out, n[:idx]...)
				out = append(out, n[idx+1:]...)
				return out, nil
			}
		default:
			return nil, fmt.Errorf("cannot navigate into non-container at %q", key)
		}
	}

	switch n := node.(type) {
	case map[string]interface{}:
		child, exists := n[key]
		if !exists {
			return nil, fmt.Errorf("path not found: %q", key)
		}
		updated, err := modify(child, rest, mode, value)
		if err != nil {
			return nil, err
		}
		n[key] = updated
		return n, nil
	case []interface{}:
		idx, isDash, err := parseArrayIndex(key, len(n))
		if err != nil {
			return nil, err
		}
		if isDash || idx < 0 || idx >= len(n) {
			return nil, fmt.Errorf("array index out of bounds: %s", key)
		}
		updated, err := modify(n[idx], rest, mode, value)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	default:
		return nil, fmt.Errorf("cannot navigate into non-container at %q", key)
	}
}

func getAt(node interface{}, tokens []string) (interface{}, error) {
	if len(tokens) == 0 {
		return node, nil
	}
	key := tokens[0]
	rest := tokens[1:]

	switch n := node.(type) {
	case map[string]interface{}:
		v, exists := n[key]
		if !exists {
			return nil, fmt.Errorf("path not found: %q", key)
		}
		return getAt(v, rest)
	case []interface{}:
		idx, isDash, err := parseArrayIndex(key, len(n))
		if err != nil {
			return nil, err
		}
		if isDash || idx < 0 || idx >= len(n) {
			return nil, fmt.Errorf("array index out of bounds: %s", key)
		}
		return getAt(n[idx], rest)
	default:
		return nil, fmt.Errorf("cannot navigate into non-container at %q", key)
	}
}

// parsePointer decodes an RFC 6901 JSON pointer into its unescaped tokens.
func parsePointer(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("invalid JSON pointer %q: must start with '/'", path)
	}
	raw := strings.Split(path[1:], "/")
	tokens := make([]string, len(raw))
	for i, t := range raw {
		t = strings.ReplaceAll(t, "~1", "/")
		t = strings.ReplaceAll(t, "~0", "~")
		tokens[i] = t
	}
	return tokens, nil
}

func parseArrayIndex(token string, length int) (idx int, isDash bool, err error) {
	if token == "-" {
		return 0, true, nil
	}
	n, err := strconv.Atoi(token)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("invalid array index %q", token)
	}
	return n, false, nil
}

func deepCopy(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
