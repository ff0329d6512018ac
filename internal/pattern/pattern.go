// Package pattern implements the Ant-style path matcher used by the REST
// dispatcher (C1): "?" matches one non-separator character, "*" matches zero
// or more non-separator characters within a segment, "**" matches zero or
// more full segments, "{name}" captures a segment, and "{name:regex}"
// captures a segment constrained by an embedded, segment-scoped regex.
//
// Grounded on server/handlers.go's compilePathRegex in the teacher repo,
// generalized from a flat "{id}" substitution into the full Ant grammar
// with doubleStar backtracking.
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// segment is one compiled "/"-delimited piece of a Pattern.
type segment struct {
	doubleStar bool
	re         *regexp.Regexp // nil only when doubleStar is true
	names      []string       // capture names declared in this segment, in order
}

// Pattern is a compiled Ant-style path pattern.
type Pattern struct {
	raw      string
	segments []segment
}

// Compile parses an Ant-style pattern into a Pattern ready for Match.
// It rejects patterns that declare the same {name} more than once.
func Compile(raw string) (*Pattern, error) {
	trimmed := strings.Trim(raw, "/")
	var parts []string
	if trimmed != "" {
		parts = strings.Split(trimmed, "/")
	}

	seen := map[string]bool{}
	segs := make([]segment, 0, len(parts))
	for _, part := range parts {
		if part == "**" {
			segs = append(segs, segment{doubleStar: true})
			continue
		}
		re, names, err := compileSegment(part)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", raw, err)
		}
		for _, n := range names {
			if seen[n] {
				return nil, fmt.Errorf("pattern %q: duplicate capture name %q", raw, n)
			}
			seen[n] = true
		}
		segs = append(segs, segment{re: re, names: names})
	}

	return &Pattern{raw: raw, segments: segs}, nil
}

// MustCompile is Compile but panics on error; intended for static patterns.
func MustCompile(raw string) *Pattern {
	p, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original, uncompiled pattern text.
func (p *Pattern) String() string { return p.raw }

// Match attempts to match path against the compiled pattern. It returns the
// named parameter captures and true on success.
func (p *Pattern) Match(path string) (map[string]string, bool) {
	trimmed := strings.Trim(path, "/")
	var pathSegs []string
	if trimmed != "" {
		pathSegs = strings.Split(trimmed, "/")
	}

	params := map[string]string{}
	ok := matchSegments(p.segments, pathSegs, params)
	if !ok {
		return nil, false
	}
	return params, true
}

// matchSegments recursively matches compiled segments against path segments,
// backtracking only across "**" segments, per spec §4.1.
func matchSegments(segs []segment, path []string, out map[string]string) bool {
	if len(segs) == 0 {
		return len(path) == 0
	}

	head := segs[0]
	if head.doubleStar {
		// Greedy-first: try consuming the largest suffix first so that a
		// trailing "**" behaves like a catch-all, then backtrack down to 0.
		for consume := len(path); consume >= 0; consume-- {
			if matchSegments(segs[1:], path[consume:], out) {
				return true
			}
		}
		return false
	}

	if len(path) == 0 {
		return false
	}

	m := head.re.FindStringSubmatch(path[0])
	if m == nil {
		return false
	}
	for i, name := range head.re.SubexpNames() {
		if name == "" {
			continue
		}
		out[name] = m[i]
	}
	return matchSegments(segs[1:], path[1:], out)
}

// compileSegment turns one non-"**" path segment containing "?", "*",
// "{name}" and "{name:regex}" tokens into an anchored regexp plus the
// ordered list of capture names it declares.
func compileSegment(seg string) (*regexp.Regexp, []string, error) {
	var b strings.Builder
	b.WriteString("^")
	var names []string

	i := 0
	for i < len(seg) {
		c := seg[i]
		switch c {
		case '?':
			b.WriteString("[^/]")
			i++
		case '*':
			b.WriteString("[^/]*")
			i++
		case '{':
			end := strings.IndexByte(seg[i:], '}')
			if end < 0 {
				return nil, nil, fmt.Errorf("unterminated '{' in segment %q", seg)
			}
			inner := seg[i+1 : i+end]
			name := inner
			restrict := "[^/]+"
			if idx := strings.IndexByte(inner, ':'); idx >= 0 {
				name = inner[:idx]
				restrict = inner[idx+1:]
			}
			if !isValidParamName(name) {
				return nil, nil, fmt.Errorf("invalid parameter name %q in segment %q", name, seg)
			}
			fmt.Fprintf(&b, "(?P<%s>%s)", name, restrict)
			names = append(names, name)
			i += end + 1
		default:
			// Find the run of literal characters up to the next token.
			start := i
			for i < len(seg) && seg[i] != '?' && seg[i] != '*' && seg[i] != '{' {
				i++
			}
			b.WriteString(regexp.QuoteMeta(seg[start:i]))
		}
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, nil, fmt.Errorf("segment %q: %w", seg, err)
	}
	return re, names, nil
}

func isValidParamName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}
