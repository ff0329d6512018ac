// Package reqctx defines the per-transaction Request model (C2): a parsed
// request carrying a tagged-union body plus params, query and files, per
// spec.md §3. Lifecycle: constructed once per HTTP transaction, mutated only
// by the body parser pipeline and pre-handlers, discarded at response end.
//
// Grounded on the teacher's flat EContext (server/utils/types.go),
// generalized from a map[string]interface{} body into the full body variant
// union spec.md calls for (null / raw bytes / JSON value / form map /
// multipart files).
package reqctx

import (
	"net/url"
)

// BodyKind tags which variant of the body union is populated.
type BodyKind int

const (
	BodyNone BodyKind = iota
	BodyRaw
	BodyJSON
	BodyForm
)

// File is one part of a multipart/form-data upload.
type File struct {
	Name  string
	Bytes []byte
	Mime  string
}

// Body is the tagged-union request payload described in spec.md §3.
type Body struct {
	Kind BodyKind
	Raw  []byte
	JSON interface{}
	Form map[string][]string
}

// AsMap returns the JSON body as a map, when the body is a JSON object.
func (b Body) AsMap() (map[string]interface{}, bool) {
	if b.Kind != BodyJSON {
		return nil, false
	}
	m, ok := b.JSON.(map[string]interface{})
	return m, ok
}

// Request is the per-transaction request model handlers, middleware and the
// FS engine operate on.
type Request struct {
	Method  string
	Path    string // raw request path, before pattern matching strips a prefix
	Headers map[string][]string
	Body    Body
	Params  map[string]string
	Query   url.Values
	Files   []File

	// RemoteAddr and RequestID are carried for logging/debug surfaces; they
	// are not part of the matching/parsing pipeline itself.
	RemoteAddr string
	RequestID  string
}

// New builds an empty Request for method/path, with Params/Query
// pre-initialized so downstream code never needs a nil check.
func New(method, path string) *Request {
	return &Request{
		Method:  method,
		Path:    path,
		Headers: map[string][]string{},
		Params:  map[string]string{},
		Query:   url.Values{},
	}
}

// Header returns the first value of the named header, case-sensitively as
// stored (callers normalize keys at insertion time via SetHeader).
func (r *Request) Header(name string) string {
	vs := r.Headers[name]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}

// SetHeader stores a single header value, replacing any existing ones.
func (r *Request) SetHeader(name, value string) {
	r.Headers[name] = []string{value}
}
