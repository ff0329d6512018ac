// Package fsengine implements C5: the filesystem-backed resource layer of
// spec.md §4.4. A request resolves to a file under an engine's root
// directory; the method, the file's existence, and whether it holds a JSON
// array drive a small state machine that reads, creates, replaces, patches
// or deletes that file.
//
// Grounded structurally on the teacher's mock-file lookup and
// FilteredMockData composition (server/handlers.go, server/utils/filteredMockData.go),
// generalized from the teacher's single read-only GET path into the full
// GET/POST/PUT/PATCH/DELETE contract, backed by internal/paginate,
// internal/filter, internal/jsonpatch and internal/mergepatch.
package fsengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/filter"
	"github.com/example/mockgw/internal/jsonpatch"
	"github.com/example/mockgw/internal/mergepatch"
	"github.com/example/mockgw/internal/paginate"
	"github.com/example/mockgw/internal/reqctx"
)

var knownExtensions = []string{".json", ".xml", ".html", ".htm", ".txt"}

// Options carries the per-method pagination/filter configuration a
// dispatcher has already resolved (global config merged with any
// per-handler override) for the request being served.
type Options struct {
	Pagination *paginate.Spec
	Filters    []filter.Rule
}

// Result is the (status, headers, body) tuple C5 produces.
type Result struct {
	Status      int
	Headers     map[string]string
	JSON        interface{}
	Raw         []byte
	HeadersOnly bool
}

func newResult(status int) *Result {
	return &Result{Status: status, Headers: map[string]string{}}
}

// Engine resolves requests against files under Root.
type Engine struct {
	Root string

	// resolveCache memoizes resolve's exact/index.json/extension-augmented
	// lookup per relPath, avoiding repeated os.Stat calls on hot paths.
	// InvalidateCache drops it wholesale when the caller observes the
	// directory tree change underneath it.
	resolveCache sync.Map
}

type resolveEntry struct {
	fsPath string
	found  bool
}

// New builds an Engine rooted at dir.
func New(dir string) *Engine {
	return &Engine{Root: dir}
}

// InvalidateCache drops all memoized path resolutions. Call this when the
// mock directory changes on disk (file add/remove) so the next request
// re-resolves against the current tree instead of a stale lookup.
func (e *Engine) InvalidateCache() {
	e.resolveCache = sync.Map{}
}

// rememberResolved records that relPath now resolves to fsPath, called from
// every write path that brings a file into existence so the next resolve
// sees it without waiting on the out-of-band fsnotify invalidation.
func (e *Engine) rememberResolved(relPath, fsPath string) {
	e.resolveCache.Store(relPath, resolveEntry{fsPath: fsPath, found: true})
}

// forgetResolved records that relPath no longer resolves to anything,
// called from every write path that removes a file.
func (e *Engine) forgetResolved(relPath string) {
	e.resolveCache.Store(relPath, resolveEntry{found: false})
}

// Handle dispatches req (with relPath already stripped of the endpoint
// prefix) to the method-appropriate state machine branch.
func (e *Engine) Handle(req *reqctx.Request, relPath string, opts Options) (*Result, error) {
	switch strings.ToUpper(req.Method) {
	case "GET":
		return e.handleRead(req, relPath, opts, false)
	case "HEAD":
		return e.handleRead(req, relPath, opts, true)
	case "POST":
		return e.handlePost(req, relPath, opts)
	case "PUT":
		return e.handlePut(req, relPath, opts)
	case "PATCH":
		return e.handlePatch(req, relPath)
	case "DELETE":
		return e.handleDelete(req, relPath, opts)
	case "OPTIONS":
		return nil, apierr.New(apierr.MethodNotAllowed, "OPTIONS is not supported for filesystem resources")
	default:
		return nil, apierr.New(apierr.MethodNotAllowed, fmt.Sprintf("method %s is not supported for filesystem resources", req.Method))
	}
}

func (e *Engine) handleRead(req *reqctx.Request, relPath string, opts Options, headOnly bool) (*Result, error) {
	fsPath, found, err := e.resolve(relPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apierr.New(apierr.NotFound, "resource not found")
	}

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to read resource", err)
	}

	ct := contentTypeForExt(filepath.Ext(fsPath))
	res := newResult(200)
	res.Headers["Content-Type"] = ct
	res.HeadersOnly = headOnly

	if ct != "application/json" {
		res.Raw = data
		return res, nil
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		res.Raw = data
		return res, nil
	}

	arr, isArray := parsed.([]interface{})
	if isArray && (opts.Pagination != nil || len(opts.Filters) > 0) {
		items := toMapSlice(arr)
		filtered, err := filter.Apply(items, opts.Filters, req.Query)
		if err != nil {
			return nil, apierr.Wrap(apierr.MalformedBody, "invalid filter parameters", err)
		}
		total := len(filtered)
		page := filtered
		if opts.Pagination != nil {
			page, err = paginate.Apply(filtered, *opts.Pagination, req.Query, req.Body.JSON)
			if err != nil {
				return nil, apierr.Wrap(apierr.MalformedBody, "invalid pagination parameters", err)
			}
		}
		res.JSON = toInterfaceSlice(page)
		res.Headers["X-Total-Elements"] = strconv.Itoa(total)
		return res, nil
	}

	res.JSON = parsed
	return res, nil
}

func (e *Engine) handlePost(req *reqctx.Request, relPath string, opts Options) (*Result, error) {
	fsPath, found, err := e.resolve(relPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return e.create(relPath, req)
	}

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to read resource", err)
	}
	var parsed interface{}
	if json.Unmarshal(data, &parsed) != nil {
		return nil, apierr.New(apierr.MalformedBody, "resource is not a JSON document")
	}

	if _, isArray := parsed.([]interface{}); isArray && (opts.Pagination != nil || len(opts.Filters) > 0) && bodyIsControlOnly(req, opts) {
		return e.handleRead(req, relPath, opts, false)
	}

	return nil, apierr.New(apierr.Conflict, "resource already exists")
}

func (e *Engine) handlePut(req *reqctx.Request, relPath string, opts Options) (*Result, error) {
	fsPath, found, err := e.resolve(relPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return e.create(relPath, req)
	}

	if req.Body.Kind != reqctx.BodyNone && len(req.Files) > 0 {
		return nil, apierr.New(apierr.MalformedBody, "body and files are mutually exclusive")
	}
	if len(req.Files) > 1 {
		return nil, apierr.New(apierr.MalformedBody, "only a single file upload is allowed")
	}

	data, err := serializeRequestPayload(req)
	if err != nil {
		return nil, err
	}
	if err := atomicWrite(fsPath, data); err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to write resource", err)
	}

	res := newResult(200)
	res.Headers["Content-Type"] = contentTypeForExt(filepath.Ext(fsPath))
	res.Raw = data
	return res, nil
}

func (e *Engine) create(relPath string, req *reqctx.Request) (*Result, error) {
	if req.Body.Kind != reqctx.BodyNone && len(req.Files) > 0 {
		return nil, apierr.New(apierr.MalformedBody, "body and files are mutually exclusive")
	}
	if len(req.Files) > 1 {
		return nil, apierr.New(apierr.MalformedBody, "only a single file upload is allowed")
	}

	fsPath, err := e.createPath(relPath)
	if err != nil {
		return nil, err
	}
	data, err := serializeRequestPayload(req)
	if err != nil {
		return nil, err
	}
	if err := atomicWrite(fsPath, data); err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to write resource", err)
	}
	e.rememberResolved(relPath, fsPath)

	res := newResult(201)
	res.Headers["Content-Type"] = contentTypeForExt(filepath.Ext(fsPath))
	res.Raw = data
	return res, nil
}

func serializeRequestPayload(req *reqctx.Request) ([]byte, error) {
	switch {
	case len(req.Files) == 1:
		return req.Files[0].Bytes, nil
	case req.Body.Kind == reqctx.BodyJSON:
		return json.MarshalIndent(req.Body.JSON, "", "  ")
	case req.Body.Kind == reqctx.BodyForm:
		return json.MarshalIndent(req.Body.Form, "", "  ")
	case req.Body.Kind == reqctx.BodyRaw:
		return req.Body.Raw, nil
	default:
		return []byte("{}"), nil
	}
}

func (e *Engine) handlePatch(req *reqctx.Request, relPath string) (*Result, error) {
	fsPath, found, err := e.resolve(relPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apierr.New(apierr.NotFound, "resource not found")
	}

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to read resource", err)
	}
	var current interface{}
	if json.Unmarshal(data, &current) != nil {
		return nil, apierr.New(apierr.MalformedBody, "resource is not a JSON document")
	}

	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(req.Header("Content-Type"), ";", 2)[0]))

	var result interface{}
	switch mediaType {
	case "application/json", "application/merge-patch+json":
		patchDoc, err := decodeJSONBody(req, mediaType)
		if err != nil {
			return nil, err
		}
		result = mergepatch.Apply(current, patchDoc)

	case "application/json-patch+json":
		raw := rawBytesOf(req)
		var ops []jsonpatch.Operation
		if err := json.Unmarshal(raw, &ops); err != nil {
			return nil, apierr.Wrap(apierr.MalformedBody, "patch body must be an RFC 6902 operations array", err)
		}
		patched, err := jsonpatch.Apply(current, ops)
		if err != nil {
			return nil, apierr.Wrap(apierr.Conflict, "patch application failed", err)
		}
		result = patched

	default:
		return nil, apierr.New(apierr.UnsupportedMediaType, fmt.Sprintf("unsupported patch content type %q", mediaType))
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to encode patched resource", err)
	}
	if err := atomicWrite(fsPath, out); err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to write patched resource", err)
	}

	res := newResult(200)
	res.Headers["Content-Type"] = "application/json"
	res.JSON = result
	return res, nil
}

func decodeJSONBody(req *reqctx.Request, mediaType string) (interface{}, error) {
	if mediaType == "application/json" {
		if req.Body.Kind != reqctx.BodyJSON {
			return nil, apierr.New(apierr.MalformedBody, "patch body must be valid JSON")
		}
		return req.Body.JSON, nil
	}
	raw := rawBytesOf(req)
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, apierr.Wrap(apierr.MalformedBody, "patch body must be valid JSON", err)
	}
	return v, nil
}

func rawBytesOf(req *reqctx.Request) []byte {
	if req.Body.Kind == reqctx.BodyRaw {
		return req.Body.Raw
	}
	return nil
}

func (e *Engine) handleDelete(req *reqctx.Request, relPath string, opts Options) (*Result, error) {
	if req.Body.Kind != reqctx.BodyNone {
		return nil, apierr.New(apierr.MalformedBody, "DELETE requests must not carry a body")
	}

	fsPath, found, err := e.resolve(relPath)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apierr.New(apierr.NotFound, "resource not found")
	}

	data, err := os.ReadFile(fsPath)
	if err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to read resource", err)
	}

	var parsed interface{}
	isJSON := json.Unmarshal(data, &parsed) == nil
	arr, isArray := parsed.([]interface{})

	if isJSON && isArray && (opts.Pagination != nil || len(opts.Filters) > 0) {
		items := toMapSlice(arr)
		matched, err := filter.Apply(items, opts.Filters, req.Query)
		if err != nil {
			return nil, apierr.Wrap(apierr.MalformedBody, "invalid filter parameters", err)
		}
		remaining := subtract(items, matched)
		deleted := len(items) - len(remaining)

		if len(remaining) == 0 {
			if err := os.Remove(fsPath); err != nil {
				return nil, apierr.Wrap(apierr.ReadFile, "failed to delete resource", err)
			}
			e.forgetResolved(relPath)
		} else {
			out, err := json.MarshalIndent(toInterfaceSlice(remaining), "", "  ")
			if err != nil {
				return nil, apierr.Wrap(apierr.ReadFile, "failed to encode resource", err)
			}
			if err := atomicWrite(fsPath, out); err != nil {
				return nil, apierr.Wrap(apierr.ReadFile, "failed to write resource", err)
			}
		}

		res := newResult(204)
		res.Headers["X-Deleted-Elements"] = strconv.Itoa(deleted)
		return res, nil
	}

	if err := os.Remove(fsPath); err != nil {
		return nil, apierr.Wrap(apierr.ReadFile, "failed to delete resource", err)
	}
	e.forgetResolved(relPath)
	res := newResult(204)
	res.Headers["X-Deleted-Elements"] = "1"
	return res, nil
}

// bodyIsControlOnly reports whether req carries no body, or a JSON object
// whose keys are all pagination/filter control keys — the "POST against an
// existing collection behaves as a read" case of spec.md §4.4.
func bodyIsControlOnly(req *reqctx.Request, opts Options) bool {
	if req.Body.Kind == reqctx.BodyNone {
		return true
	}
	m, ok := req.Body.AsMap()
	if !ok {
		return false
	}
	allowed := map[string]bool{}
	if opts.Pagination != nil {
		for _, k := range []string{opts.Pagination.LimitKey, opts.Pagination.SkipKey, opts.Pagination.SortKey, opts.Pagination.OrderKey} {
			if k != "" {
				allowed[k] = true
			}
		}
	}
	for _, r := range opts.Filters {
		allowed[r.Key] = true
	}
	for k := range m {
		if !allowed[k] {
			return false
		}
	}
	return true
}

// resolve implements the exact → index.json → extension-augmented lookup
// order of spec.md §3/§6.
func (e *Engine) resolve(relPath string) (fsPath string, found bool, err error) {
	if cached, ok := e.resolveCache.Load(relPath); ok {
		entry := cached.(resolveEntry)
		return entry.fsPath, entry.found, nil
	}

	base, err := e.safeJoin(relPath)
	if err != nil {
		return "", false, err
	}

	fsPath, found = base, false
	if info, statErr := os.Stat(base); statErr == nil && !info.IsDir() {
		fsPath, found = base, true
	} else if info, statErr := os.Stat(filepath.Join(base, "index.json")); statErr == nil && !info.IsDir() {
		fsPath, found = filepath.Join(base, "index.json"), true
	} else {
		for _, ext := range knownExtensions {
			candidate := base + ext
			if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
				fsPath, found = candidate, true
				break
			}
		}
	}

	e.resolveCache.Store(relPath, resolveEntry{fsPath: fsPath, found: found})
	return fsPath, found, nil
}

// createPath picks the file a missing resource is created at: the literal
// request path when it already names an extension, otherwise `.json`
// appended so the write is consistent with resolve's extension-augmented
// lookup on the next request.
func (e *Engine) createPath(relPath string) (string, error) {
	base, err := e.safeJoin(relPath)
	if err != nil {
		return "", err
	}
	if filepath.Ext(base) == "" {
		base += ".json"
	}
	return base, nil
}

func (e *Engine) safeJoin(relPath string) (string, error) {
	cleaned := path.Clean("/" + relPath)
	rel := strings.TrimPrefix(cleaned, "/")
	full := filepath.Join(e.Root, rel)

	rootAbs, err := filepath.Abs(e.Root)
	if err != nil {
		return "", apierr.Wrap(apierr.ReadFile, "failed to resolve root directory", err)
	}
	fullAbs, err := filepath.Abs(full)
	if err != nil {
		return "", apierr.Wrap(apierr.ReadFile, "failed to resolve resource path", err)
	}
	if fullAbs != rootAbs && !strings.HasPrefix(fullAbs, rootAbs+string(filepath.Separator)) {
		return "", apierr.New(apierr.NotFound, "resource path escapes the configured root")
	}
	return full, nil
}

func atomicWrite(fsPath string, data []byte) error {
	dir := filepath.Dir(fsPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".mockgw-tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, fsPath)
}

func contentTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".html", ".htm":
		return "text/html"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}

func toMapSlice(arr []interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]interface{}); ok {
			out = append(out, m)
		} else {
			out = append(out, map[string]interface{}{})
		}
	}
	return out
}

func toInterfaceSlice(items []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(items))
	for i, m := range items {
		out[i] = m
	}
	return out
}

// subtract returns the items of all not present in remove, comparing items
// by content through identityKey.
func subtract(all, remove []map[string]interface{}) []map[string]interface{} {
	removeKeys := make(map[string]bool, len(remove))
	for _, m := range remove {
		removeKeys[identityKey(m)] = true
	}
	out := make([]map[string]interface{}, 0, len(all))
	for _, m := range all {
		if !removeKeys[identityKey(m)] {
			out = append(out, m)
		}
	}
	return out
}

// identityKey produces a stable string for a map by sorting and
// concatenating its entries, used only to diff two slices derived from the
// same source array.
func identityKey(m map[string]interface{}) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		fmt.Fprintf(&b, "%v", m[k])
		b.WriteByte(';')
	}
	return b.String()
}
