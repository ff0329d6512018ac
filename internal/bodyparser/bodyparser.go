// Package bodyparser implements C3: the default JSON/form/multipart body
// parser plus a pluggable parser pipeline and a result transform hook, per
// spec.md §4.2.
//
// Grounded on the teacher's shouldParseBody/c.BodyParser usage in
// server/handlers.go, reimplemented directly against raw bytes + a
// Content-Type string so the dispatcher controls parser injection
// (global default vs per-route override) rather than delegating to
// Fiber's built-in body binding.
package bodyparser

import (
	"bytes"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/url"
	"strings"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/reqctx"
)

// Parser mutates req in place from the raw body and the original
// Content-Type header. Returning an error aborts the pipeline.
type Parser func(req *reqctx.Request, contentType string, raw []byte) error

// TransformResult is the optional {body, files, query} patch a pipeline's
// Transform hook may return. Undefined (nil) fields never overwrite the
// request's existing defaults, per spec.md §4.2.
type TransformResult struct {
	Body  *reqctx.Body
	Files []reqctx.File
	Query url.Values
}

// Pipeline is a user-configurable parser chain: each Parser runs in order
// against the same raw bytes, followed by an optional Transform that may
// rewrite the final {body, files, query}.
type Pipeline struct {
	Parsers   []Parser
	Transform func(req *reqctx.Request) (*TransformResult, error)
}

// Default is the built-in parser pipeline, keyed on Content-Type exactly as
// spec.md §4.2 describes.
var Default = Pipeline{Parsers: []Parser{ParseDefault}}

// Run executes the pipeline against raw, mutating req.
func (p Pipeline) Run(req *reqctx.Request, contentType string, raw []byte) error {
	parsers := p.Parsers
	if len(parsers) == 0 {
		parsers = Default.Parsers
	}
	for _, parser := range parsers {
		if err := parser(req, contentType, raw); err != nil {
			return err
		}
	}
	if p.Transform == nil {
		return nil
	}
	result, err := p.Transform(req)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if result.Body != nil {
		req.Body = *result.Body
	}
	if result.Files != nil {
		req.Files = result.Files
	}
	if result.Query != nil {
		req.Query = result.Query
	}
	return nil
}

// ParseDefault implements the built-in parser: JSON, urlencoded form,
// multipart/form-data, or a raw byte fallback.
func ParseDefault(req *reqctx.Request, contentType string, raw []byte) error {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}

	switch strings.ToLower(mediaType) {
	case "application/json":
		if len(raw) == 0 {
			req.Body = reqctx.Body{Kind: reqctx.BodyNone}
			return nil
		}
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return apierr.Wrap(apierr.MalformedBody, "request body is not valid JSON", err)
		}
		req.Body = reqctx.Body{Kind: reqctx.BodyJSON, JSON: v}
		return nil

	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			return apierr.Wrap(apierr.MalformedBody, "request body is not valid form data", err)
		}
		req.Body = reqctx.Body{Kind: reqctx.BodyForm, Form: map[string][]string(values)}
		return nil

	case "multipart/form-data":
		boundary, ok := params["boundary"]
		if !ok {
			return apierr.New(apierr.MalformedBody, "multipart/form-data request missing boundary parameter")
		}
		form := map[string][]string{}
		var files []reqctx.File

		mr := multipart.NewReader(bytes.NewReader(raw), boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				return apierr.Wrap(apierr.MalformedBody, "malformed multipart body", err)
			}

			data, err := io.ReadAll(part)
			if err != nil {
				return apierr.Wrap(apierr.MalformedBody, "failed reading multipart part", err)
			}

			if part.FileName() != "" {
				files = append(files, reqctx.File{
					Name:  part.FormName(),
					Bytes: data,
					Mime:  part.Header.Get("Content-Type"),
				})
				continue
			}
			form[part.FormName()] = append(form[part.FormName()], string(data))
		}

		req.Body = reqctx.Body{Kind: reqctx.BodyForm, Form: form}
		req.Files = files
		return nil

	default:
		if len(raw) == 0 {
			req.Body = reqctx.Body{Kind: reqctx.BodyNone}
			return nil
		}
		req.Body = reqctx.Body{Kind: reqctx.BodyRaw, Raw: raw}
		return nil
	}
}
