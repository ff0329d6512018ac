package server

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/example/mockgw/internal/reqctx"
)

// fiberResponseWriter adapts *fiber.Ctx to middleware.ResponseWriter, the
// only surface internal/dispatcher and internal/middleware need to finalize
// a response, grounded on the teacher's direct c.Status/c.JSON/c.Send calls
// throughout server/handlers.go.
//
// routeName/routeType/upstream* are side-channel fields the route handler
// closures in handlers.go populate so the request logger (server/main.go)
// can report them without the dispatcher package needing to know about
// logging at all.
type fiberResponseWriter struct {
	c         *fiber.Ctx
	status    int
	finalized bool

	routeName string
	routeType string

	upstreamURL    string
	upstreamStatus int
	upstreamTimeMs int64
}

func newFiberResponseWriter(c *fiber.Ctx) *fiberResponseWriter {
	return &fiberResponseWriter{c: c, status: fiber.StatusOK}
}

func (w *fiberResponseWriter) Status(code int) {
	w.status = code
	w.c.Status(code)
}

func (w *fiberResponseWriter) SetHeader(key, value string) {
	w.c.Set(key, value)
}

func (w *fiberResponseWriter) JSON(v interface{}) error {
	w.finalized = true
	return w.c.JSON(v)
}

func (w *fiberResponseWriter) Send(b []byte) error {
	w.finalized = true
	return w.c.Send(b)
}

func (w *fiberResponseWriter) Finalized() bool {
	return w.finalized
}

// buildRequest converts an inbound *fiber.Ctx into the transport-agnostic
// reqctx.Request the dispatcher pipeline operates on. Body parsing is left
// to internal/bodyparser — only raw headers, query and the method/path are
// copied here, mirroring the teacher's buildHeaders/buildQuery helpers.
func buildRequest(c *fiber.Ctx) *reqctx.Request {
	req := reqctx.New(c.Method(), c.Path())
	req.RemoteAddr = c.IP()

	c.Request().Header.VisitAll(func(key, val []byte) {
		k := string(key)
		req.Headers[k] = append(req.Headers[k], string(val))
	})

	q := url.Values{}
	for k, v := range c.Queries() {
		q.Set(k, v)
	}
	req.Query = q

	for k, v := range c.AllParams() {
		req.Params[k] = v
	}

	return req
}
