// Package middleware implements C4: an ordered handler-middleware chain
// with an explicit next(err) continuation, forking into a parallel
// error-middleware chain on failure, per spec.md §4.3.
//
// Grounded structurally on the teacher's single fixed authMiddleware
// composition (server/middleware.go), generalized from one hardcoded
// fiber.Handler into a configurable, ordered []Handler / []ErrorHandler
// pair. Design note (spec.md §9): Go has no native callback-continuation
// style, so the "next" pattern is modeled explicitly as a continuation
// index into the handler slice, matching the teacher's synchronous,
// run-to-completion request handling.
package middleware

import "github.com/example/mockgw/internal/reqctx"

// ResponseWriter is the minimal surface a middleware or handler needs to
// finalize a response. Concrete adapters (Fiber, net/http, or an in-memory
// test double) implement it.
type ResponseWriter interface {
	Status(code int)
	SetHeader(key, value string)
	JSON(v interface{}) error
	Send(b []byte) error
	Finalized() bool
}

// Next is the continuation a Handler or ErrorHandler must call exactly
// once to advance the chain. next(nil) advances normally; next(err) forks
// into the error-middleware chain.
type Next func(err error)

// Handler is one link of the ordered handler-middleware chain.
type Handler func(req *reqctx.Request, res ResponseWriter, next Next)

// ErrorHandler is one link of the error-middleware chain, entered only
// after a Handler (or the final route handler) calls next(err).
type ErrorHandler func(err error, req *reqctx.Request, res ResponseWriter, next Next)

// Chain is an immutable, ordered handler/error-handler pair.
type Chain struct {
	Handlers      []Handler
	ErrorHandlers []ErrorHandler
}

// New builds a Chain from ordered handler and error-handler lists.
func New(handlers []Handler, errorHandlers []ErrorHandler) *Chain {
	return &Chain{Handlers: handlers, ErrorHandlers: errorHandlers}
}

// Run executes the handler chain, then final, against req/res.
//
// If a middleware finalizes the response without calling next, the chain
// terminates cleanly (spec.md §4.3): Run returns nil. If next(err) is
// called at any point, the error chain runs; if no error middleware
// resolves it (via a bare next()), Run returns that error so the caller
// can emit the default 500. A middleware that finalizes the response
// takes precedence over any later next call racing it — Finalized() is
// checked before every continuation step.
func (c *Chain) Run(req *reqctx.Request, res ResponseWriter, final Handler) error {
	var errOut error

	var runError func(i int, err error)
	runError = func(i int, err error) {
		if res.Finalized() {
			return
		}
		if i >= len(c.ErrorHandlers) {
			errOut = err
			return
		}
		errOut = err // stays unresolved unless a handler calls next()
		c.ErrorHandlers[i](err, req, res, func(nextErr error) {
			if nextErr != nil {
				runError(i+1, nextErr)
				return
			}
			errOut = nil // next() with no error: resolved, chain exits cleanly
		})
	}

	var runHandler func(i int)
	runHandler = func(i int) {
		if res.Finalized() {
			return
		}
		if i >= len(c.Handlers) {
			if final != nil {
				final(req, res, func(err error) {
					if err != nil {
						runError(0, err)
						return
					}
				})
			}
			return
		}
		c.Handlers[i](req, res, func(err error) {
			if err != nil {
				runError(0, err)
				return
			}
			runHandler(i + 1)
		})
	}

	runHandler(0)
	return errOut
}
