// Package dispatcher implements C6: the REST dispatcher pipeline tying
// together route selection (C1), the middleware chain (C4), the body
// parser (C3) and the filesystem resource engine (C5), per spec.md §4.5.
//
// Grounded on the teacher's request lifecycle in server/handlers.go and
// server/main.go (prefix gate, route lookup, fiber handler invocation),
// generalized from Fiber's built-in routing into an explicit Route slice
// matched against internal/pattern, and from Fiber's ctx-scoped timeout
// helpers into an explicit gateway-timeout guard since this module has no
// framework-level request/response object to hook into.
package dispatcher

import (
	"strings"
	"time"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/bodyparser"
	"github.com/example/mockgw/internal/fsengine"
	"github.com/example/mockgw/internal/middleware"
	"github.com/example/mockgw/internal/pattern"
	"github.com/example/mockgw/internal/reqctx"
)

// Handler is a custom route's business logic, run after the handler
// middleware chain and the body parser.
type Handler func(req *reqctx.Request, res middleware.ResponseWriter) error

// FSRoute is the filesystem-backed route variant: a captured relative path
// is resolved against Engine, with optional Pre/Post hooks bracketing the
// engine call, per spec.md §3's {FS, FS+pre/post, FS+pagination/filter}
// route variants.
type FSRoute struct {
	Engine  *fsengine.Engine
	Options fsengine.Options
	// RelPath derives the engine-relative path for this request, typically
	// a captured "**" parameter or the post-prefix remainder of req.Path.
	RelPath func(req *reqctx.Request) string
	Pre     Handler
	Post    func(req *reqctx.Request, result *fsengine.Result) error
}

// Route is one registered (pattern, method) pairing. Routes are immutable
// after registration and matched in registration order: the first match
// wins on a duplicate (pattern, method) pair, per spec.md §9.
type Route struct {
	Pattern  *pattern.Pattern
	Method   string
	Disabled bool

	// Delay, if non-nil, overrides the dispatcher's global delay for this
	// route. Parser, if non-nil, overrides the global parser pipeline.
	Delay  *time.Duration
	Parser *bodyparser.Pipeline

	Middlewares      []middleware.Handler
	ErrorMiddlewares []middleware.ErrorHandler

	// Exactly one of Handler or FS should be set; Handler wins if both are.
	Handler Handler
	FS      *FSRoute
}

// NoHandlerAction controls step 3/9 behavior when no route matches and no
// FS fallback is configured, per spec.md §4.5.
type NoHandlerAction string

const (
	NoHandlerRespond404 NoHandlerAction = "404"
	NoHandlerForward    NoHandlerAction = "forward"
)

// Dispatcher runs the pipeline of spec.md §4.5 over a registered Route set.
type Dispatcher struct {
	// Prefixes gates membership (step 1): a request whose path matches
	// none of these is not this gateway's concern and is handed to
	// Forward, regardless of NoHandlerAction. An empty Prefixes means
	// every path is in scope.
	Prefixes []string
	Routes   []*Route

	// FSFallback, when set, synthesizes an FS route for any request that
	// matches no registered Route (step 3).
	FSFallback *FSRoute

	GlobalParser      bodyparser.Pipeline
	GlobalDelay       time.Duration
	GatewayTimeout    time.Duration
	NoHandlerAction   NoHandlerAction
	GlobalMiddlewares []middleware.Handler
	GlobalErrHandlers []middleware.ErrorHandler
	Forward           func(req *reqctx.Request, res middleware.ResponseWriter)
}

// IsWebSocketUpgrade reports whether req carries the headers of a
// WebSocket upgrade request (step 2). The HTTP bootstrap layer checks this
// before calling Dispatch and forks to the C7 handshake instead; Dispatch
// itself never handles upgrades.
func IsWebSocketUpgrade(req *reqctx.Request) bool {
	return strings.EqualFold(req.Header("Upgrade"), "websocket")
}

// Dispatch runs the full pipeline for one HTTP request. rawBody is the
// transport layer's already-read request body, handed to the parser
// pipeline unparsed.
func (d *Dispatcher) Dispatch(req *reqctx.Request, res middleware.ResponseWriter, rawBody []byte) error {
	if !d.inPrefix(req.Path) {
		if d.Forward != nil {
			d.Forward(req, res)
		}
		return nil
	}

	route, fsRoute := d.selectRoute(req)
	if route == nil && fsRoute == nil {
		return d.handleNoMatch(req, res)
	}

	guard := newTimeoutGuard(res)
	doneCh := make(chan error, 1)
	go func() {
		doneCh <- d.runPipeline(route, fsRoute, req, guard, rawBody)
	}()

	if d.GatewayTimeout <= 0 {
		return d.finishOrDefault(guard, <-doneCh)
	}

	select {
	case err := <-doneCh:
		return d.finishOrDefault(guard, err)
	case <-time.After(d.GatewayTimeout):
		guard.forceTimeout()
		return nil
	}
}

func (d *Dispatcher) inPrefix(path string) bool {
	if len(d.Prefixes) == 0 {
		return true
	}
	for _, p := range d.Prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// selectRoute finds the first matching registered route, falling back to
// a synthesized FS route when none match, per spec.md §4.5 step 3.
func (d *Dispatcher) selectRoute(req *reqctx.Request) (*Route, *FSRoute) {
	for _, r := range d.Routes {
		if r.Disabled || r.Method != req.Method {
			continue
		}
		params, ok := r.Pattern.Match(req.Path)
		if !ok {
			continue
		}
		for k, v := range params {
			req.Params[k] = v
		}
		return r, nil
	}
	if d.FSFallback != nil {
		return nil, d.FSFallback
	}
	return nil, nil
}

func (d *Dispatcher) handleNoMatch(req *reqctx.Request, res middleware.ResponseWriter) error {
	if d.NoHandlerAction == NoHandlerForward && d.Forward != nil {
		d.Forward(req, res)
		return nil
	}
	err := apierr.New(apierr.NoHandler, "no route matches this request")
	res.Status(err.Status)
	return res.JSON(err.ToBody())
}

// runPipeline runs handler middlewares, the parser, the delay, and finally
// the route/FS handler, all inside the middleware chain's final slot so
// any failure anywhere in that sequence enters the same error-middleware
// chain, per spec.md §4.5 steps 4-9.
func (d *Dispatcher) runPipeline(route *Route, fsRoute *FSRoute, req *reqctx.Request, res middleware.ResponseWriter, rawBody []byte) error {
	var handlers []middleware.Handler
	var errHandlers []middleware.ErrorHandler
	parser := d.GlobalParser
	delay := d.GlobalDelay

	if route != nil {
		handlers = append(append(handlers, d.GlobalMiddlewares...), route.Middlewares...)
		errHandlers = append(append(errHandlers, d.GlobalErrHandlers...), route.ErrorMiddlewares...)
		if route.Parser != nil {
			parser = *route.Parser
		}
		if route.Delay != nil {
			delay = *route.Delay
		}
		if fsRoute == nil && route.Handler == nil {
			fsRoute = route.FS
		}
	} else {
		handlers = d.GlobalMiddlewares
		errHandlers = d.GlobalErrHandlers
	}

	chain := middleware.New(handlers, errHandlers)
	err := chain.Run(req, res, func(req *reqctx.Request, res middleware.ResponseWriter, next middleware.Next) {
		contentType := req.Header("Content-Type")
		if err := parser.Run(req, contentType, rawBody); err != nil {
			next(err)
			return
		}

		if delay > 0 {
			time.Sleep(delay)
		}

		if fsRoute != nil {
			if err := d.runFSRoute(fsRoute, req, res); err != nil {
				next(err)
				return
			}
			next(nil)
			return
		}

		if route != nil && route.Handler != nil {
			if err := route.Handler(req, res); err != nil {
				next(err)
				return
			}
		}
		next(nil)
	})
	return err
}

func (d *Dispatcher) runFSRoute(fsRoute *FSRoute, req *reqctx.Request, res middleware.ResponseWriter) error {
	if fsRoute.Pre != nil {
		if err := fsRoute.Pre(req, res); err != nil {
			return err
		}
	}
	relPath := req.Path
	if fsRoute.RelPath != nil {
		relPath = fsRoute.RelPath(req)
	}
	result, err := fsRoute.Engine.Handle(req, relPath, fsRoute.Options)
	if err != nil {
		return err
	}
	if err := writeFSResult(res, result); err != nil {
		return err
	}
	if fsRoute.Post != nil {
		return fsRoute.Post(req, result)
	}
	return nil
}

func writeFSResult(res middleware.ResponseWriter, result *fsengine.Result) error {
	for k, v := range result.Headers {
		res.SetHeader(k, v)
	}
	res.Status(result.Status)
	if result.HeadersOnly {
		return res.Send(nil)
	}
	if result.JSON != nil {
		return res.JSON(result.JSON)
	}
	return res.Send(result.Raw)
}

// finishOrDefault emits the default error response (step 9) when the
// pipeline returned an unresolved error, mapping known *apierr.Error
// values to their taxonomy status rather than flattening everything to
// 500.
func (d *Dispatcher) finishOrDefault(guard *timeoutGuard, err error) error {
	if err == nil {
		return nil
	}
	if guard.Finalized() {
		return nil
	}
	if ae, ok := apierr.As(err); ok {
		guard.Status(ae.Status)
		return guard.JSON(ae.ToBody())
	}
	guard.Status(500)
	return guard.JSON(apierr.InternalServerError)
}
