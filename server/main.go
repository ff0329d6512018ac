package server

import (
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/bodyparser"
	"github.com/example/mockgw/internal/dispatcher"
	"github.com/example/mockgw/internal/fsengine"
	"github.com/example/mockgw/internal/middleware"
	"github.com/example/mockgw/internal/pattern"
	"github.com/example/mockgw/internal/reqctx"
	"github.com/example/mockgw/internal/ws"

	msconfig "github.com/example/mockgw/config"
	appinfo "github.com/example/mockgw/internal/appinfo"
	mslogger "github.com/example/mockgw/logger"
	msServerHandlers "github.com/example/mockgw/server/handlers"
	msUtils "github.com/example/mockgw/utils"
)

// StartServer initializes and configures the Fiber application.
//
// It orchestrates the following bootstrap process:
// 1. Configures the Fiber app engine (panic recovery, CORS, request logging).
// 2. Builds the dispatcher pipeline from cfg.Handlers and mounts it as a
//    single catch-all route, forking to a WebSocket upgrade when requested.
// 3. Mounts internal endpoints (console, OpenAPI/Swagger, debug).
//
// Returns the configured *fiber.App instance ready for listening.
func StartServer(cfg *msconfig.Config, configFilePath string) *fiber.App {
	msServerHandlers.StartLogAggregator()

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          fiberErrorHandler,
	})

	setupMiddleware(app, cfg)

	disp, wsRegistry, err := buildDispatcher(cfg, configFilePath)
	if err != nil {
		msUtils.StopWithError("Failed to build dispatcher", err)
	}

	SetupConsoleRoutes(app, cfg)

	app.Get("/openapi.json", func(c *fiber.Ctx) error {
		return c.JSON(generateOpenAPISpec(cfg))
	})
	app.Get(cfg.Server.SwaggerUIPath, swaggerUIHandler)

	if cfg.Server.Debug != nil && cfg.Server.Debug.Enabled {
		setupDebugRoutes(app, cfg)
	}

	wsByPath := indexWSRoutes(cfg.WSHandlers)

	app.Use(func(c *fiber.Ctx) error {
		req := buildRequest(c)

		if cfg.Server.EnableWS && len(wsByPath) > 0 {
			if route, params, ok := matchWSRoute(wsByPath, req.Path); ok && dispatcher.IsWebSocketUpgrade(req) {
				for k, v := range params {
					req.Params[k] = v
				}
				return handleWebSocketUpgrade(c, req, route, wsRegistry)
			}
		}

		res := newFiberResponseWriter(c)
		rawBody := c.Body()
		err := disp.Dispatch(req, res, rawBody)

		c.Locals(msServerHandlers.CtxRouteType, res.routeType)
		c.Locals(msServerHandlers.CtxRouteName, res.routeName)
		if res.upstreamURL != "" {
			c.Locals(msServerHandlers.CtxUpstreamURL, res.upstreamURL)
			c.Locals(msServerHandlers.CtxUpstreamStatus, res.upstreamStatus)
			c.Locals(msServerHandlers.CtxUpstreamTimeMs, res.upstreamTimeMs)
		}
		return err
	})

	printRouteTable(cfg)

	return app
}

// fiberErrorHandler is the outermost safety net: apierr-tagged errors map to
// their taxonomy status, anything else to a generic 500. Route-level errors
// are normally already resolved by the dispatcher itself; this only catches
// errors raised outside it (panics recovered as errors, ambient routes).
func fiberErrorHandler(c *fiber.Ctx, err error) error {
	if ae, ok := apierr.As(err); ok {
		return c.Status(ae.Status).JSON(ae.ToBody())
	}
	if fe, ok := err.(*fiber.Error); ok {
		return c.Status(fe.Code).JSON(apierr.New(apierr.HandlerError, fe.Message).ToBody())
	}
	mslogger.LogError(fmt.Sprintf("unhandled error: %v", err))
	return c.Status(http.StatusInternalServerError).JSON(apierr.InternalServerError)
}

// setupMiddleware attaches global ambient middleware to the Fiber app.
func setupMiddleware(app *fiber.App, cfg *msconfig.Config) {
	app.Use(recover.New())

	if cfg.Server.CORS != nil && cfg.Server.CORS.Enabled {
		app.Use(cors.New(cors.Config{
			AllowOrigins:     strings.Join(cfg.Server.CORS.AllowOrigins, ","),
			AllowMethods:     strings.Join(cfg.Server.CORS.AllowMethods, ","),
			AllowHeaders:     strings.Join(cfg.Server.CORS.AllowHeaders, ","),
			AllowCredentials: cfg.Server.CORS.AllowCredentials,
		}))
	} else {
		app.Use(cors.New())
	}

	debugPath := ""
	if cfg.Server.Debug != nil {
		debugPath = cfg.Server.Debug.Path
	}
	app.Use(msServerHandlers.RequestLoggerMiddleware(debugPath))

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		consolePath := ""
		if cfg.Server.Console != nil {
			consolePath = cfg.Server.Console.Path
		}
		if (consolePath != "" && strings.HasPrefix(c.Path(), consolePath)) ||
			(debugPath != "" && strings.HasPrefix(c.Path(), debugPath)) {
			return err
		}
		mslogger.LogRoute(c.Method(), c.Path(), c.IP(), c.Response().StatusCode(), duration, "    ")
		return err
	})
}

// buildDispatcher compiles cfg.Handlers into a *dispatcher.Dispatcher: each
// route's pattern, middlewares, parser override and handler/FS variant are
// resolved once at startup, per the teacher's registerUserRoutes loop shape
// generalized onto internal/dispatcher.Route.
func buildDispatcher(cfg *msconfig.Config, configFilePath string) (*dispatcher.Dispatcher, *ws.Registry, error) {
	srv := cfg.Server

	disp := &dispatcher.Dispatcher{
		Prefixes:          srv.EndpointPrefix,
		GlobalParser:      resolveGlobalParser(srv.Parser),
		GlobalDelay:       time.Duration(srv.DelayMs) * time.Millisecond,
		GatewayTimeout:    time.Duration(srv.GatewayTimeoutMs) * time.Millisecond,
		NoHandlerAction:   dispatcher.NoHandlerAction(orDefault(srv.NoHandledRestFsRequestsAction, "404")),
		GlobalMiddlewares: resolveHandlerMiddlewares(cfg.HandlerMiddlewares),
		GlobalErrHandlers: resolveErrorMiddlewares(cfg.ErrorMiddlewares),
	}

	var fsEngine *fsengine.Engine
	if srv.FSDir != "" {
		fsDir := msUtils.ResolveMockFilePath(configFilePath, srv.FSDir)
		fsEngine = fsengine.New(fsDir)
		disp.FSFallback = &dispatcher.FSRoute{Engine: fsEngine}
		go watchFSDir(fsDir, fsEngine)
	}

	for _, route := range cfg.Handlers {
		if route.Disabled {
			continue
		}
		if err := msUtils.ValidateRouteMethod(route.Method); err != nil {
			return nil, nil, fmt.Errorf("route %q: %w", route.Name, err)
		}

		pat, err := pattern.Compile(srv.APIPrefix + route.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("route %q: %w", route.Name, err)
		}

		r := &dispatcher.Route{
			Pattern: pat,
			Method:  strings.ToUpper(route.Method),
			Parser:  resolveParserPipeline(route.Parser),
		}
		if route.DelayMs != nil {
			d := time.Duration(*route.DelayMs) * time.Millisecond
			r.Delay = &d
		}

		mw := []middleware.Handler{authMiddleware(srv.Auth, route.Auth)}
		if len(route.PathParams) > 0 || len(route.QueryParams) > 0 || len(route.RequestHeaders) > 0 {
			mw = append(mw, validateRequestParams(route))
		}
		r.Middlewares = mw

		switch {
		case route.Function != nil:
			h, err := buildFunctionHandler(route, srv, configFilePath)
			if err != nil {
				return nil, nil, fmt.Errorf("route %q: %w", route.Name, err)
			}
			r.Handler = h
		case route.FS != nil:
			if fsEngine == nil {
				return nil, nil, fmt.Errorf("route %q: fs handler requires server.fs_dir to be set", route.Name)
			}
			relPath := route.FS.RelPath
			r.FS = &dispatcher.FSRoute{
				Engine:  fsEngine,
				Options: buildFSOptions(cfg, route),
				RelPath: func(req *reqctx.Request) string {
					if relPath != "" {
						return substitutePathParams(relPath, req.Params)
					}
					return req.Path
				},
			}
		default:
			return nil, nil, fmt.Errorf("route %q: neither function nor fs is configured", route.Name)
		}

		disp.Routes = append(disp.Routes, r)
	}

	var registry *ws.Registry
	if cfg.Server.EnableWS {
		registry = ws.NewRegistry()
	}

	return disp, registry, nil
}

// watchFSDir invalidates engine's resolution cache whenever a file is
// added or removed under dir, mirroring the config-file fsnotify watch in
// root main.go but scoped to the mock directory's tree shape rather than
// a single file's contents.
func watchFSDir(dir string, engine *fsengine.Engine) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		mslogger.LogWarn(fmt.Sprintf("fs_dir watcher unavailable: %v", err))
		return
	}
	defer watcher.Close()

	if err := addRecursive(watcher, dir); err != nil {
		mslogger.LogWarn(fmt.Sprintf("fs_dir watcher failed to watch %s: %v", dir, err))
		return
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				engine.InvalidateCache()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			mslogger.LogWarn(fmt.Sprintf("fs_dir watcher error: %v", err))
		}
	}
}

func addRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

// substitutePathParams replaces "{name}" tokens in relPath with the
// matched route parameters, for FS routes that remap onto a different
// on-disk layout than the request path.
func substitutePathParams(relPath string, params map[string]string) string {
	out := relPath
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

func resolveGlobalParser(pc *msconfig.ParserConfig) bodyparser.Pipeline {
	p := resolveParserPipeline(pc)
	if p == nil {
		return bodyparser.Default
	}
	return *p
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func setupDebugRoutes(app *fiber.App, cfg *msconfig.Config) {
	debugRequestPath := cfg.Server.Debug.Path + "/requests"
	debugHealthPath := cfg.Server.Debug.Path + "/health"

	app.Get(debugRequestPath, markInternal(msServerHandlers.DebugRequestsHandler))

	routeCount, mockCount, fetchCount := routeStats(cfg)
	app.Get(debugHealthPath, markInternal(
		msServerHandlers.HealthHandler(routeCount, mockCount, fetchCount, appinfo.Version)))
}

// markInternal tags a directly-mounted Fiber route (console/debug/docs) as
// RouteTypeInternal for the request logger, mirroring the side-channel the
// dispatcher catch-all populates for dispatched routes.
func markInternal(h fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(msServerHandlers.CtxRouteType, msServerHandlers.RouteTypeInternal)
		return h(c)
	}
}

func routeStats(cfg *msconfig.Config) (routeCount, mockCount, fetchCount int) {
	for _, route := range cfg.Handlers {
		if route.Disabled {
			continue
		}
		routeCount++
		if route.Function == nil {
			continue
		}
		if route.Function.Mock != nil {
			mockCount++
		}
		if route.Function.Fetch != nil {
			fetchCount++
		}
	}
	return
}

// printRouteTable prints a boot-time summary of registered REST and
// WebSocket routes, replacing the teacher's per-route fmt.Println/LogRoute
// spam with a single pterm table, in the style of scripts/builder.go.
func printRouteTable(cfg *msconfig.Config) {
	rows := pterm.TableData{{"METHOD", "PATH", "KIND"}}
	for _, route := range cfg.Handlers {
		if route.Disabled {
			continue
		}
		kind := "fs"
		if route.Function != nil {
			kind = "function"
		}
		rows = append(rows, []string{strings.ToUpper(route.Method), cfg.Server.APIPrefix + route.Path, kind})
	}
	for _, route := range cfg.WSHandlers {
		if route.Disabled {
			continue
		}
		rows = append(rows, []string{"WS", route.Path, "websocket"})
	}
	if len(rows) <= 1 {
		return
	}
	_ = pterm.DefaultTable.WithHasHeader().WithBoxed().WithData(rows).Render()
}

// indexWSRoutes compiles each enabled WS route's pattern once at startup.
func indexWSRoutes(routes []msconfig.WSRouteConfig) []compiledWSRoute {
	out := make([]compiledWSRoute, 0, len(routes))
	for _, r := range routes {
		if r.Disabled {
			continue
		}
		pat, err := pattern.Compile(r.Path)
		if err != nil {
			mslogger.LogError(fmt.Sprintf("WS route %q: invalid path pattern: %v", r.Name, err))
			continue
		}
		out = append(out, compiledWSRoute{pattern: pat, cfg: r})
	}
	return out
}

type compiledWSRoute struct {
	pattern *pattern.Pattern
	cfg     msconfig.WSRouteConfig
}

func matchWSRoute(routes []compiledWSRoute, path string) (msconfig.WSRouteConfig, map[string]string, bool) {
	for _, r := range routes {
		if params, ok := r.pattern.Match(path); ok {
			return r.cfg, params, true
		}
	}
	return msconfig.WSRouteConfig{}, nil, false
}

// handleWebSocketUpgrade performs the C7 handshake over the inbound Fiber
// request and, on success, hijacks the underlying connection into a
// ws.Connection, per spec.md §4.6. Grounded on fasthttp's RequestCtx.Hijack
// as the only way to step outside Fiber's request/response cycle onto the
// raw net.Conn the hand-rolled frame stack needs.
func handleWebSocketUpgrade(c *fiber.Ctx, req *reqctx.Request, route msconfig.WSRouteConfig, registry *ws.Registry) error {
	header := http.Header{}
	for k, vs := range req.Headers {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	if err := ws.ValidateUpgrade(header); err != nil {
		ae, _ := apierr.As(err)
		return c.Status(ae.Status).JSON(ae.ToBody())
	}

	var authErr error
	authMiddleware(nil, route.Auth)(req, nil, func(err error) { authErr = err })
	if authErr != nil {
		ae, _ := apierr.As(authErr)
		return c.Status(ae.Status).JSON(ae.ToBody())
	}

	accept := ws.ComputeAccept(header.Get("Sec-WebSocket-Key"))
	subprotocol := ws.NegotiateSubprotocol(route.Subprotocols, header.Get("Sec-WebSocket-Protocol"))

	var deflateOpts ws.DeflateOptions
	if route.Deflate != nil {
		deflateOpts = ws.DeflateOptions{Enabled: route.Deflate.Enabled, Strict: route.Deflate.Strict}
	}
	offers := ws.ParseExtensions(header.Get("Sec-WebSocket-Extensions"))
	neg, extHeader, deflateOK := ws.NegotiateDeflate(offers, deflateOpts)

	connID := uuid.NewString()
	opts := ws.Options{
		DefaultRoom:       route.DefaultRoom,
		Heartbeat:         time.Duration(route.HeartbeatMs) * time.Millisecond,
		InactivityTimeout: time.Duration(route.InactivityMs) * time.Millisecond,
	}
	if deflateOK {
		opts.Deflate = &neg
	}
	handlers := ws.Handlers{
		OnError: func(conn *ws.Connection, err error) {
			mslogger.LogWarn(fmt.Sprintf("ws %s: %v", conn.ID, err))
		},
	}

	c.Context().HijackSetNoResponse(true)
	c.Context().Hijack(func(netConn net.Conn) {
		defer netConn.Close()
		if err := writeHandshakeResponse(netConn, accept, subprotocol, extHeader); err != nil {
			return
		}
		conn, err := ws.NewConnection(connID, route.Path, subprotocol, netConn, registry, opts, handlers)
		if err != nil {
			return
		}
		conn.Run()
	})
	return nil
}

// writeHandshakeResponse writes the literal HTTP/1.1 101 response bytes
// onto the hijacked connection; per RFC 6455 §4.2.2, the handshake response
// is hand-assembled here rather than through Fiber, since Hijack takes the
// connection out of Fiber's response-writing path entirely.
func writeHandshakeResponse(netConn net.Conn, accept, subprotocol, extensions string) error {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Accept: %s\r\n", accept)
	if subprotocol != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Protocol: %s\r\n", subprotocol)
	}
	if extensions != "" {
		fmt.Fprintf(&b, "Sec-WebSocket-Extensions: %s\r\n", extensions)
	}
	b.WriteString("\r\n")
	_, err := netConn.Write([]byte(b.String()))
	return err
}
