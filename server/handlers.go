package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/dispatcher"
	"github.com/example/mockgw/internal/filter"
	"github.com/example/mockgw/internal/fsengine"
	"github.com/example/mockgw/internal/middleware"
	"github.com/example/mockgw/internal/paginate"
	"github.com/example/mockgw/internal/reqctx"

	msconfig "github.com/example/mockgw/config"
	mslogger "github.com/example/mockgw/logger"
	msServerHandlers "github.com/example/mockgw/server/handlers"
	server_utils "github.com/example/mockgw/server/utils"
	msUtils "github.com/example/mockgw/utils"
)

// GlobalStateStore holds the in-memory state for stateful routes.
// It is initialized once at startup.
var globalStateStore = server_utils.NewStateStore()

// mockHandler is the compiled, ready-to-invoke state of a "mock" function
// route: resolved status/headers/delay plus its pre-loaded body (inline or
// file), mirroring the teacher's MockHandler.
type mockHandler struct {
	status       int
	headers      map[string]string
	delayMs      int
	mockBodyData interface{}
	mockFileData []byte
	bodySchema   *msconfig.JSONSchema
}

// computeDelay determines the response delay based on a precedence
// hierarchy: Route Config > Function Config > Server Default.
func computeDelay(routeDelay *int, cfgDelay, defaultDelay int) int {
	delay := defaultDelay
	if cfgDelay != 0 {
		delay = cfgDelay
	}
	if routeDelay != nil && *routeDelay != 0 {
		delay = *routeDelay
	}
	if delay < 0 {
		return 0
	}
	return delay
}

func applyDelay(ms int) {
	if ms > 0 {
		time.Sleep(time.Duration(ms) * time.Millisecond)
	}
}

// newMockHandler resolves configuration precedence (status, headers) and
// pre-loads the mock data (inline body or file), per the teacher's
// newMockHandler in server/handlers.go.
func newMockHandler(fn *msconfig.FunctionConfig, route msconfig.RouteConfig, srvCfg msconfig.ServerConfig, configFilePath string) (*mockHandler, error) {
	cfg := fn.Mock

	status := 200
	if cfg.Status != 0 {
		status = cfg.Status
	}

	headers := mergeHeaders(srvCfg.DefaultHeaders, nil, cfg.Headers)
	delay := computeDelay(route.DelayMs, cfg.DelayMs, srvCfg.DelayMs)

	var (
		mockBodyData interface{}
		mockFileData []byte
	)

	if cfg.Body != nil {
		mockBodyData = cfg.Body
	} else if cfg.File != "" {
		mockFilePath := msUtils.ResolveMockFilePath(configFilePath, cfg.File)
		data, err := os.ReadFile(mockFilePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read mock file: %w", err)
		}
		mockFileData = data
	} else {
		return nil, fmt.Errorf("mock must define either 'body' or 'file'")
	}

	return &mockHandler{
		status:       status,
		headers:      headers,
		delayMs:      delay,
		mockBodyData: mockBodyData,
		mockFileData: mockFileData,
		bodySchema:   fn.BodySchema,
	}, nil
}

// handle executes the mock logic: optional schema validation, an artificial
// delay, then either inline template processing or legacy file-based
// filtering, per the teacher's MockHandler.handler.
func (m *mockHandler) handle(req *reqctx.Request, res middleware.ResponseWriter, ctx server_utils.EContext) error {
	applyDelay(m.delayMs)

	for k, v := range m.headers {
		res.SetHeader(k, v)
	}

	if m.bodySchema != nil {
		if err := server_utils.ValidateJSONSchema(m.bodySchema, interfaceBody(ctx.Body), "request.body"); err != nil {
			return apierr.New(apierr.MalformedBody, "request body failed schema validation").WithDetail(err.Error())
		}
	}

	var responseBody interface{}

	if m.mockBodyData != nil {
		processed, err := server_utils.ProcessTemplateJSON(m.mockBodyData, ctx)
		if err != nil {
			return apierr.Wrap(apierr.HandlerError, "failed to process mock template", err)
		}
		responseBody = processed
	} else {
		params := make(map[string]string, len(ctx.Path)+len(ctx.Query))
		for k, v := range ctx.Path {
			params[k] = v
		}
		for k, v := range ctx.Query {
			params[k] = v
		}
		filtered, err := parseAndFilterMockData(m.mockFileData, params)
		if err != nil {
			return apierr.Wrap(apierr.HandlerError, "failed to load mock data", err)
		}
		responseBody = filtered
	}

	res.Status(m.status)
	return res.JSON(responseBody)
}

// interfaceBody widens a map body into interface{} so it satisfies
// ValidateJSONSchema's data argument regardless of whether the body was
// present.
func interfaceBody(body map[string]interface{}) interface{} {
	if body == nil {
		return map[string]interface{}{}
	}
	return body
}

// fetchHandler is the compiled, ready-to-invoke state of a "fetch" (reverse
// proxy) function route, mirroring the teacher's FetchHandler.
type fetchHandler struct {
	targetURL        *url.URL
	method           string
	headers          map[string]string
	fetchQueryParams map[string]string
	passStatus       bool
	delayMs          int
	timeoutMs        int
}

func newFetchHandler(fn *msconfig.FunctionConfig, route msconfig.RouteConfig, srvCfg msconfig.ServerConfig) (*fetchHandler, error) {
	cfg := fn.Fetch

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse fetch URL: %w", err)
	}

	delay := computeDelay(route.DelayMs, cfg.DelayMs, srvCfg.DelayMs)

	return &fetchHandler{
		targetURL:        parsedURL,
		method:           cfg.Method,
		headers:          cfg.Headers,
		fetchQueryParams: cfg.QueryParams,
		passStatus:       cfg.PassStatus,
		delayMs:          delay,
		timeoutMs:        cfg.TimeoutMs,
	}, nil
}

// handle acts as a reverse proxy: it builds a downstream request, forwards
// allowed headers and the body, and enforces a timeout, per the teacher's
// FetchHandler.handler.
func (p *fetchHandler) handle(req *reqctx.Request, res middleware.ResponseWriter) error {
	start := time.Now()

	timeout := 10 * time.Second
	if p.timeoutMs > 0 {
		timeout = time.Duration(p.timeoutMs) * time.Millisecond
	}

	timeCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if p.delayMs > 0 {
		select {
		case <-time.After(time.Duration(p.delayMs) * time.Millisecond):
		case <-timeCtx.Done():
			return apierr.New(apierr.Timeout, fmt.Sprintf("request exceeded timeout of %d ms during delay", p.timeoutMs))
		}
	}

	method := p.method
	if method == "" {
		method = req.Method
	}

	pathParams := req.Params
	clientQueryParams := map[string]string{}
	for k, vs := range req.Query {
		if len(vs) > 0 {
			clientQueryParams[k] = vs[0]
		}
	}

	targetURL := buildTargetURL(p.targetURL, pathParams, clientQueryParams, p.fetchQueryParams)
	mslogger.LogInfo(fmt.Sprintf("Proxying request: %s %s", method, targetURL))

	var body io.Reader
	if method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch {
		body = bytes.NewReader(rawRequestBody(req))
	}

	httpReq, err := http.NewRequestWithContext(timeCtx, method, targetURL, body)
	if err != nil {
		mslogger.LogError(fmt.Sprintf("Failed to create request: %v", err))
		return apierr.Wrap(apierr.HandlerError, "failed to build upstream request", err)
	}

	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}
	for k, vs := range req.Headers {
		if _, overridden := p.headers[k]; overridden {
			continue
		}
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	client := &http.Client{}
	resp, err := client.Do(httpReq)
	if err != nil {
		if timeCtx.Err() == context.DeadlineExceeded {
			return apierr.New(apierr.Timeout, fmt.Sprintf("request exceeded timeout of %d ms", p.timeoutMs))
		}
		mslogger.LogError(fmt.Sprintf("Request failed: %v", err))
		return apierr.Wrap(apierr.HandlerError, "upstream request failed", err).WithStatus(http.StatusBadGateway)
	}
	defer resp.Body.Close()

	if w, ok := res.(*fiberResponseWriter); ok {
		w.upstreamURL = targetURL
		w.upstreamStatus = resp.StatusCode
		w.upstreamTimeMs = time.Since(start).Milliseconds()
	}

	if resp.StatusCode == http.StatusNotModified {
		mslogger.LogInfo("Upstream returned 304 Not Modified")
		res.Status(http.StatusNotModified)
		return res.JSON(map[string]interface{}{})
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		mslogger.LogError(fmt.Sprintf("Failed to read response body: %v", err))
		return apierr.Wrap(apierr.HandlerError, "failed reading upstream response", err)
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return apierr.New(apierr.HandlerError, "upstream rejected the proxied request").WithStatus(resp.StatusCode)
	}

	for k, vals := range resp.Header {
		for _, v := range vals {
			res.SetHeader(k, v)
		}
	}

	if p.passStatus {
		res.Status(resp.StatusCode)
	} else {
		res.Status(http.StatusOK)
	}
	return res.Send(bodyBytes)
}

func rawRequestBody(req *reqctx.Request) []byte {
	switch req.Body.Kind {
	case reqctx.BodyRaw:
		return req.Body.Raw
	case reqctx.BodyJSON:
		b, _ := json.Marshal(req.Body.JSON)
		return b
	default:
		return nil
	}
}

// handleStateError maps internal storage errors to the gateway's error
// taxonomy, per the teacher's handleStateError.
func handleStateError(err error, route msconfig.RouteConfig, ctx server_utils.EContext) error {
	if err == server_utils.StateErrNotFound {
		return apierr.New(apierr.NotFound, "item not found in collection").
			WithDetail(fmt.Sprintf("collection=%s id=%v", route.Function.Stateful.Collection, ctx.Path[route.Function.Stateful.IDField]))
	}
	if err == server_utils.StateErrConflict {
		return apierr.New(apierr.Conflict, "item already exists").
			WithDetail(fmt.Sprintf("collection=%s id=%v", route.Function.Stateful.Collection, ctx.Body[route.Function.Stateful.IDField]))
	}
	return apierr.Wrap(apierr.HandlerError, "stateful action failed", err)
}

// buildEContext packages a reqctx.Request's headers/query/params/body into
// the flat EContext the teacher's condition evaluator and template
// processor expect.
func buildEContext(req *reqctx.Request) server_utils.EContext {
	ctx := server_utils.EContext{
		Headers: map[string]string{},
		Query:   map[string]string{},
		Path:    req.Params,
		Body:    map[string]interface{}{},
	}
	for k, vs := range req.Headers {
		if len(vs) > 0 {
			ctx.Headers[k] = vs[0]
		}
	}
	for k, vs := range req.Query {
		if len(vs) > 0 {
			ctx.Query[k] = vs[0]
		}
	}
	if m, ok := req.Body.AsMap(); ok {
		ctx.Body = m
	}
	return ctx
}

// buildFunctionHandler constructs the dispatcher.Handler for a "function"
// route, reproducing the teacher's createRouteHandler pipeline: stateful
// CRUD, then conditional cases, then the base mock/fetch handler.
//
// Execution order:
//  1. Context build: package headers/query/params/body into an EContext.
//  2. Stateful: if configured, runs CRUD against the in-memory state store
//     before any response logic.
//  3. Cases: the first matching "when" condition's "then" response wins.
//  4. Base handler: the pre-compiled mock or fetch handler.
func buildFunctionHandler(route msconfig.RouteConfig, srvCfg msconfig.ServerConfig, configFilePath string) (dispatcher.Handler, error) {
	fn := route.Function

	var (
		mh  *mockHandler
		fh  *fetchHandler
		err error
	)
	if fn.Mock != nil {
		mh, err = newMockHandler(fn, route, srvCfg, configFilePath)
		if err != nil {
			return nil, err
		}
	} else if fn.Fetch != nil {
		fh, err = newFetchHandler(fn, route, srvCfg)
		if err != nil {
			return nil, err
		}
	}

	return func(req *reqctx.Request, res middleware.ResponseWriter) error {
		ctx := buildEContext(req)

		if w, ok := res.(*fiberResponseWriter); ok {
			w.routeName = route.Name
			switch {
			case fn.Mock != nil:
				w.routeType = msServerHandlers.RouteTypeMock
			case fn.Fetch != nil:
				w.routeType = msServerHandlers.RouteTypeFetch
			default:
				w.routeType = msServerHandlers.RouteTypeInternal
			}
		}

		if fn.Stateful != nil {
			if err := server_utils.ApplyStateful(globalStateStore, fn.Stateful, &ctx); err != nil {
				return handleStateError(err, route, ctx)
			}
		}

		for _, cs := range fn.Cases {
			match, err := server_utils.EvaluateCondition(cs.When, ctx)
			if err != nil {
				return apierr.Wrap(apierr.HandlerError, "case condition evaluation failed", err)
			}
			if !match {
				continue
			}
			applyDelay(cs.Then.DelayMs)
			for k, v := range cs.Then.Headers {
				res.SetHeader(k, v)
			}
			processed, err := server_utils.ProcessTemplateJSON(cs.Then.Body, ctx)
			if err != nil {
				return apierr.Wrap(apierr.HandlerError, "failed to process case template", err)
			}
			res.Status(cs.Then.Status)
			return res.JSON(processed)
		}

		if mh != nil {
			return mh.handle(req, res, ctx)
		}
		if fh != nil {
			return fh.handle(req, res)
		}

		return apierr.New(apierr.HandlerError, "function route defines no mock, fetch or stateful-only response")
	}, nil
}

// toPaginateSpec converts a config-file PaginationSpecConfig into the
// internal/paginate representation it mirrors field-for-field.
func toPaginateSpec(c msconfig.PaginationSpecConfig) paginate.Spec {
	source := paginate.SourceQuery
	if c.Source == "body" {
		source = paginate.SourceBody
	}
	return paginate.Spec{
		Source:   source,
		Root:     c.Root,
		LimitKey: c.LimitKey,
		SkipKey:  c.SkipKey,
		SortKey:  c.SortKey,
		OrderKey: c.OrderKey,
	}
}

// toFilterRules converts config-file FilterRuleConfig entries into
// internal/filter.Rule values, field-for-field.
func toFilterRules(rules []msconfig.FilterRuleConfig) []filter.Rule {
	out := make([]filter.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, filter.Rule{
			Key:        r.Key,
			Field:      r.Field,
			ValueType:  filter.ValueType(r.ValueType),
			Comparison: filter.Comparison(r.Comparison),
			RegexFlags: r.RegexFlags,
		})
	}
	return out
}

// buildFSOptions resolves a route's pagination/filter overrides against the
// global per-method named specs, implementing the "none" disables /
// "inclusive" layers / "exclusive" replaces merge rule that
// config.PaginationOverride and config.FilterOverride encode.
func buildFSOptions(cfg *msconfig.Config, route msconfig.RouteConfig) fsengine.Options {
	var opts fsengine.Options

	key := strings.ToUpper(route.Method)
	global, hasGlobal := cfg.Pagination[key]

	switch {
	case route.FS.Pagination == nil:
		if hasGlobal {
			spec := toPaginateSpec(global)
			opts.Pagination = &spec
		}
	case route.FS.Pagination.Disabled:
		// explicit "none": no pagination applied.
	default:
		spec := toPaginateSpec(route.FS.Pagination.Spec)
		if route.FS.Pagination.Mode == "inclusive" && hasGlobal {
			base := toPaginateSpec(global)
			spec = mergePaginationSpec(base, spec)
		}
		opts.Pagination = &spec
	}

	globalFilters, hasGlobalFilters := cfg.Filters[key]

	switch {
	case route.FS.Filters == nil:
		if hasGlobalFilters {
			opts.Filters = toFilterRules(globalFilters)
		}
	case route.FS.Filters.Disabled:
		// explicit "none": no filters applied.
	default:
		rules := toFilterRules(route.FS.Filters.Rules)
		if route.FS.Filters.Mode == "inclusive" && hasGlobalFilters {
			rules = append(toFilterRules(globalFilters), rules...)
		}
		opts.Filters = rules
	}

	return opts
}

// mergePaginationSpec layers override's non-zero fields over base, for the
// "inclusive" pagination merge mode.
func mergePaginationSpec(base, override paginate.Spec) paginate.Spec {
	merged := base
	if override.Source != "" {
		merged.Source = override.Source
	}
	if override.Root != "" {
		merged.Root = override.Root
	}
	if override.LimitKey != "" {
		merged.LimitKey = override.LimitKey
	}
	if override.SkipKey != "" {
		merged.SkipKey = override.SkipKey
	}
	if override.SortKey != "" {
		merged.SortKey = override.SortKey
	}
	if override.OrderKey != "" {
		merged.OrderKey = override.OrderKey
	}
	return merged
}
