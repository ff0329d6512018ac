package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	mslogger "github.com/example/mockgw/logger"
	msUtils "github.com/example/mockgw/utils"
)

// validPathRegex accepts the Ant-style path grammar internal/pattern
// compiles (?, *, **, {name}, {name:regex}) in addition to plain segments.
var validPathRegex = regexp.MustCompile(`^/[a-zA-Z0-9/\-_{}:.\[\]()+*?|\\]*$`)

const maxCasesPerRoute = 20

var rootRegex = regexp.MustCompile(
	`(request\.)?(body|query|headers|path)\.[a-zA-Z0-9_]+|method\b`,
)

var validComparisons = map[string]bool{
	"eq": true, "ne": true, "in": true, "nin": true, "lt": true, "lte": true,
	"gt": true, "gte": true, "regex": true,
}

var validValueTypes = map[string]bool{
	"string": true, "boolean": true, "number": true, "date": true, "*[]": true,
}

func validateAndApplyDefaults(cfg *Config, configFilePath string) error {
	cfg.Server.ApplyServerDefaults()

	if cfg.Server.Auth != nil && cfg.Server.Auth.Enabled {
		if err := validateAuth(cfg.Server.Auth); err != nil {
			return err
		}
	}

	if cfg.Server.Debug != nil && cfg.Server.Debug.Enabled {
		if !validPathRegex.MatchString(cfg.Server.Debug.Path) {
			return fmt.Errorf("invalid debug path '%s': must start with '/'", cfg.Server.Debug.Path)
		}
	}

	if cfg.Server.FSDir != "" {
		if _, err := os.Stat(msUtils.ResolveMockFilePath(configFilePath, cfg.Server.FSDir)); err != nil {
			return fmt.Errorf("server.fs_dir '%s' does not exist: %w", cfg.Server.FSDir, err)
		}
	}

	switch cfg.Server.NoHandledRestFsRequestsAction {
	case "", "404", "forward":
	default:
		return fmt.Errorf("server.no_handled_rest_fs_requests_action must be '404' or 'forward', got '%s'", cfg.Server.NoHandledRestFsRequestsAction)
	}

	for key, spec := range cfg.Pagination {
		if err := validatePaginationSpec(spec, fmt.Sprintf("pagination[%s]", key)); err != nil {
			return err
		}
	}
	for key, rules := range cfg.Filters {
		if err := validateFilterRules(rules, fmt.Sprintf("filters[%s]", key)); err != nil {
			return err
		}
	}

	seen := make(map[string]int, len(cfg.Handlers))
	for i, route := range cfg.Handlers {
		if err := validateRoute(&route, configFilePath); err != nil {
			return fmt.Errorf("handlers[%d] '%s' validation failed: %w", i, route.Name, err)
		}
		key := strings.ToUpper(route.Method) + " " + route.Path
		if first, dup := seen[key]; dup {
			mslogger.LogWarn(fmt.Sprintf(
				"handlers[%d] '%s' duplicates handlers[%d]'s (method, path) — the first-registered route wins, the rest are unreachable",
				i, route.Name, first,
			))
		} else {
			seen[key] = i
		}
		cfg.Handlers[i] = route
	}

	for i, ws := range cfg.WSHandlers {
		if err := validateWSRoute(&ws); err != nil {
			return fmt.Errorf("ws_handlers[%d] '%s' validation failed: %w", i, ws.Name, err)
		}
	}

	return nil
}

func validateAuth(auth *AuthConfig) error {
	if auth.Type == "" {
		return fmt.Errorf("auth.type is required when auth.enabled = true")
	}
	if auth.In != "header" && auth.In != "query" {
		return fmt.Errorf("auth.in must be either 'header' or 'query'")
	}
	return nil
}

func validateRoute(route *RouteConfig, configFilePath string) error {
	if _, ok := msUtils.AllowedMethods[strings.ToUpper(route.Method)]; !ok {
		return fmt.Errorf("invalid method '%s'", route.Method)
	}

	if !validPathRegex.MatchString(route.Path) {
		return fmt.Errorf("invalid path '%s'", route.Path)
	}

	if route.Function == nil && route.FS == nil {
		return fmt.Errorf("route '%s' must define exactly one of 'function' or 'fs'", route.Path)
	}
	if route.Function != nil && route.FS != nil {
		mslogger.LogWarn(fmt.Sprintf("route '%s': both 'function' and 'fs' defined, 'function' wins", route.Path))
	}

	if route.DelayMs != nil && *route.DelayMs < 0 {
		return fmt.Errorf("route '%s' delay_ms cannot be negative, got %d", route.Path, *route.DelayMs)
	}

	if route.Function != nil {
		if err := validateFunction(route.Function, route.Path, configFilePath); err != nil {
			return err
		}
	}

	if route.FS != nil {
		if route.FS.Pagination != nil && !route.FS.Pagination.Disabled {
			if err := validatePaginationSpec(route.FS.Pagination.Spec, fmt.Sprintf("route '%s' fs.pagination", route.Path)); err != nil {
				return err
			}
		}
		if route.FS.Filters != nil && !route.FS.Filters.Disabled {
			if err := validateFilterRules(route.FS.Filters.Rules, fmt.Sprintf("route '%s' fs.filters", route.Path)); err != nil {
				return err
			}
		}
	}

	return nil
}

func validateFunction(fn *FunctionConfig, routePath, configFilePath string) error {
	if fn.Stateful != nil {
		isWriteAction := fn.Stateful.Action == "create" || fn.Stateful.Action == "update"
		if isWriteAction && len(fn.Cases) == 0 && fn.Mock == nil {
			return fmt.Errorf("stateful route '%s' must define a 'mock' response or 'cases' to return the state", routePath)
		}
		if fn.Fetch != nil {
			mslogger.LogWarn(fmt.Sprintf("route '%s': both stateful and fetch defined, stateful runs first", routePath))
		}
		if err := validateStateful(fn.Stateful, routePath); err != nil {
			return err
		}
	}

	if len(fn.Cases) > 0 {
		if err := validateCases(fn.Cases, routePath); err != nil {
			return err
		}
	}

	if fn.Fetch != nil {
		if err := validateFetch(fn.Fetch, routePath); err != nil {
			return err
		}
	}

	if fn.Mock != nil {
		if err := validateMock(fn.Mock, routePath, configFilePath); err != nil {
			return err
		}
	}

	if len(fn.Cases) > 0 && fn.Mock != nil {
		mslogger.LogWarn(fmt.Sprintf("route '%s': cases defined, mock is used only when no case matches", routePath))
	}
	if len(fn.Cases) > 0 && fn.Fetch != nil {
		mslogger.LogWarn(fmt.Sprintf("route '%s': cases defined, fetch is used only when no case matches", routePath))
	}

	return nil
}

func validateFetch(fetch *FetchConfig, routePath string) error {
	if fetch.URL == "" {
		return fmt.Errorf("[route %s] fetch.url is required", routePath)
	}
	parsed, err := url.Parse(fetch.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("[route %s] fetch.url is invalid: '%s'", routePath, fetch.URL)
	}
	if fetch.DelayMs < 0 {
		return fmt.Errorf("[route %s] fetch.delay_ms cannot be negative, got %d", routePath, fetch.DelayMs)
	}
	return nil
}

func validateMock(mock *MockConfig, routePath string, configFilePath string) error {
	if mock.File != "" {
		if !strings.HasSuffix(mock.File, ".json") {
			return fmt.Errorf("[route %s] mock.file must be a .json file, got '%s'", routePath, mock.File)
		}
		mockFilePath := msUtils.ResolveMockFilePath(configFilePath, mock.File)
		if _, err := os.Stat(mockFilePath); err != nil {
			return fmt.Errorf("[route %s] mock.file not found: '%s'", routePath, mock.File)
		}
	}

	if mock.Status != 0 && (mock.Status < 100 || mock.Status > 599) {
		return fmt.Errorf("[route %s] mock.status must be between 100 and 599, got %d", routePath, mock.Status)
	}

	if mock.DelayMs < 0 {
		return fmt.Errorf("[route %s] mock.delay_ms cannot be negative, got %d", routePath, mock.DelayMs)
	}

	return nil
}

func validateStateful(cfg *StatefulConfig, routePath string) error {
	if cfg == nil {
		return nil
	}
	if cfg.Collection == "" {
		return fmt.Errorf("stateful route '%s' missing required field: 'collection'", routePath)
	}
	if cfg.Action == "" {
		return fmt.Errorf("stateful route '%s' missing required field: 'action'", routePath)
	}
	validActions := map[string]bool{"create": true, "get": true, "update": true, "delete": true, "list": true}
	if !validActions[cfg.Action] {
		return fmt.Errorf("stateful route '%s' has invalid action '%s'", routePath, cfg.Action)
	}
	return nil
}

func validateCases(cases []CaseConfig, routePath string) error {
	if len(cases) > maxCasesPerRoute {
		return fmt.Errorf("[route %s] too many cases (%d), max allowed is %d", routePath, len(cases), maxCasesPerRoute)
	}
	for i, c := range cases {
		if strings.TrimSpace(c.When) == "" {
			return fmt.Errorf("[route %s][case %d] when condition cannot be empty", routePath, i)
		}
		if err := validateConditionExpression(c.When); err != nil {
			return fmt.Errorf("[route %s][case %d] invalid condition: %w", routePath, i, err)
		}
		if err := validateCaseResponse(&c.Then, routePath, i); err != nil {
			return err
		}
	}
	return nil
}

func validateConditionExpression(expr string) error {
	expr = strings.TrimSpace(expr)
	if len(expr) > 256 {
		return fmt.Errorf("condition too long (max 256 chars)")
	}
	if strings.ContainsAny(expr, "`;$") {
		return fmt.Errorf("condition contains forbidden characters")
	}
	if len(rootRegex.FindAllString(expr, -1)) == 0 {
		return fmt.Errorf("condition must reference one of: body, query, headers, path, method")
	}
	return nil
}

func validateCaseResponse(resp *CResponse, routePath string, index int) error {
	if resp.Status < 100 || resp.Status > 599 {
		return fmt.Errorf("[route %s][case %d] invalid status code %d", routePath, index, resp.Status)
	}
	if resp.DelayMs < 0 {
		return fmt.Errorf("[route %s][case %d] delay_ms cannot be negative", routePath, index)
	}
	return nil
}

func validatePaginationSpec(spec PaginationSpecConfig, label string) error {
	if spec.Source != "query" && spec.Source != "body" {
		return fmt.Errorf("%s.source must be 'query' or 'body', got '%s'", label, spec.Source)
	}
	if spec.Source == "body" && spec.Root == "" {
		return fmt.Errorf("%s.root is required when source is 'body'", label)
	}
	return nil
}

func validateFilterRules(rules []FilterRuleConfig, label string) error {
	for i, r := range rules {
		if r.Key == "" {
			return fmt.Errorf("%s[%d].key is required", label, i)
		}
		if !validValueTypes[r.ValueType] {
			return fmt.Errorf("%s[%d].value_type '%s' is invalid", label, i, r.ValueType)
		}
		if !validComparisons[r.Comparison] {
			return fmt.Errorf("%s[%d].comparison '%s' is invalid", label, i, r.Comparison)
		}
		if r.Comparison == "regex" && r.ValueType != "string" {
			return fmt.Errorf("%s[%d]: 'regex' comparison requires value_type 'string'", label, i)
		}
	}
	return nil
}

func validateWSRoute(ws *WSRouteConfig) error {
	if !validPathRegex.MatchString(ws.Path) {
		return fmt.Errorf("invalid ws path '%s'", ws.Path)
	}
	if ws.HeartbeatMs < 0 {
		return fmt.Errorf("ws route '%s' heartbeat_ms cannot be negative", ws.Path)
	}
	if ws.InactivityMs < 0 {
		return fmt.Errorf("ws route '%s' inactivity_timeout_ms cannot be negative", ws.Path)
	}
	return nil
}
