package config

import (
	"encoding/json"
	"errors"

	"gopkg.in/yaml.v3"

	mslogger "github.com/example/mockgw/logger"
)

// CORSConfig, AuthConfig, DebugConfig, ConsoleConfig and their nested types
// are carried from the teacher unchanged: CORS/auth/console/debug are
// ambient server concerns untouched by the gateway rewrite.

type CORSConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	AllowOrigins     []string `json:"allow_origins" yaml:"allow_origins"`
	AllowMethods     []string `json:"allow_methods" yaml:"allow_methods"`
	AllowHeaders     []string `json:"allow_headers" yaml:"allow_headers"`
	AllowCredentials bool     `json:"allow_credentials" yaml:"allow_credentials"`
}

type AuthConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Type    string   `json:"type,omitempty" yaml:"type,omitempty"`
	In      string   `json:"in,omitempty" yaml:"in,omitempty"`
	Name    string   `json:"name,omitempty" yaml:"name,omitempty"`
	Keys    []string `json:"keys,omitempty" yaml:"keys,omitempty"`
}

type DebugConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"`
}

type ConsoleAuthConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`
}

type ConsoleConfig struct {
	Enabled bool               `json:"enabled" yaml:"enabled"`
	Path    string             `json:"path" yaml:"path"`
	Auth    *ConsoleAuthConfig `json:"auth" yaml:"auth"`
}

// ParserConfig is the bool-ish union of spec §6: a bare `false`/omitted
// value disables the parser for a scope, a bare `true` or an object
// enables it (optionally naming a registered custom pipeline).
type ParserConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	Pipeline string `json:"pipeline,omitempty" yaml:"pipeline,omitempty"`
}

// UnmarshalYAML accepts either a scalar bool or a mapping, matching the
// teacher's tolerant config style (e.g. ServerConfig.Debug's optional
// object). A bare `true`/mapping enables; `false` disables.
func (p *ParserConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return err
		}
		p.Enabled = enabled
		return nil
	}
	type alias ParserConfig
	a := alias{Enabled: true}
	if err := node.Decode(&a); err != nil {
		return err
	}
	*p = ParserConfig(a)
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML for the JSON config format.
func (p *ParserConfig) UnmarshalJSON(data []byte) error {
	var enabled bool
	if err := json.Unmarshal(data, &enabled); err == nil {
		p.Enabled = enabled
		return nil
	}
	type alias ParserConfig
	a := alias{Enabled: true}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = ParserConfig(a)
	return nil
}

// PaginationSpecConfig mirrors internal/paginate.Spec for config-file
// representation, per spec §3's PaginationSpec.
type PaginationSpecConfig struct {
	Source   string `json:"source" yaml:"source"` // "query" | "body"
	Root     string `json:"root,omitempty" yaml:"root,omitempty"`
	LimitKey string `json:"limit_key,omitempty" yaml:"limit_key,omitempty"`
	SkipKey  string `json:"skip_key,omitempty" yaml:"skip_key,omitempty"`
	SortKey  string `json:"sort_key,omitempty" yaml:"sort_key,omitempty"`
	OrderKey string `json:"order_key,omitempty" yaml:"order_key,omitempty"`
}

// FilterRuleConfig mirrors one internal/filter.Rule, per spec §3's
// FilterSpec.
type FilterRuleConfig struct {
	Key        string `json:"key" yaml:"key"`
	Field      string `json:"field,omitempty" yaml:"field,omitempty"`
	ValueType  string `json:"value_type" yaml:"value_type"`
	Comparison string `json:"comparison" yaml:"comparison"`
	RegexFlags string `json:"regex_flags,omitempty" yaml:"regex_flags,omitempty"`
}

// PaginationOverride implements the per-handler merge rule of spec §4.4:
// "none" disables, {mode: inclusive} layers handler keys over the global
// spec, {mode: exclusive} (the default for an object form) replaces the
// global spec entirely.
type PaginationOverride struct {
	Disabled bool
	Mode     string // "inclusive" | "exclusive"
	Spec     PaginationSpecConfig
}

func (o *PaginationOverride) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s == "none" {
			o.Disabled = true
			return nil
		}
		return &yaml.TypeError{Errors: []string{"pagination override string must be \"none\""}}
	}
	type alias struct {
		Mode string `yaml:"mode"`
		PaginationSpecConfig `yaml:",inline"`
	}
	var a alias
	a.Mode = "exclusive"
	if err := node.Decode(&a); err != nil {
		return err
	}
	o.Mode = a.Mode
	o.Spec = a.PaginationSpecConfig
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML for the JSON config format.
func (o *PaginationOverride) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "none" {
			return errors.New("pagination override string must be \"none\"")
		}
		o.Disabled = true
		return nil
	}
	type alias struct {
		Mode string `json:"mode"`
		PaginationSpecConfig
	}
	a := alias{Mode: "exclusive"}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	o.Mode = a.Mode
	o.Spec = a.PaginationSpecConfig
	return nil
}

// FilterOverride is the filter-rule analogue of PaginationOverride.
type FilterOverride struct {
	Disabled bool
	Mode     string
	Rules    []FilterRuleConfig
}

func (o *FilterOverride) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		if s == "none" {
			o.Disabled = true
			return nil
		}
		return &yaml.TypeError{Errors: []string{"filters override string must be \"none\""}}
	}
	type alias struct {
		Mode  string             `yaml:"mode"`
		Rules []FilterRuleConfig `yaml:"rules"`
	}
	a := alias{Mode: "exclusive"}
	if err := node.Decode(&a); err != nil {
		return err
	}
	o.Mode = a.Mode
	o.Rules = a.Rules
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML for the JSON config format.
func (o *FilterOverride) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "none" {
			return errors.New("filters override string must be \"none\"")
		}
		o.Disabled = true
		return nil
	}
	type alias struct {
		Mode  string             `json:"mode"`
		Rules []FilterRuleConfig `json:"rules"`
	}
	a := alias{Mode: "exclusive"}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	o.Mode = a.Mode
	o.Rules = a.Rules
	return nil
}

// JSONSchema is a small recursive JSON Schema subset used to validate a
// function route's request body (Properties/Items/Required/Enum/Min-Max),
// kept from the teacher's schema validator unchanged.
type JSONSchema struct {
	Type                  string                 `json:"type,omitempty" yaml:"type,omitempty"`
	Properties            map[string]*JSONSchema `json:"properties,omitempty" yaml:"properties,omitempty"`
	Required              []string               `json:"required,omitempty" yaml:"required,omitempty"`
	AdditionalProperties  bool                   `json:"additional_properties,omitempty" yaml:"additional_properties,omitempty"`
	Items                 *JSONSchema            `json:"items,omitempty" yaml:"items,omitempty"`
	MinLength             *int                   `json:"min_length,omitempty" yaml:"min_length,omitempty"`
	MaxLength             *int                   `json:"max_length,omitempty" yaml:"max_length,omitempty"`
	Pattern               string                 `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Enum                  []interface{}          `json:"enum,omitempty" yaml:"enum,omitempty"`
	Minimum               *float64               `json:"minimum,omitempty" yaml:"minimum,omitempty"`
	Maximum               *float64               `json:"maximum,omitempty" yaml:"maximum,omitempty"`
}

// CResponse, StatefulConfig, CaseConfig, MockConfig and FetchConfig are
// carried from the teacher unchanged: they remain the body of a "function"
// handler's response logic, now invoked from internal/dispatcher.Handler
// instead of Fiber's *fiber.Ctx handler signature.

type CResponse struct {
	Status  int                `json:"status" yaml:"status"`
	Body    interface{}        `json:"body,omitempty" yaml:"body,omitempty"`
	Headers map[string]string  `json:"headers,omitempty" yaml:"headers,omitempty"`
	DelayMs int                `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
}

type StatefulConfig struct {
	Collection string `json:"collection" yaml:"collection"`
	Action     string `json:"action" yaml:"action"`
	IDField    string `json:"id_field" yaml:"id_field"`
}

type CaseConfig struct {
	When string    `json:"when" yaml:"when"`
	Then CResponse `json:"then" yaml:"then"`
}

type MockConfig struct {
	Body    interface{}       `json:"body,omitempty" yaml:"body,omitempty"`
	File    string            `json:"file,omitempty" yaml:"file,omitempty"`
	Status  int               `json:"status" yaml:"status"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	DelayMs int               `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
}

type FetchConfig struct {
	URL         string            `json:"url" yaml:"url"`
	Method      string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers     map[string]string `json:"headers" yaml:"headers"`
	QueryParams map[string]string `json:"query_params" yaml:"query_params"`
	PassStatus  bool              `json:"pass_status" yaml:"pass_status"`
	DelayMs     int               `json:"delay_ms" yaml:"delay_ms"`
	TimeoutMs   int               `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

// FunctionConfig is the "function" route variant of spec §3: a custom
// handler whose response is produced by the teacher's mock/cases/fetch/
// stateful primitives rather than the filesystem engine.
type FunctionConfig struct {
	Mock       *MockConfig     `json:"mock,omitempty" yaml:"mock,omitempty"`
	Cases      []CaseConfig    `json:"cases,omitempty" yaml:"cases,omitempty"`
	Fetch      *FetchConfig    `json:"fetch,omitempty" yaml:"fetch,omitempty"`
	Stateful   *StatefulConfig `json:"stateful,omitempty" yaml:"stateful,omitempty"`
	BodySchema *JSONSchema     `json:"body_schema,omitempty" yaml:"body_schema,omitempty"`
}

// FSHandlerConfig is the FS / FS+pre-post / FS+pagination-filter route
// variant of spec §3: the request is served by internal/fsengine against
// RelPath, with optional pagination/filter merge overrides.
type FSHandlerConfig struct {
	RelPath    string              `json:"rel_path,omitempty" yaml:"rel_path,omitempty"`
	Pagination *PaginationOverride `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	Filters    *FilterOverride     `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// ParamDef validates one path/query/header parameter for a route, kept
// from the teacher's validateRequestParams unchanged. Description/Example
// are additive over the teacher's shape, carried only for OpenAPI
// generation (openapi.go) and never consulted by validateRequestParams.
type ParamDef struct {
	Required    bool        `json:"required,omitempty" yaml:"required,omitempty"`
	Type        string      `json:"type,omitempty" yaml:"type,omitempty"` // string|integer|boolean
	Enum        []string    `json:"enum,omitempty" yaml:"enum,omitempty"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Example     interface{} `json:"example,omitempty" yaml:"example,omitempty"`
}

// RouteConfig is one registered REST handler (spec §3's Route). Exactly
// one of Function or FS should be set; Function wins if both are, mirroring
// internal/dispatcher.Route's Handler/FS precedence.
type RouteConfig struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Tag         string `json:"tag,omitempty" yaml:"tag,omitempty"`
	Method      string `json:"method" yaml:"method"`
	Path        string `json:"path" yaml:"path"`
	Disabled    bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`

	DelayMs *int          `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`
	Parser  *ParserConfig `json:"parser,omitempty" yaml:"parser,omitempty"`
	Auth    *AuthConfig   `json:"auth,omitempty" yaml:"auth,omitempty"`

	PathParams     map[string]ParamDef `json:"path_params,omitempty" yaml:"path_params,omitempty"`
	QueryParams    map[string]ParamDef `json:"query_params,omitempty" yaml:"query_params,omitempty"`
	RequestHeaders map[string]ParamDef `json:"request_headers,omitempty" yaml:"request_headers,omitempty"`

	Function *FunctionConfig  `json:"function,omitempty" yaml:"function,omitempty"`
	FS       *FSHandlerConfig `json:"fs,omitempty" yaml:"fs,omitempty"`
}

// DeflateConfig is a WS handler's permessage-deflate opt-in, per spec
// §4.6.
type DeflateConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	Strict  bool `json:"strict,omitempty" yaml:"strict,omitempty"`
}

// WSRouteConfig is one registered WebSocket handler (spec §3's WebSocket
// Connection owner, one per matched pattern).
type WSRouteConfig struct {
	Name              string         `json:"name" yaml:"name"`
	Path              string         `json:"path" yaml:"path"`
	Disabled          bool           `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Subprotocols      []string       `json:"subprotocols,omitempty" yaml:"subprotocols,omitempty"`
	DefaultRoom       string         `json:"default_room,omitempty" yaml:"default_room,omitempty"`
	HeartbeatMs       int            `json:"heartbeat_ms,omitempty" yaml:"heartbeat_ms,omitempty"`
	InactivityMs      int            `json:"inactivity_timeout_ms,omitempty" yaml:"inactivity_timeout_ms,omitempty"`
	Deflate           *DeflateConfig `json:"deflate,omitempty" yaml:"deflate,omitempty"`
	Auth              *AuthConfig    `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// MiddlewareRef names a registered middleware/error-middleware by key,
// resolved against the bootstrap's middleware registry (spec §3).
type MiddlewareRef struct {
	Name string `json:"name" yaml:"name"`
}

// ServerConfig holds every field consulted for every request, per
// SPEC_FULL §3.
type ServerConfig struct {
	Port    int    `json:"port" yaml:"port"`
	Disable bool   `json:"disable,omitempty" yaml:"disable,omitempty"`
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	GatewayTimeoutMs int `json:"gateway_timeout_ms,omitempty" yaml:"gateway_timeout_ms,omitempty"`
	DelayMs          int `json:"delay_ms,omitempty" yaml:"delay_ms,omitempty"`

	// EndpointPrefix accepts a string or list in YAML; see
	// UnmarshalYAML below.
	EndpointPrefix []string `json:"endpoint_prefix,omitempty" yaml:"endpoint_prefix,omitempty"`

	FSDir                         string `json:"fs_dir,omitempty" yaml:"fs_dir,omitempty"`
	EnableWS                      bool   `json:"enable_ws,omitempty" yaml:"enable_ws,omitempty"`
	NoHandledRestFsRequestsAction string `json:"no_handled_rest_fs_requests_action,omitempty" yaml:"no_handled_rest_fs_requests_action,omitempty"`

	Parser *ParserConfig `json:"parser,omitempty" yaml:"parser,omitempty"`

	Console        *ConsoleConfig    `json:"console" yaml:"console"`
	Debug          *DebugConfig      `json:"debug,omitempty" yaml:"debug,omitempty"`
	APIPrefix      string            `json:"api_prefix" yaml:"api_prefix"`
	DefaultHeaders map[string]string `json:"default_headers" yaml:"default_headers"`
	SwaggerUIPath  string            `json:"swagger_ui_path" yaml:"swagger_ui_path"`
	CORS           *CORSConfig       `json:"cors" yaml:"cors"`
	Auth           *AuthConfig       `json:"auth,omitempty" yaml:"auth,omitempty"`
}

// serverConfigAlias lets EndpointPrefix accept either a bare string or a
// list in the config file, matching the teacher's tolerance for
// string-or-list fields elsewhere (e.g. CORS origins as CSV or list).
type serverConfigAlias ServerConfig

func (s *ServerConfig) UnmarshalYAML(node *yaml.Node) error {
	// Wrap a bare-string endpoint_prefix in a one-item sequence before
	// decoding, since the alias's []string field rejects a scalar.
	n := *node
	n.Content = append([]*yaml.Node(nil), node.Content...)
	for i := 0; i+1 < len(n.Content); i += 2 {
		v := n.Content[i+1]
		if n.Content[i].Value == "endpoint_prefix" && v.Kind == yaml.ScalarNode && v.Tag != "!!null" {
			n.Content[i+1] = &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: []*yaml.Node{v}}
		}
	}
	var a serverConfigAlias
	if err := n.Decode(&a); err != nil {
		return err
	}
	*s = ServerConfig(a)
	return nil
}

// UnmarshalJSON mirrors UnmarshalYAML's string-or-list tolerance for
// endpoint_prefix in the JSON config format.
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if prefixRaw, ok := raw["endpoint_prefix"]; ok {
		var single string
		if err := json.Unmarshal(prefixRaw, &single); err == nil {
			raw["endpoint_prefix"], _ = json.Marshal([]string{single})
			if data, err = json.Marshal(raw); err != nil {
				return err
			}
		}
	}
	var a serverConfigAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*s = ServerConfig(a)
	return nil
}

// Config is the root configuration record, per SPEC_FULL §3.
type Config struct {
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	Server ServerConfig `json:"server" yaml:"server"`

	Handlers   []RouteConfig   `json:"handlers" yaml:"handlers"`
	WSHandlers []WSRouteConfig `json:"ws_handlers,omitempty" yaml:"ws_handlers,omitempty"`

	HandlerMiddlewares []MiddlewareRef `json:"handler_middlewares,omitempty" yaml:"handler_middlewares,omitempty"`
	ErrorMiddlewares   []MiddlewareRef `json:"error_middlewares,omitempty" yaml:"error_middlewares,omitempty"`

	Pagination map[string]PaginationSpecConfig `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	Filters    map[string][]FilterRuleConfig   `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// ApplyServerDefaults fills in every field a zero-value ServerConfig would
// otherwise leave unusable, logging once per implicit default chosen,
// matching the teacher's ApplyServerDefaults.
func (s *ServerConfig) ApplyServerDefaults() {
	if s.Port == 0 {
		s.Port = 5000
		mslogger.LogWarn("Config: server.port not set → using default 5000")
	}

	if s.GatewayTimeoutMs == 0 {
		s.GatewayTimeoutMs = 30000
	}

	if s.NoHandledRestFsRequestsAction == "" {
		s.NoHandledRestFsRequestsAction = "404"
	}

	if s.DefaultHeaders == nil {
		s.DefaultHeaders = map[string]string{"Content-Type": "application/json"}
	}

	if s.SwaggerUIPath == "" {
		s.SwaggerUIPath = "/docs"
	}

	if s.Debug == nil {
		s.Debug = &DebugConfig{}
	}
	if s.Debug.Path == "" {
		s.Debug.Path = "/__debug"
	}

	if s.Console == nil {
		s.Console = &ConsoleConfig{Enabled: true}
	}
	if s.Console.Path == "" {
		s.Console.Path = "/console"
	}
	if s.Console.Auth == nil {
		s.Console.Auth = &ConsoleAuthConfig{Enabled: true, Username: "admin", Password: "123"}
		mslogger.LogWarn("Console auth default credentials are in use (admin/1**)")
	}

	if s.CORS == nil {
		s.CORS = &CORSConfig{}
	}
	if s.CORS.Enabled {
		if len(s.CORS.AllowOrigins) == 0 {
			s.CORS.AllowOrigins = []string{"*"}
		}
		if len(s.CORS.AllowMethods) == 0 {
			s.CORS.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}
		}
		if len(s.CORS.AllowHeaders) == 0 {
			s.CORS.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
		}
	}
}
