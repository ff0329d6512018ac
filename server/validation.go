package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/middleware"
	"github.com/example/mockgw/internal/reqctx"

	msconfig "github.com/example/mockgw/config"
)

// validateRequestParams returns a middleware.Handler that validates a
// request's path, query and header parameters against a route's declared
// ParamDefs:
//   - Required parameters must be present, otherwise a 400 is returned.
//   - Parameter values are type-checked (string, integer, boolean).
//   - Enum values are enforced if defined.
func validateRequestParams(route msconfig.RouteConfig) middleware.Handler {
	check := func(raw, key string, def msconfig.ParamDef, kind string) *apierr.Error {
		if def.Required && raw == "" {
			return apierr.New(apierr.MalformedBody, fmt.Sprintf("missing required %s: %s", kind, key)).
				WithStatus(http.StatusBadRequest)
		}

		if raw != "" {
			if err := validateType(raw, def.Type); err != nil {
				return apierr.New(apierr.MalformedBody, fmt.Sprintf("invalid %s %s: %v", kind, key, err)).
					WithStatus(http.StatusBadRequest)
			}
			if err := validateEnum(raw, def.Enum); err != nil {
				return apierr.New(apierr.MalformedBody, fmt.Sprintf("%s %s: %v", kind, key, err)).
					WithStatus(http.StatusBadRequest)
			}
		}
		return nil
	}

	return func(req *reqctx.Request, res middleware.ResponseWriter, next middleware.Next) {
		for key, def := range route.PathParams {
			if err := check(req.Params[key], key, def, "path param"); err != nil {
				next(err)
				return
			}
		}
		for key, def := range route.QueryParams {
			if err := check(req.Query.Get(key), key, def, "query param"); err != nil {
				next(err)
				return
			}
		}
		for key, def := range route.RequestHeaders {
			if err := check(req.Header(key), key, def, "header"); err != nil {
				next(err)
				return
			}
		}
		next(nil)
	}
}

// validateType checks a raw string value against a declared param type.
func validateType(raw, typ string) error {
	switch strings.ToLower(typ) {
	case "", "string":
		return nil
	case "integer", "int":
		if _, err := strconv.Atoi(raw); err != nil {
			return fmt.Errorf("expected integer, got '%s'", raw)
		}
	case "boolean", "bool":
		if _, err := strconv.ParseBool(raw); err != nil {
			return fmt.Errorf("expected boolean, got '%s'", raw)
		}
	default:
		return fmt.Errorf("unsupported param type: %s", typ)
	}
	return nil
}

// validateEnum ensures raw is one of the allowed enum values, when any are declared.
func validateEnum(raw string, enum []string) error {
	if len(enum) == 0 {
		return nil
	}
	for _, v := range enum {
		if raw == v {
			return nil
		}
	}
	return fmt.Errorf("must be one of %v, got '%s'", enum, raw)
}
