package server

import (
	"net/http"
	"strings"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/middleware"
	"github.com/example/mockgw/internal/reqctx"

	msconfig "github.com/example/mockgw/config"
)

// authMiddleware validates requests based on AuthConfig (global or
// route-specific). Route-level config overrides global config. Supports
// API Key (header/query) and Bearer token authentication.
func authMiddleware(globalAuth, routeAuth *msconfig.AuthConfig) middleware.Handler {
	return func(req *reqctx.Request, res middleware.ResponseWriter, next middleware.Next) {
		auth := globalAuth
		if routeAuth != nil {
			auth = routeAuth
		}

		if auth == nil || !auth.Enabled {
			next(nil)
			return
		}

		if auth.Type == "" || auth.In == "" || auth.Name == "" {
			next(apierr.New(apierr.HandlerError, "authentication misconfigured"))
			return
		}

		var credential string
		switch strings.ToLower(auth.In) {
		case "header":
			credential = req.Header(auth.Name)
		case "query":
			credential = req.Query.Get(auth.Name)
		default:
			next(apierr.New(apierr.HandlerError, "unsupported auth location"))
			return
		}

		if credential == "" {
			next(apierr.New(apierr.HandlerError, "missing authentication credential").WithStatus(http.StatusUnauthorized))
			return
		}

		switch strings.ToLower(auth.Type) {
		case "apikey":
			if !_contains(auth.Keys, credential) {
				next(apierr.New(apierr.HandlerError, "invalid API key").WithStatus(http.StatusUnauthorized))
				return
			}
		case "bearer":
			token := strings.TrimSpace(strings.TrimPrefix(credential, "Bearer"))
			if !_contains(auth.Keys, token) {
				next(apierr.New(apierr.HandlerError, "invalid bearer token").WithStatus(http.StatusUnauthorized))
				return
			}
		default:
			next(apierr.New(apierr.HandlerError, "unsupported authentication type"))
			return
		}

		next(nil)
	}
}

// _contains checks if a string exists in a slice.
func _contains(slice []string, val string) bool {
	for _, v := range slice {
		if v == val {
			return true
		}
	}
	return false
}
