package server

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/example/mockgw/internal/bodyparser"
	"github.com/example/mockgw/internal/middleware"
	"github.com/example/mockgw/internal/reqctx"

	msconfig "github.com/example/mockgw/config"
	mslogger "github.com/example/mockgw/logger"
)

// requestIDMiddleware stamps req.RequestID for logging correlation when the
// transport layer did not already set one, mirroring the uuid-per-request
// convention of server/handlers/debugRequestsHandler.go.
func requestIDMiddleware(req *reqctx.Request, res middleware.ResponseWriter, next middleware.Next) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	next(nil)
}

// logErrorsMiddleware logs an unhandled pipeline error before passing it
// along the error chain, in the teacher's mslogger.LogError style.
func logErrorsMiddleware(err error, req *reqctx.Request, res middleware.ResponseWriter, next middleware.Next) {
	mslogger.LogError(fmt.Sprintf("%s %s: %v", req.Method, req.Path, err))
	next(err)
}

var handlerMiddlewareRegistry = map[string]middleware.Handler{
	"request-id": requestIDMiddleware,
}

var errorMiddlewareRegistry = map[string]middleware.ErrorHandler{
	"log-errors": logErrorsMiddleware,
}

// resolveHandlerMiddlewares looks up named global handler middlewares,
// warning and skipping any name the registry doesn't recognize.
func resolveHandlerMiddlewares(refs []msconfig.MiddlewareRef) []middleware.Handler {
	out := make([]middleware.Handler, 0, len(refs))
	for _, ref := range refs {
		h, ok := handlerMiddlewareRegistry[ref.Name]
		if !ok {
			mslogger.LogWarn(fmt.Sprintf("Config: unknown handler middleware %q, skipping", ref.Name))
			continue
		}
		out = append(out, h)
	}
	return out
}

// resolveErrorMiddlewares mirrors resolveHandlerMiddlewares for the error chain.
func resolveErrorMiddlewares(refs []msconfig.MiddlewareRef) []middleware.ErrorHandler {
	out := make([]middleware.ErrorHandler, 0, len(refs))
	for _, ref := range refs {
		h, ok := errorMiddlewareRegistry[ref.Name]
		if !ok {
			mslogger.LogWarn(fmt.Sprintf("Config: unknown error middleware %q, skipping", ref.Name))
			continue
		}
		out = append(out, h)
	}
	return out
}

// namedParserPipelines are custom parser pipelines a route's parser config
// may opt into by name, beyond the built-in bodyparser.Default.
var namedParserPipelines = map[string]bodyparser.Pipeline{}

// disabledParser is a no-op pipeline for ParserConfig{Enabled: false}: it
// leaves the request body unparsed (reqctx.BodyNone) rather than falling
// back to bodyparser.Default, which an empty Parsers slice would do.
var disabledParser = bodyparser.Pipeline{
	Parsers: []bodyparser.Parser{func(req *reqctx.Request, contentType string, raw []byte) error { return nil }},
}

// resolveParserPipeline turns a *ParserConfig into a concrete Pipeline, or
// nil when pc is nil (meaning: inherit whatever scope is active above this
// one — global default, or the dispatcher's GlobalParser).
func resolveParserPipeline(pc *msconfig.ParserConfig) *bodyparser.Pipeline {
	if pc == nil {
		return nil
	}
	if !pc.Enabled {
		return &disabledParser
	}
	if pc.Pipeline == "" {
		return &bodyparser.Default
	}
	if p, ok := namedParserPipelines[pc.Pipeline]; ok {
		return &p
	}
	mslogger.LogWarn(fmt.Sprintf("Config: unknown parser pipeline %q, using default", pc.Pipeline))
	return &bodyparser.Default
}
