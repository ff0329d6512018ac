package dispatcher

import (
	"errors"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/bodyparser"
	"github.com/example/mockgw/internal/fsengine"
	"github.com/example/mockgw/internal/middleware"
	"github.com/example/mockgw/internal/pattern"
	"github.com/example/mockgw/internal/reqctx"
)

type fakeResponse struct {
	status    int
	headers   map[string]string
	body      interface{}
	raw       []byte
	finalized bool
}

func newFakeResponse() *fakeResponse { return &fakeResponse{headers: map[string]string{}} }

func (f *fakeResponse) Status(code int)             { f.status = code }
func (f *fakeResponse) SetHeader(key, value string) { f.headers[key] = value }
func (f *fakeResponse) Finalized() bool             { return f.finalized }
func (f *fakeResponse) JSON(v interface{}) error {
	f.body = v
	f.finalized = true
	return nil
}
func (f *fakeResponse) Send(b []byte) error {
	f.raw = b
	f.finalized = true
	return nil
}

func newReq(method, path string) *reqctx.Request {
	r := reqctx.New(method, path)
	r.Query = url.Values{}
	return r
}

func TestDispatch_OutOfPrefixForwards(t *testing.T) {
	forwarded := false
	d := &Dispatcher{
		Prefixes: []string{"/api"},
		Forward:  func(req *reqctx.Request, res middleware.ResponseWriter) { forwarded = true },
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/assets/app.js"), res, nil))
	assert.True(t, forwarded)
	assert.False(t, res.Finalized())
}

func TestDispatch_MatchesFirstRegisteredRouteOnDuplicate(t *testing.T) {
	var fired string
	mk := func(name string) Handler {
		return func(req *reqctx.Request, res middleware.ResponseWriter) error {
			fired = name
			res.Status(200)
			return res.JSON(map[string]string{"name": name})
		}
	}
	d := &Dispatcher{
		GlobalParser: bodyparser.Default,
		Routes: []*Route{
			{Pattern: pattern.MustCompile("/users/{id}"), Method: "GET", Handler: mk("first")},
			{Pattern: pattern.MustCompile("/users/{id}"), Method: "GET", Handler: mk("second")},
		},
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/users/7"), res, nil))
	assert.Equal(t, "first", fired)
}

func TestDispatch_RunsMiddlewareBeforeHandler(t *testing.T) {
	var order []string
	mw := func(req *reqctx.Request, res middleware.ResponseWriter, next middleware.Next) {
		order = append(order, "mw")
		next(nil)
	}
	d := &Dispatcher{
		GlobalParser: bodyparser.Default,
		Routes: []*Route{
			{
				Pattern:     pattern.MustCompile("/ping"),
				Method:      "GET",
				Middlewares: []middleware.Handler{mw},
				Handler: func(req *reqctx.Request, res middleware.ResponseWriter) error {
					order = append(order, "handler")
					res.Status(200)
					return res.JSON(map[string]string{"pong": "true"})
				},
			},
		},
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/ping"), res, nil))
	assert.Equal(t, []string{"mw", "handler"}, order)
	assert.Equal(t, 200, res.status)
}

func TestDispatch_NoMatchRespondsWithTaxonomy404(t *testing.T) {
	d := &Dispatcher{NoHandlerAction: NoHandlerRespond404}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/nope"), res, nil))
	assert.Equal(t, 404, res.status)
}

func TestDispatch_NoMatchForwardsWhenConfigured(t *testing.T) {
	forwarded := false
	d := &Dispatcher{
		NoHandlerAction: NoHandlerForward,
		Forward:         func(req *reqctx.Request, res middleware.ResponseWriter) { forwarded = true },
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/nope"), res, nil))
	assert.True(t, forwarded)
}

func TestDispatch_UnresolvedApierrUsesItsOwnStatus(t *testing.T) {
	d := &Dispatcher{
		GlobalParser: bodyparser.Default,
		Routes: []*Route{
			{
				Pattern: pattern.MustCompile("/conflict"),
				Method:  "POST",
				Handler: func(req *reqctx.Request, res middleware.ResponseWriter) error {
					return apierr.New(apierr.Conflict, "already exists")
				},
			},
		},
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("POST", "/conflict"), res, nil))
	assert.Equal(t, 409, res.status)
	body, ok := res.body.(apierr.Body)
	require.True(t, ok)
	assert.Equal(t, "already exists", body.Error)
}

func TestDispatch_UnresolvedPlainErrorDefaultsTo500(t *testing.T) {
	d := &Dispatcher{
		GlobalParser: bodyparser.Default,
		Routes: []*Route{
			{
				Pattern: pattern.MustCompile("/boom"),
				Method:  "GET",
				Handler: func(req *reqctx.Request, res middleware.ResponseWriter) error {
					return errors.New("boom")
				},
			},
		},
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/boom"), res, nil))
	assert.Equal(t, 500, res.status)
	assert.Equal(t, apierr.InternalServerError, res.body)
}

func TestDispatch_ErrorMiddlewareResolvesBeforeDefault(t *testing.T) {
	d := &Dispatcher{
		GlobalParser: bodyparser.Default,
		Routes: []*Route{
			{
				Pattern: pattern.MustCompile("/boom"),
				Method:  "GET",
				Handler: func(req *reqctx.Request, res middleware.ResponseWriter) error {
					return errors.New("boom")
				},
				ErrorMiddlewares: []middleware.ErrorHandler{
					func(err error, req *reqctx.Request, res middleware.ResponseWriter, next middleware.Next) {
						res.Status(418)
						res.JSON(map[string]string{"handled": err.Error()})
						next(nil)
					},
				},
			},
		},
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/boom"), res, nil))
	assert.Equal(t, 418, res.status)
}

func TestDispatch_DelayDelaysHandlerInvocation(t *testing.T) {
	delay := 30 * time.Millisecond
	d := &Dispatcher{
		GlobalParser: bodyparser.Default,
		Routes: []*Route{
			{
				Pattern: pattern.MustCompile("/slow"),
				Method:  "GET",
				Delay:   &delay,
				Handler: func(req *reqctx.Request, res middleware.ResponseWriter) error {
					res.Status(200)
					return res.JSON(nil)
				},
			},
		},
	}
	res := newFakeResponse()
	start := time.Now()
	require.NoError(t, d.Dispatch(newReq("GET", "/slow"), res, nil))
	assert.GreaterOrEqual(t, time.Since(start), delay)
}

func TestDispatch_GatewayTimeoutForces504AndSuppressesLateWrite(t *testing.T) {
	d := &Dispatcher{
		GlobalParser:   bodyparser.Default,
		GatewayTimeout: 20 * time.Millisecond,
		Routes: []*Route{
			{
				Pattern: pattern.MustCompile("/hangs"),
				Method:  "GET",
				Handler: func(req *reqctx.Request, res middleware.ResponseWriter) error {
					time.Sleep(200 * time.Millisecond)
					res.Status(200)
					return res.JSON(map[string]string{"late": "true"})
				},
			},
		},
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/hangs"), res, nil))
	assert.Equal(t, 504, res.status)

	// Give the detached handler goroutine time to attempt its late write;
	// it must not have overwritten the forced timeout response.
	time.Sleep(250 * time.Millisecond)
	assert.Equal(t, 504, res.status)
}

func TestDispatch_FSRouteServesEngineResult(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/widgets.json", []byte(`[{"id":1}]`), 0o644))

	engine := fsengine.New(dir)
	d := &Dispatcher{
		GlobalParser: bodyparser.Default,
		Routes: []*Route{
			{
				Pattern: pattern.MustCompile("/widgets"),
				Method:  "GET",
				FS: &FSRoute{
					Engine:  engine,
					RelPath: func(req *reqctx.Request) string { return "widgets" },
				},
			},
		},
	}
	res := newFakeResponse()
	require.NoError(t, d.Dispatch(newReq("GET", "/widgets"), res, nil))
	assert.Equal(t, 200, res.status)
	assert.NotNil(t, res.body)
}

