package middleware

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mockgw/internal/reqctx"
)

type fakeResponse struct {
	status    int
	headers   map[string]string
	body      interface{}
	finalized bool
}

func newFakeResponse() *fakeResponse { return &fakeResponse{headers: map[string]string{}} }

func (f *fakeResponse) Status(code int)              { f.status = code }
func (f *fakeResponse) SetHeader(key, value string)  { f.headers[key] = value }
func (f *fakeResponse) Finalized() bool              { return f.finalized }
func (f *fakeResponse) JSON(v interface{}) error {
	f.body = v
	f.finalized = true
	return nil
}
func (f *fakeResponse) Send(b []byte) error {
	f.body = b
	f.finalized = true
	return nil
}

func TestChain_RunsInOrderThenFinal(t *testing.T) {
	var order []string
	h1 := Handler(func(req *reqctx.Request, res ResponseWriter, next Next) {
		order = append(order, "h1")
		next(nil)
	})
	h2 := Handler(func(req *reqctx.Request, res ResponseWriter, next Next) {
		order = append(order, "h2")
		next(nil)
	})
	final := Handler(func(req *reqctx.Request, res ResponseWriter, next Next) {
		order = append(order, "final")
		res.Status(200)
		res.JSON(map[string]string{"ok": "true"})
		next(nil)
	})

	c := New([]Handler{h1, h2}, nil)
	res := newFakeResponse()
	err := c.Run(reqctx.New("GET", "/"), res, final)

	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "h2", "final"}, order)
	assert.True(t, res.Finalized())
}

func TestChain_MiddlewareFinalizingWithoutNextStopsChain(t *testing.T) {
	var order []string
	h1 := Handler(func(req *reqctx.Request, res ResponseWriter, next Next) {
		order = append(order, "h1")
		res.Status(204)
		res.Send(nil)
		// intentionally never calls next()
	})
	h2 := Handler(func(req *reqctx.Request, res ResponseWriter, next Next) {
		order = append(order, "h2")
		next(nil)
	})

	c := New([]Handler{h1, h2}, nil)
	res := newFakeResponse()
	err := c.Run(reqctx.New("GET", "/"), res, nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, order, "h2 and final must not run once h1 finalizes")
}

func TestChain_NextWithErrorEntersErrorChain(t *testing.T) {
	boom := errors.New("boom")
	h1 := Handler(func(req *reqctx.Request, res ResponseWriter, next Next) {
		next(boom)
	})

	var caught error
	eh := ErrorHandler(func(err error, req *reqctx.Request, res ResponseWriter, next Next) {
		caught = err
		res.Status(500)
		res.JSON(map[string]string{"error": "handled"})
		next(nil)
	})

	c := New([]Handler{h1}, []ErrorHandler{eh})
	res := newFakeResponse()
	err := c.Run(reqctx.New("GET", "/"), res, nil)

	require.NoError(t, err, "next() with no error in the error chain resolves cleanly")
	assert.Equal(t, boom, caught)
	assert.True(t, res.Finalized())
}

func TestChain_ErrorPropagatesWhenNoErrorMiddlewareResolves(t *testing.T) {
	boom := errors.New("boom")
	h1 := Handler(func(req *reqctx.Request, res ResponseWriter, next Next) {
		next(boom)
	})

	c := New([]Handler{h1}, nil)
	res := newFakeResponse()
	err := c.Run(reqctx.New("GET", "/"), res, nil)

	assert.Equal(t, boom, err, "with no error middleware configured, the error surfaces to the caller for default 500")
	assert.False(t, res.Finalized())
}

func TestChain_ErrorChainForwarding(t *testing.T) {
	boom := errors.New("boom")
	wrapped := errors.New("wrapped")

	h1 := Handler(func(req *reqctx.Request, res ResponseWriter, next Next) {
		next(boom)
	})
	eh1 := ErrorHandler(func(err error, req *reqctx.Request, res ResponseWriter, next Next) {
		next(wrapped)
	})
	var finalErr error
	eh2 := ErrorHandler(func(err error, req *reqctx.Request, res ResponseWriter, next Next) {
		finalErr = err
		res.Status(400)
		res.JSON(nil)
		next(nil)
	})

	c := New([]Handler{h1}, []ErrorHandler{eh1, eh2})
	res := newFakeResponse()
	err := c.Run(reqctx.New("GET", "/"), res, nil)

	require.NoError(t, err)
	assert.Equal(t, wrapped, finalErr)
}
