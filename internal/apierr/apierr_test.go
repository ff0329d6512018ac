package apierr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_UsesDefaultStatus(t *testing.T) {
	e := New(NotFound, "item not found")
	assert.Equal(t, 404, e.Status)
	assert.Equal(t, "item not found", e.Message)
}

func TestWithStatus_Overrides(t *testing.T) {
	e := New(HandlerError, "boom").WithStatus(502)
	assert.Equal(t, 502, e.Status)
}

func TestWithDetail_SurfacesInErrorString(t *testing.T) {
	e := New(MalformedBody, "bad body").WithDetail("missing field 'id'")
	assert.Contains(t, e.Error(), "missing field 'id'")
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	e := Wrap(ReadFile, "failed to read mock file", cause)

	assert.Equal(t, cause, e.Unwrap())
	assert.Equal(t, 500, e.Status)
}

func TestAs_FindsWrappedError(t *testing.T) {
	inner := New(Conflict, "already exists")
	outer := fmt.Errorf("wrapped: %w", inner)

	found, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, inner, found)
}

func TestAs_NonApiError(t *testing.T) {
	_, ok := As(errors.New("plain error"))
	assert.False(t, ok)
}

func TestToBody(t *testing.T) {
	e := New(NotFound, "not found").WithDetail("id=5")
	body := e.ToBody()

	assert.Equal(t, "not found", body.Error)
	assert.Equal(t, "id=5", body.Detail)
}
