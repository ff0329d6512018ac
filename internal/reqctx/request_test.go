package reqctx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_InitializesMaps(t *testing.T) {
	req := New("GET", "/users/1")

	assert.Equal(t, "GET", req.Method)
	assert.Equal(t, "/users/1", req.Path)
	assert.NotNil(t, req.Headers)
	assert.NotNil(t, req.Params)
	assert.NotNil(t, req.Query)
}

func TestSetHeaderAndHeader(t *testing.T) {
	req := New("POST", "/items")

	req.SetHeader("X-Api-Key", "first")
	req.SetHeader("X-Api-Key", "second")

	assert.Equal(t, "second", req.Header("X-Api-Key"))
}

func TestHeader_MissingReturnsEmpty(t *testing.T) {
	req := New("GET", "/items")
	assert.Equal(t, "", req.Header("Missing"))
}

func TestBodyAsMap_JSONObject(t *testing.T) {
	b := Body{Kind: BodyJSON, JSON: map[string]interface{}{"name": "john"}}

	m, ok := b.AsMap()
	assert.True(t, ok)
	assert.Equal(t, "john", m["name"])
}

func TestBodyAsMap_NonObjectJSON(t *testing.T) {
	b := Body{Kind: BodyJSON, JSON: []interface{}{1, 2, 3}}

	_, ok := b.AsMap()
	assert.False(t, ok)
}

func TestBodyAsMap_WrongKind(t *testing.T) {
	b := Body{Kind: BodyRaw, Raw: []byte("raw")}

	_, ok := b.AsMap()
	assert.False(t, ok)
}
