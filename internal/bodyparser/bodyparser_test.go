package bodyparser

import (
	"mime/multipart"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/mockgw/internal/reqctx"
)

func TestParseDefault_JSON(t *testing.T) {
	req := reqctx.New("POST", "/x")
	err := ParseDefault(req, "application/json", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, reqctx.BodyJSON, req.Body.Kind)
	m, ok := req.Body.AsMap()
	require.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
}

func TestParseDefault_MalformedJSON(t *testing.T) {
	req := reqctx.New("POST", "/x")
	err := ParseDefault(req, "application/json", []byte(`{not json`))
	require.Error(t, err)
}

func TestParseDefault_FormURLEncoded(t *testing.T) {
	req := reqctx.New("POST", "/x")
	err := ParseDefault(req, "application/x-www-form-urlencoded", []byte("a=1&b=2&b=3"))
	require.NoError(t, err)
	assert.Equal(t, reqctx.BodyForm, req.Body.Kind)
	assert.Equal(t, []string{"1"}, req.Body.Form["a"])
	assert.Equal(t, []string{"2", "3"}, req.Body.Form["b"])
}

func TestParseDefault_Multipart(t *testing.T) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("name", "alice"))
	fw, err := w.CreateFormFile("avatar", "a.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("PNGDATA"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := reqctx.New("POST", "/x")
	err = ParseDefault(req, w.FormDataContentType(), buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, req.Body.Form["name"])
	require.Len(t, req.Files, 1)
	assert.Equal(t, "avatar", req.Files[0].Name)
	assert.Equal(t, []byte("PNGDATA"), req.Files[0].Bytes)
}

func TestParseDefault_RawFallback(t *testing.T) {
	req := reqctx.New("POST", "/x")
	err := ParseDefault(req, "application/octet-stream", []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Equal(t, reqctx.BodyRaw, req.Body.Kind)
	assert.Equal(t, []byte{0x01, 0x02}, req.Body.Raw)
}
