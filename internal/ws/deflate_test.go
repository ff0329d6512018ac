package ws

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeflateStream_CompressDecompressRoundTrip(t *testing.T) {
	stream, err := NewDeflateStream(NegotiatedDeflate{})
	require.NoError(t, err)

	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 4)
	compressed, err := stream.Compress(payload)
	require.NoError(t, err)
	assert.Less(t, len(compressed), len(payload))

	decompressed, err := stream.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, decompressed)
}

func TestDeflateStream_ContextTakeoverAcrossMessages(t *testing.T) {
	stream, err := NewDeflateStream(NegotiatedDeflate{})
	require.NoError(t, err)

	first, err := stream.Compress([]byte("hello"))
	require.NoError(t, err)
	out1, err := stream.Decompress(first)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out1)

	second, err := stream.Compress([]byte("world"))
	require.NoError(t, err)
	out2, err := stream.Decompress(second)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), out2)
}

func TestDeflateStream_DecompressUsesCrossMessageBackreferences(t *testing.T) {
	stream, err := NewDeflateStream(NegotiatedDeflate{})
	require.NoError(t, err)

	shared := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 8)

	first, err := stream.Compress(shared)
	require.NoError(t, err)
	out1, err := stream.Decompress(first)
	require.NoError(t, err)
	assert.Equal(t, shared, out1)

	// With a shared sliding window, re-sending the same content a second
	// message later compresses mostly to backreferences into the first
	// message's history, which only a dictionary-seeded inflater can
	// resolve.
	second, err := stream.Compress(shared)
	require.NoError(t, err)
	assert.Less(t, len(second), len(shared)/4)

	out2, err := stream.Decompress(second)
	require.NoError(t, err)
	assert.Equal(t, shared, out2)
}

func TestDeflateStream_ClientNoContextTakeoverDropsDictionary(t *testing.T) {
	stream, err := NewDeflateStream(NegotiatedDeflate{ClientNoContextTakeover: true})
	require.NoError(t, err)

	shared := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 8)

	first, err := stream.Compress(shared)
	require.NoError(t, err)
	_, err = stream.Decompress(first)
	require.NoError(t, err)
	assert.Empty(t, stream.inflateDict, "dictionary must reset when client_no_context_takeover is negotiated")
}

func TestShouldCompress_Threshold(t *testing.T) {
	assert.False(t, ShouldCompress(bytes.Repeat([]byte{1}, 10)))
	assert.True(t, ShouldCompress(bytes.Repeat([]byte{1}, 64)))
}
