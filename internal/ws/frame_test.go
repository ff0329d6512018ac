package ws

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrame_RoundTripUnmaskedServerFrame(t *testing.T) {
	original := &Frame{FIN: true, Opcode: OpText, Payload: []byte("hello world")}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, original))

	decoded, err := ReadFrame(&buf, false)
	require.NoError(t, err)
	assert.Equal(t, original.FIN, decoded.FIN)
	assert.Equal(t, original.Opcode, decoded.Opcode)
	assert.Equal(t, original.Payload, decoded.Payload)
}

func TestFrame_RoundTripMaskedClientFrame(t *testing.T) {
	original := &Frame{FIN: true, Opcode: OpBinary, Masked: true, MaskKey: [4]byte{1, 2, 3, 4}, Payload: []byte{0xde, 0xad, 0xbe, 0xef}}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, original))

	decoded, err := ReadFrame(&buf, true)
	require.NoError(t, err)
	assert.Equal(t, original.Payload, decoded.Payload)
}

func TestFrame_LargePayloadUsesExtendedLength(t *testing.T) {
	payload := bytes.Repeat([]byte{0x42}, 70000)
	original := &Frame{FIN: true, Opcode: OpBinary, Payload: payload}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, original))

	decoded, err := ReadFrame(&buf, false)
	require.NoError(t, err)
	assert.Equal(t, payload, decoded.Payload)
}

func TestReadFrame_RejectsUnmaskedClientFrame(t *testing.T) {
	original := &Frame{FIN: true, Opcode: OpText, Payload: []byte("x")}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, original))

	_, err := ReadFrame(&buf, true)
	require.Error(t, err)
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CloseProtocolError, pe.Code)
}

func TestReadFrame_RejectsOversizedControlFrame(t *testing.T) {
	original := &Frame{FIN: true, Opcode: OpPing, Payload: bytes.Repeat([]byte{0x01}, 126)}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, original))

	_, err := ReadFrame(&buf, false)
	require.Error(t, err)
}

func TestReadFrame_RejectsFragmentedControlFrame(t *testing.T) {
	original := &Frame{FIN: false, Opcode: OpPing, Payload: []byte("x")}
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, original))

	_, err := ReadFrame(&buf, false)
	require.Error(t, err)
}

func TestOpcode_IsControl(t *testing.T) {
	assert.False(t, OpText.IsControl())
	assert.False(t, OpBinary.IsControl())
	assert.False(t, OpContinuation.IsControl())
	assert.True(t, OpClose.IsControl())
	assert.True(t, OpPing.IsControl())
	assert.True(t, OpPong.IsControl())
}
