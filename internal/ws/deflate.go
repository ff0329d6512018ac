package ws

import (
	"bytes"
	"compress/flate"
	"fmt"
	"io"
)

// deflateTrailer is the 4-byte trailer RFC 7692 strips from compressed
// output and requires re-appending before inflating.
var deflateTrailer = []byte{0x00, 0x00, 0xFF, 0xFF}

// maxDeflateDict is the largest preset dictionary compress/flate accepts,
// matching the 32 KiB LZ77 window size.
const maxDeflateDict = 32 * 1024

// DeflateStream holds the per-connection compress/decompress state for
// permessage-deflate (C11).
//
// The compressor is reused across messages by default, matching a real
// context-takeover sliding window: flate.Writer.Flush emits a sync-flush
// block rather than a final block, so the shared dictionary carries
// forward naturally. compress/flate's Reader cannot be resumed the same
// way (a sync-flush boundary latches as EOF and Reset forgets history), so
// the decompressor side instead carries its own rolling dictionary: each
// message is inflated by a fresh flate.NewReaderDict seeded with up to the
// last 32 KiB of previously decompressed bytes, which reproduces real
// context-takeover semantics for backreferences without needing the
// decompressor itself to stay alive across messages. The dictionary is
// dropped when ClientNoContextTakeover was negotiated, matching the
// sender's own reset.
type DeflateStream struct {
	params NegotiatedDeflate

	compressBuf bytes.Buffer
	compressor  *flate.Writer
	pendingIn   *bytes.Buffer

	inflateDict []byte
}

// NewDeflateStream allocates compressor/decompressor state for params.
func NewDeflateStream(params NegotiatedDeflate) (*DeflateStream, error) {
	s := &DeflateStream{params: params, pendingIn: &bytes.Buffer{}}
	fw, err := flate.NewWriter(&s.compressBuf, flate.DefaultCompression)
	if err != nil {
		return nil, fmt.Errorf("ws: allocating deflate writer: %w", err)
	}
	s.compressor = fw
	return s, nil
}

// Compress deflates payload for one message, stripping the trailing
// 0x00 0x00 0xFF 0xFF per RFC 7692. The server-side stream resets after
// every message when ServerNoContextTakeover is set.
func (s *DeflateStream) Compress(payload []byte) ([]byte, error) {
	s.compressBuf.Reset()
	if _, err := s.compressor.Write(payload); err != nil {
		return nil, err
	}
	if err := s.compressor.Flush(); err != nil {
		return nil, err
	}
	out := make([]byte, s.compressBuf.Len())
	copy(out, s.compressBuf.Bytes())
	out = bytes.TrimSuffix(out, deflateTrailer)

	if s.params.ServerNoContextTakeover {
		s.compressBuf.Reset()
		fw, err := flate.NewWriter(&s.compressBuf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		s.compressor = fw
	}
	return out, nil
}

// Decompress inflates payload after re-appending the RFC 7692 trailer,
// seeding the inflater with the rolling dictionary of previously
// decompressed bytes so cross-message backreferences resolve. An empty
// final stored block is appended after the trailer so the reader ends at
// io.EOF instead of reporting io.ErrUnexpectedEOF.
func (s *DeflateStream) Decompress(payload []byte) ([]byte, error) {
	s.pendingIn.Reset()
	s.pendingIn.Write(payload)
	s.pendingIn.Write(deflateTrailer)
	s.pendingIn.Write([]byte{0x01, 0x00, 0x00, 0xFF, 0xFF})

	decompressor := flate.NewReaderDict(s.pendingIn, s.inflateDict)
	defer decompressor.Close()

	out, err := io.ReadAll(decompressor)
	if err != nil {
		return nil, fmt.Errorf("ws: inflating message: %w", err)
	}

	if s.params.ClientNoContextTakeover {
		s.inflateDict = nil
	} else {
		s.inflateDict = appendDict(s.inflateDict, out)
	}
	return out, nil
}

// appendDict grows dict with tail, keeping only the last maxDeflateDict
// bytes — the most a flate preset dictionary can use.
func appendDict(dict, tail []byte) []byte {
	dict = append(dict, tail...)
	if len(dict) > maxDeflateDict {
		dict = dict[len(dict)-maxDeflateDict:]
	}
	return dict
}

// ShouldCompress applies the implementation-chosen threshold of spec.md
// §4.7: skip compression for small payloads.
func ShouldCompress(payload []byte) bool {
	return len(payload) >= 64
}
