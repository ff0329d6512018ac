package ws

import (
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/mockgw/internal/apierr"
)

const acceptMagic = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// ValidateUpgrade checks the handshake request headers per spec.md §4.6.
func ValidateUpgrade(h http.Header) error {
	if !strings.EqualFold(h.Get("Upgrade"), "websocket") {
		return apierr.New(apierr.MalformedBody, "Upgrade header must be \"websocket\"")
	}
	if !headerTokenContains(h.Get("Connection"), "upgrade") {
		return apierr.New(apierr.MalformedBody, "Connection header must contain \"Upgrade\"")
	}
	if h.Get("Sec-WebSocket-Version") != "13" {
		return apierr.New(apierr.MalformedBody, "Sec-WebSocket-Version must be 13")
	}
	key := h.Get("Sec-WebSocket-Key")
	if key == "" {
		return apierr.New(apierr.MalformedBody, "Sec-WebSocket-Key is required")
	}
	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != 16 {
		return apierr.New(apierr.MalformedBody, "Sec-WebSocket-Key must decode to 16 bytes")
	}
	return nil
}

func headerTokenContains(header, token string) bool {
	for _, part := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// ComputeAccept derives Sec-WebSocket-Accept from the client's key.
func ComputeAccept(key string) string {
	sum := sha1.Sum([]byte(key + acceptMagic))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// NegotiateSubprotocol intersects the handler's supported subprotocols
// (in preference order) with the client's offered list, returning the
// first handler-preferred match, or "" if none.
func NegotiateSubprotocol(handlerProtocols []string, clientHeader string) string {
	if clientHeader == "" || len(handlerProtocols) == 0 {
		return ""
	}
	offered := map[string]bool{}
	for _, p := range strings.Split(clientHeader, ",") {
		offered[strings.TrimSpace(p)] = true
	}
	for _, p := range handlerProtocols {
		if offered[p] {
			return p
		}
	}
	return ""
}

// ExtensionOffer is one comma-separated item of Sec-WebSocket-Extensions.
type ExtensionOffer struct {
	Name   string
	Params map[string]string // value is "" for a bare flag parameter
}

// ParseExtensions decodes the Sec-WebSocket-Extensions header into offers.
func ParseExtensions(header string) []ExtensionOffer {
	var offers []ExtensionOffer
	if header == "" {
		return offers
	}
	for _, raw := range strings.Split(header, ",") {
		parts := strings.Split(raw, ";")
		name := strings.TrimSpace(parts[0])
		if name == "" {
			continue
		}
		offer := ExtensionOffer{Name: name, Params: map[string]string{}}
		for _, p := range parts[1:] {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if eq := strings.IndexByte(p, '='); eq >= 0 {
				k := strings.TrimSpace(p[:eq])
				v := strings.Trim(strings.TrimSpace(p[eq+1:]), `"`)
				offer.Params[k] = v
			} else {
				offer.Params[p] = ""
			}
		}
		offers = append(offers, offer)
	}
	return offers
}

// DeflateOptions is the handler-level permessage-deflate policy.
type DeflateOptions struct {
	Enabled bool
	Strict  bool
}

// NegotiatedDeflate holds the agreed permessage-deflate parameters.
type NegotiatedDeflate struct {
	ServerNoContextTakeover bool
	ClientNoContextTakeover bool
	ServerMaxWindowBits     int
	ClientMaxWindowBits     int
}

// NegotiateDeflate inspects the client's extension offers for
// permessage-deflate and, if the handler opted in, returns the agreed
// parameters plus the response header value. ok is false when the handler
// did not opt in, the client did not offer the extension, or strict mode
// rejected the offer.
func NegotiateDeflate(offers []ExtensionOffer, opts DeflateOptions) (neg NegotiatedDeflate, headerValue string, ok bool) {
	if !opts.Enabled {
		return NegotiatedDeflate{}, "", false
	}
	var offer *ExtensionOffer
	for i := range offers {
		if offers[i].Name == "permessage-deflate" {
			offer = &offers[i]
			break
		}
	}
	if offer == nil {
		return NegotiatedDeflate{}, "", false
	}

	neg = NegotiatedDeflate{ServerMaxWindowBits: 15, ClientMaxWindowBits: 15}
	var parts []string

	if _, present := offer.Params["server_no_context_takeover"]; present {
		neg.ServerNoContextTakeover = true
		parts = append(parts, "server_no_context_takeover")
	} else if opts.Strict {
		return NegotiatedDeflate{}, "", false
	}

	if _, present := offer.Params["client_no_context_takeover"]; present {
		neg.ClientNoContextTakeover = true
		parts = append(parts, "client_no_context_takeover")
	} else if opts.Strict {
		return NegotiatedDeflate{}, "", false
	}

	if v, present := offer.Params["server_max_window_bits"]; present {
		bits, err := coerceWindowBits(v)
		if err != nil {
			return NegotiatedDeflate{}, "", false
		}
		neg.ServerMaxWindowBits = bits
		parts = append(parts, fmt.Sprintf("server_max_window_bits=%d", bits))
	} else if opts.Strict {
		return NegotiatedDeflate{}, "", false
	}

	if v, present := offer.Params["client_max_window_bits"]; present {
		bits, err := coerceWindowBits(v)
		if err != nil {
			return NegotiatedDeflate{}, "", false
		}
		neg.ClientMaxWindowBits = bits
		parts = append(parts, fmt.Sprintf("client_max_window_bits=%d", bits))
	} else if opts.Strict {
		return NegotiatedDeflate{}, "", false
	}

	headerValue = "permessage-deflate"
	if len(parts) > 0 {
		headerValue += "; " + strings.Join(parts, "; ")
	}
	return neg, headerValue, true
}

// coerceWindowBits parses a max-window-bits value, coercing the disallowed
// 8 up to 9 per spec.md §4.6.
func coerceWindowBits(raw string) (int, error) {
	if raw == "" {
		return 15, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 8 || n > 15 {
		return 0, fmt.Errorf("window bits %q out of range", raw)
	}
	if n == 8 {
		return 9, nil
	}
	return n, nil
}
