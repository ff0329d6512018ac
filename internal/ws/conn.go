package ws

import (
	"errors"
	"net"
	"sync"
	"time"
	"unicode/utf8"
)

// State is a connection's position in the CONNECTING -> OPEN -> CLOSING ->
// CLOSED lifecycle of spec.md §3.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

const sendQueueMaxFrames = 1024

var (
	ErrConnectionClosing = errors.New("ws: connection is closing")
	ErrBufferOverflow    = errors.New("ws: send queue overflow")
)

// Handlers are the user-supplied callbacks a Connection invokes.
// OnPing returning true suppresses the automatic pong reply.
type Handlers struct {
	OnConnect func(c *Connection)
	OnMessage func(c *Connection, data []byte, isText bool)
	OnClose   func(c *Connection, code int, reason string, initiatedByClient bool)
	OnPing    func(c *Connection, payload []byte) (suppressPong bool)
	OnError   func(c *Connection, err error)
}

// Options configures heartbeat, inactivity and room behavior for a
// Connection, per spec.md §4.8.
type Options struct {
	DefaultRoom       string
	Heartbeat         time.Duration
	InactivityTimeout time.Duration
	CloseGracePeriod  time.Duration
	Deflate           *NegotiatedDeflate
}

type outboundFrame struct {
	opcode  Opcode
	payload []byte
	done    chan error
}

// Connection is one negotiated WebSocket connection, owned by a Registry.
type Connection struct {
	ID          string
	Path        string
	Subprotocol string

	metaMu   sync.Mutex
	metadata map[string]interface{}

	netConn  net.Conn
	registry *Registry
	opts     Options
	handlers Handlers
	deflate  *DeflateStream

	stateMu sync.Mutex
	state   State

	sendCh    chan outboundFrame
	closeOnce sync.Once

	missedPongs int32
	lastReceive time.Time
	receiveMu   sync.Mutex
}

// NewConnection wires a raw net.Conn (typically obtained via an HTTP
// server's connection hijack after the C7 handshake) into the connection
// state machine.
func NewConnection(id, path, subprotocol string, netConn net.Conn, registry *Registry, opts Options, handlers Handlers) (*Connection, error) {
	c := &Connection{
		ID:          id,
		Path:        path,
		Subprotocol: subprotocol,
		metadata:    map[string]interface{}{},
		netConn:     netConn,
		registry:    registry,
		opts:        opts,
		handlers:    handlers,
		state:       StateConnecting,
		sendCh:      make(chan outboundFrame, sendQueueMaxFrames),
	}
	if opts.Deflate != nil {
		stream, err := NewDeflateStream(*opts.Deflate)
		if err != nil {
			return nil, err
		}
		c.deflate = stream
	}
	return c, nil
}

// SetMetadata stores an opaque key/value on the connection.
func (c *Connection) SetMetadata(key string, value interface{}) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	c.metadata[key] = value
}

// Metadata retrieves a previously stored value.
func (c *Connection) Metadata(key string) (interface{}, bool) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	v, ok := c.metadata[key]
	return v, ok
}

func (c *Connection) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// Run drives the connection until it closes. The caller owns the goroutine
// this blocks in; Run starts its own internal goroutines for writing,
// heartbeat and inactivity supervision.
func (c *Connection) Run() {
	c.setState(StateOpen)
	c.registry.Add(c)
	if c.opts.DefaultRoom != "" {
		c.registry.Join(c.ID, c.opts.DefaultRoom)
	}
	c.touchReceive()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(stop)
	}()

	if c.opts.Heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.heartbeatLoop(stop)
		}()
	}
	if c.opts.InactivityTimeout > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.inactivityLoop(stop)
		}()
	}

	if c.handlers.OnConnect != nil {
		c.handlers.OnConnect(c)
	}

	c.readLoop()

	close(stop)
	wg.Wait()
	c.shutdown()
}

func (c *Connection) readLoop() {
	var fragments []byte
	var fragmentOpcode Opcode
	var fragmentCompressed bool
	fragmentActive := false

	for {
		frame, err := ReadFrame(c.netConn, true)
		if err != nil {
			var pe *ProtocolError
			if errors.As(err, &pe) {
				c.closeWithCode(pe.Code, pe.Message, false)
			} else {
				c.setState(StateClosed)
			}
			return
		}

		c.touchReceive()

		if frame.Opcode.IsControl() {
			if done := c.handleControl(frame); done {
				return
			}
			continue
		}

		if frame.RSV1 && c.deflate == nil {
			c.closeWithCode(CloseProtocolError, "unexpected RSV1 bit", false)
			return
		}

		switch frame.Opcode {
		case OpText, OpBinary:
			if fragmentActive {
				c.closeWithCode(CloseProtocolError, "new data frame while fragment in progress", false)
				return
			}
			fragmentActive = true
			fragmentOpcode = frame.Opcode
			fragmentCompressed = frame.RSV1
			fragments = append([]byte{}, frame.Payload...)
		case OpContinuation:
			if !fragmentActive {
				c.closeWithCode(CloseProtocolError, "continuation without a preceding data frame", false)
				return
			}
			fragments = append(fragments, frame.Payload...)
		default:
			c.closeWithCode(CloseProtocolError, "unsupported opcode", false)
			return
		}

		if !frame.FIN {
			continue
		}

		fragmentActive = false
		payload := fragments
		fragments = nil

		if fragmentCompressed {
			if c.deflate == nil {
				c.closeWithCode(CloseProtocolError, "compressed message without negotiated extension", false)
				return
			}
			decompressed, err := c.deflate.Decompress(payload)
			if err != nil {
				c.closeWithCode(CloseInvalidPayload, "decompression failed", false)
				return
			}
			payload = decompressed
		}

		isText := fragmentOpcode == OpText
		if isText && !utf8.Valid(payload) {
			c.closeWithCode(CloseInvalidPayload, "invalid UTF-8 in text frame", false)
			return
		}

		if c.handlers.OnMessage != nil {
			c.handlers.OnMessage(c, payload, isText)
		}
	}
}

// handleControl processes a control frame and reports whether the read
// loop should stop (true after a Close exchange or protocol violation).
func (c *Connection) handleControl(frame *Frame) bool {
	switch frame.Opcode {
	case OpClose:
		code, reason := parseClosePayload(frame.Payload)
		c.setState(StateClosing)
		c.sendControl(OpClose, frame.Payload)
		c.setState(StateClosed)
		if c.handlers.OnClose != nil {
			c.handlers.OnClose(c, code, reason, true)
		}
		return true
	case OpPing:
		suppressed := false
		if c.handlers.OnPing != nil {
			suppressed = c.handlers.OnPing(c, frame.Payload)
		}
		if !suppressed {
			c.sendControl(OpPong, frame.Payload)
		}
		return false
	case OpPong:
		return false
	default:
		c.closeWithCode(CloseProtocolError, "unsupported control opcode", false)
		return true
	}
}

func (c *Connection) writeLoop(stop <-chan struct{}) {
	for {
		var of outboundFrame
		// Drain any already-queued frame first so a close frame enqueued
		// just before stop is closed (e.g. by closeWithCode) is still
		// flushed rather than racing the stop case in the select below.
		select {
		case of = <-c.sendCh:
		default:
			select {
			case <-stop:
				return
			case of = <-c.sendCh:
			}
		}

		payload := of.payload
		rsv1 := false
		if c.deflate != nil && !of.opcode.IsControl() && ShouldCompress(payload) {
			compressed, err := c.deflate.Compress(payload)
			if err == nil {
				payload = compressed
				rsv1 = true
			}
		}
		err := WriteFrame(c.netConn, &Frame{FIN: true, RSV1: rsv1, Opcode: of.opcode, Masked: false, Payload: payload})
		if of.done != nil {
			of.done <- err
			close(of.done)
		}
		if err != nil && c.handlers.OnError != nil {
			c.handlers.OnError(c, err)
		}
	}
}

// Send queues a message for delivery, returning once it has been flushed
// (or failed). Sends after CLOSING are rejected per spec.md §4.8.
func (c *Connection) Send(data []byte, isText bool) error {
	if c.State() != StateOpen {
		return ErrConnectionClosing
	}
	opcode := OpBinary
	if isText {
		opcode = OpText
	}
	done := make(chan error, 1)
	if err := c.enqueue(outboundFrame{opcode: opcode, payload: data, done: done}); err != nil {
		return err
	}
	return <-done
}

// trySend is the best-effort variant used by broadcast fan-out: failures
// must not propagate to the caller.
func (c *Connection) trySend(data []byte, isText bool) error {
	if c.State() != StateOpen {
		return ErrConnectionClosing
	}
	opcode := OpBinary
	if isText {
		opcode = OpText
	}
	return c.enqueue(outboundFrame{opcode: opcode, payload: data})
}

func (c *Connection) sendControl(opcode Opcode, payload []byte) {
	_ = c.enqueue(outboundFrame{opcode: opcode, payload: payload})
}

// sendControlAndWait enqueues a control frame and blocks until writeLoop has
// flushed it (or the connection is torn down first). Used by closeWithCode
// so the close frame reaches the peer before the socket is closed.
func (c *Connection) sendControlAndWait(opcode Opcode, payload []byte) {
	done := make(chan error, 1)
	if err := c.enqueue(outboundFrame{opcode: opcode, payload: payload, done: done}); err != nil {
		return
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

// enqueue pushes onto the bounded send queue, dropping the oldest pending
// frame and reporting BUFFER_OVERFLOW on saturation, per spec.md §5.
func (c *Connection) enqueue(of outboundFrame) error {
	select {
	case c.sendCh <- of:
		return nil
	default:
	}

	select {
	case <-c.sendCh:
	default:
	}

	select {
	case c.sendCh <- of:
		if c.handlers.OnError != nil {
			c.handlers.OnError(c, ErrBufferOverflow)
		}
		c.closeWithCode(CloseTooBig, "send queue overflow", false)
		return nil
	default:
		return ErrBufferOverflow
	}
}

func (c *Connection) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.Heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if c.missedPongs >= 3 {
				c.closeWithCode(CloseServerError, "heartbeat lost", false)
				return
			}
			c.missedPongs++
			c.sendControl(OpPing, nil)
		}
	}
}

func (c *Connection) inactivityLoop(stop <-chan struct{}) {
	quantum := c.opts.InactivityTimeout / 4
	if quantum < 100*time.Millisecond {
		quantum = 100 * time.Millisecond
	}
	ticker := time.NewTicker(quantum)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.receiveMu.Lock()
			idle := time.Since(c.lastReceive)
			c.receiveMu.Unlock()
			if idle >= c.opts.InactivityTimeout {
				c.closeWithCode(CloseNormal, "inactivity", false)
				return
			}
		}
	}
}

func (c *Connection) touchReceive() {
	c.missedPongs = 0
	c.receiveMu.Lock()
	c.lastReceive = time.Now()
	c.receiveMu.Unlock()
}

// closeWithCode performs a server-initiated close: send a Close frame,
// transition to CLOSED, and invoke onClose. initiatedByClient is always
// false here; the client-initiated path lives in handleControl.
func (c *Connection) closeWithCode(code int, reason string, initiatedByClient bool) {
	c.setState(StateClosing)
	c.sendControlAndWait(OpClose, encodeClosePayload(code, reason))
	c.setState(StateClosed)
	if c.handlers.OnClose != nil {
		c.handlers.OnClose(c, code, reason, initiatedByClient)
	}
	// Closing the socket here (rather than waiting for Run's deferred
	// shutdown) unblocks a readLoop parked in a blocking Read when the
	// close is triggered by the heartbeat or inactivity supervisor.
	c.shutdown()
}

func (c *Connection) shutdown() {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.registry.Remove(c.ID)
		_ = c.netConn.Close()
	})
}

func parseClosePayload(payload []byte) (code int, reason string) {
	if len(payload) < 2 {
		return CloseNormal, ""
	}
	code = int(payload[0])<<8 | int(payload[1])
	reason = string(payload[2:])
	return code, reason
}

func encodeClosePayload(code int, reason string) []byte {
	out := make([]byte, 2+len(reason))
	out[0] = byte(code >> 8)
	out[1] = byte(code)
	copy(out[2:], reason)
	return out
}
