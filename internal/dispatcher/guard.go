package dispatcher

import (
	"sync"

	"github.com/example/mockgw/internal/apierr"
	"github.com/example/mockgw/internal/middleware"
)

// timeoutGuard wraps a middleware.ResponseWriter so the gateway-timeout
// timer (spec.md §4.5 step 8) can force a 504 and permanently suppress any
// write the handler goroutine attempts afterward, without canceling that
// goroutine (Go has no general-purpose goroutine cancellation).
type timeoutGuard struct {
	mu     sync.Mutex
	inner  middleware.ResponseWriter
	forced bool
}

func newTimeoutGuard(inner middleware.ResponseWriter) *timeoutGuard {
	return &timeoutGuard{inner: inner}
}

func (g *timeoutGuard) Status(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.forced {
		return
	}
	g.inner.Status(code)
}

func (g *timeoutGuard) SetHeader(key, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.forced {
		return
	}
	g.inner.SetHeader(key, value)
}

func (g *timeoutGuard) JSON(v interface{}) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.forced {
		return nil
	}
	return g.inner.JSON(v)
}

func (g *timeoutGuard) Send(b []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.forced {
		return nil
	}
	return g.inner.Send(b)
}

func (g *timeoutGuard) Finalized() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.forced || g.inner.Finalized()
}

// forceTimeout writes the default 504 if nothing has been written yet,
// then locks out every subsequent write through this guard.
func (g *timeoutGuard) forceTimeout() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.forced || g.inner.Finalized() {
		g.forced = true
		return
	}
	g.inner.Status(apierr.New(apierr.Timeout, "Gateway Timeout").Status)
	_ = g.inner.JSON(apierr.Body{Error: "Gateway Timeout"})
	g.forced = true
}
