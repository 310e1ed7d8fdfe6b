// Package suggest generates follow-up question suggestions. Calls are
// debounced: a call made while another is in flight or before the cooldown
// has elapsed gets fallback suggestions instead of a model call.
package suggest

import (
	"context"
	"sync/atomic"
	"time"
)

// Gate is the in-flight flag and last-call timestamp shared by concurrent
// callers. Every mutation is a single atomic operation.
type Gate struct {
	cooldown time.Duration
	now      func() time.Time

	inFlight atomic.Bool
	lastCall atomic.Int64
	cancel   atomic.Pointer[context.CancelFunc]
}

func NewGate(cooldown time.Duration) *Gate {
	return &Gate{cooldown: cooldown, now: time.Now}
}

// TryAcquire claims the gate. It fails when a call is in flight or the
// cooldown since the last accepted call has not elapsed.
func (g *Gate) TryAcquire() bool {
	now := g.now().UnixNano()
	last := g.lastCall.Load()
	if last != 0 && now-last < int64(g.cooldown) {
		return false
	}
	if !g.inFlight.CompareAndSwap(false, true) {
		return false
	}
	g.lastCall.Store(now)
	return true
}

// Release clears the in-flight flag.
func (g *Gate) Release() {
	g.cancel.Store(nil)
	g.inFlight.Store(false)
}

// InFlight reports whether a call currently holds the gate.
func (g *Gate) InFlight() bool { return g.inFlight.Load() }

// bind derives a cancellable context for the call holding the gate.
func (g *Gate) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	g.cancel.Store(&cancel)
	return ctx, cancel
}

// Cancel aborts the in-flight call, if any. It reports whether a call was
// cancelled.
func (g *Gate) Cancel() bool {
	fn := g.cancel.Swap(nil)
	if fn == nil {
		return false
	}
	(*fn)()
	return true
}
