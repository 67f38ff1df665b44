// Package gate provides a manual-reset, cancellable gate.
//
// A Gate is either open or closed. Wait returns at once on an open gate and
// blocks on a closed one until Signal opens it, the caller's context is done,
// or the last owner releases the gate. Blocked waiters are resumed in the
// order they arrived.
//
// Opening the gate does not close it again: after Signal every Wait passes
// through until Lock is called.
package gate

import (
	"context"
	"sync"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Gate is a binary signal that goroutines can wait on.
//
// A Gate starts with one owner. Retain adds an owner and Release drops one;
// when the last owner releases it, every goroutine still blocked in Wait is
// resumed and the gate becomes inert.
//
// The zero Gate is open and has one owner. Gate is safe for concurrent use.
type Gate struct {
	mu sync.Mutex

	// locked is true while the gate is closed.
	locked  bool
	pending waitQueue

	// extraOwners counts owners beyond the first.
	extraOwners int
	released    bool

	// lastTicket is the ticket handed to the most recently queued waiter.
	lastTicket uint64

	name     string
	log      *zap.Logger
	clk      clock.Clock
	onResume func(Resume)
}

// Option configures a Gate.
type Option func(*Gate)

// WithName names the gate in log output.
func WithName(name string) Option {
	return func(g *Gate) { g.name = name }
}

// WithLogger sets the gate's logger. By default nothing is logged.
func WithLogger(log *zap.Logger) Option {
	return func(g *Gate) { g.log = log }
}

// WithClock sets the clock used by WaitTimeout.
// By default it's clock.New(), the wall clock.
// Tests can pass a clock.Mock.
func WithClock(clk clock.Clock) Option {
	return func(g *Gate) { g.clk = clk }
}

// WithResumeHook installs a function called once for every waiter that is
// resumed. It runs with the gate's lock held, in resumption order, so it
// must not call back into the gate.
func WithResumeHook(hook func(Resume)) Option {
	return func(g *Gate) { g.onResume = hook }
}

// New returns a gate that is open or closed according to open.
// The caller is its only owner.
func New(open bool, opts ...Option) *Gate {
	g := &Gate{locked: !open}
	for _, opt := range opts {
		opt(g)
	}
	if g.log != nil && g.name != "" {
		g.log = g.log.With(zap.String("gate", g.name))
	}
	return g
}

var nopLogger = zap.NewNop()

func (g *Gate) logger() *zap.Logger {
	if g.log == nil {
		return nopLogger
	}
	return g.log
}

func (g *Gate) clock() clock.Clock {
	if g.clk == nil {
		return clock.New()
	}
	return g.clk
}

// Signal opens the gate and resumes every waiter, oldest first.
// Signal on an open gate does nothing.
func (g *Gate) Signal() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return
	}
	g.locked = false
	if n := g.drain(ResumeOpen); n > 0 {
		g.logger().Debug("gate signaled", zap.Int("resumed", n))
	}
}

// Lock closes the gate. Waiters already blocked stay blocked.
func (g *Gate) Lock() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		return
	}
	g.locked = true
}

// Wait blocks until the gate is open.
//
// It returns nil if the gate was open on arrival, was opened by Signal, or
// was released by its last owner while the caller waited. Callers that need
// to tell the last case apart can check Released.
//
// If ctx is done first, Wait returns ctx.Err() and the gate forgets the
// caller. If Signal resumed the caller before the cancellation was seen,
// Wait returns nil instead.
func (g *Gate) Wait(ctx context.Context) error {
	w := newWaiter()

	g.mu.Lock()
	if g.released {
		g.resume(w, ResumeRelease)
		g.mu.Unlock()
		return nil
	}
	if !g.locked {
		g.resume(w, ResumeOpen)
		g.mu.Unlock()
		return nil
	}
	if err := ctx.Err(); err != nil {
		g.mu.Unlock()
		return err
	}
	g.lastTicket++
	w.ticket = g.lastTicket
	w.state = waiterArmed
	g.pending.push(w)
	g.logger().Debug("waiter queued", zap.Uint64("ticket", w.ticket), zap.Int("pending", g.pending.len()))
	g.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if w.state == waiterResumed {
		// Signal or Release got there first.
		return nil
	}
	g.pending.remove(w)
	g.resume(w, ResumeCancel)
	g.logger().Debug("waiter cancelled", zap.Uint64("ticket", w.ticket), zap.Error(ctx.Err()))
	return ctx.Err()
}

// IsOpen reports whether the gate is currently open.
// A released gate counts as open.
func (g *Gate) IsOpen() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released || !g.locked
}

// Pending returns the number of goroutines blocked in Wait.
func (g *Gate) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending.len()
}

// Released reports whether the last owner has released the gate.
func (g *Gate) Released() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.released
}

// Retain adds an owner to g and returns g.
// Every Retain must be paired with a Release.
// Retaining a released gate has no effect.
func (g *Gate) Retain() *Gate {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		g.logger().Warn("retain after release")
		return g
	}
	g.extraOwners++
	return g
}

// Release drops one owner. Dropping the last owner tears the gate down:
// every blocked waiter is resumed, oldest first, and later calls to Signal
// and Lock do nothing while Wait returns at once.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.released {
		g.logger().Warn("release after last owner released")
		return
	}
	if g.extraOwners > 0 {
		g.extraOwners--
		return
	}
	n := g.drain(ResumeRelease)
	g.released = true
	g.logger().Debug("gate released", zap.Int("resumed", n))
}

// drain resumes and dequeues every pending waiter in arrival order.
// g.mu must be held.
func (g *Gate) drain(reason ResumeReason) int {
	var n int
	for w := g.pending.pop(); w != nil; w = g.pending.pop() {
		if g.resume(w, reason) {
			n++
		}
	}
	return n
}

// resume wakes w once and reports whether it did.
// g.mu must be held.
func (g *Gate) resume(w *waiter, reason ResumeReason) bool {
	if !w.resume() {
		g.logger().Debug("waiter already resumed", zap.Uint64("ticket", w.ticket), zap.Stringer("reason", reason))
		return false
	}
	if g.onResume != nil {
		g.onResume(Resume{Ticket: w.ticket, Reason: reason})
	}
	return true
}
