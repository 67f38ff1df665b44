package gate

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/bobg/errors"
)

// WaitTimeout is Wait bounded by d on the gate's clock.
//
// It races Wait against a timer and cancels whichever loses. The result is
// nil if the gate opened (or was released) first, an error matching
// ErrTimeout if the timer fired first, and ctx.Err() if ctx was done first.
// A d of zero or less means no bound.
func (g *Gate) WaitTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return g.Wait(ctx)
	}

	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var fired atomic.Bool
	t := g.clock().AfterFunc(d, func() {
		fired.Store(true)
		cancel()
	})
	defer t.Stop()

	err := g.Wait(wctx)
	if err != nil && fired.Load() && ctx.Err() == nil {
		return errors.Wrapf(ErrTimeout, "after %s", d)
	}
	return err
}
