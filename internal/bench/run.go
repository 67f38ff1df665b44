package bench

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bobg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	gate "github.com/A2Y-D5L/go-gate"
)

// pollInterval is how often Run checks that waiters have settled.
const pollInterval = 100 * time.Microsecond

// Report summarizes a Run.
type Report struct {
	Scenario  string
	Rounds    int
	Waiters   int
	Opened    int
	Cancelled int
	Released  int
	Elapsed   time.Duration
}

func (r Report) String() string {
	return fmt.Sprintf("%s: %d rounds, %d waiters (%d opened, %d cancelled, %d released) in %s",
		r.Scenario, r.Rounds, r.Waiters, r.Opened, r.Cancelled, r.Released, r.Elapsed)
}

// Run executes sc and returns what happened.
// The error aggregates every guarantee the gate broke, across all rounds;
// the Report is filled in either way.
func Run(ctx context.Context, sc Scenario, log *zap.Logger) (Report, error) {
	if err := sc.Validate(); err != nil {
		return Report{}, errors.Wrap(err, "invalid scenario")
	}
	if log == nil {
		log = zap.NewNop()
	}

	rep := Report{Scenario: sc.Name}
	start := time.Now()

	var violations error
	for i := range sc.Rounds {
		res, err := runRound(ctx, sc, i, log)
		if ctx.Err() != nil {
			rep.Elapsed = time.Since(start)
			return rep, multierr.Append(violations, ctx.Err())
		}
		rep.Rounds++
		rep.Waiters += sc.Waiters
		for _, r := range res {
			switch r.Reason {
			case gate.ResumeOpen:
				rep.Opened++
			case gate.ResumeCancel:
				rep.Cancelled++
			case gate.ResumeRelease:
				rep.Released++
			}
		}
		violations = multierr.Append(violations, err)
		log.Debug("round finished", zap.Int("round", i), zap.Error(err))
	}
	rep.Elapsed = time.Since(start)

	log.Info("bench finished",
		zap.String("scenario", rep.Scenario),
		zap.Int("rounds", rep.Rounds),
		zap.Int("violations", len(multierr.Errors(violations))),
		zap.Duration("elapsed", rep.Elapsed))
	return rep, violations
}

// runRound queues sc.Waiters goroutines on a closed gate, cancels the
// chosen ones, then opens or releases the gate and checks the outcome.
func runRound(ctx context.Context, sc Scenario, round int, log *zap.Logger) ([]gate.Resume, error) {
	var resumes []gate.Resume // appended under the gate's lock
	g := gate.New(false,
		gate.WithName(fmt.Sprintf("%s/%d", sc.Name, round)),
		gate.WithLogger(log),
		gate.WithResumeHook(func(r gate.Resume) { resumes = append(resumes, r) }),
	)
	released := false
	defer func() {
		if !released {
			g.Release()
		}
	}()

	var (
		eg       errgroup.Group
		results  = make([]error, sc.Waiters)
		cancels  = make([]context.CancelFunc, sc.Waiters)
		toCancel = make([]bool, sc.Waiters)

		// A waiter that times out leaves the queue early; these let the
		// round account for it instead of polling forever.
		returned, cancelledReturned atomic.Int64
	)
	for i := range sc.Waiters {
		wctx, cancel := context.WithCancel(ctx)
		cancels[i] = cancel
		toCancel[i] = sc.CancelEvery > 0 && (i+1)%sc.CancelEvery == 0
		eg.Go(func() error {
			results[i] = g.WaitTimeout(wctx, sc.Timeout)
			returned.Add(1)
			if toCancel[i] {
				cancelledReturned.Add(1)
			}
			return nil
		})
	}
	defer func() {
		for _, cancel := range cancels {
			cancel()
		}
		_ = eg.Wait()
	}()

	settled := func() bool { return g.Pending()+int(returned.Load()) == sc.Waiters }
	if err := poll(ctx, settled); err != nil {
		return nil, err
	}

	var nCancel int
	for i, c := range toCancel {
		if c {
			cancels[i]()
			nCancel++
		}
	}
	if err := poll(ctx, func() bool { return settled() && cancelledReturned.Load() == int64(nCancel) }); err != nil {
		return nil, err
	}

	if sc.Release {
		g.Release()
		released = true
	} else {
		g.Signal()
	}
	_ = eg.Wait()

	return resumes, check(sc, round, g, results, toCancel, resumes)
}

// poll checks cond every pollInterval until it holds or ctx is done.
func poll(ctx context.Context, cond func() bool) error {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for !cond() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

func check(sc Scenario, round int, g *gate.Gate, results []error, cancelled []bool, resumes []gate.Resume) error {
	var errs error
	fail := func(format string, args ...any) {
		errs = multierr.Append(errs, fmt.Errorf("round %d: "+format, append([]any{round}, args...)...))
	}

	for i, err := range results {
		switch {
		case errors.Is(err, gate.ErrTimeout):
			fail("waiter %d timed out (lost wakeup)", i)
		case cancelled[i] && !errors.Is(err, context.Canceled):
			fail("cancelled waiter %d returned %v", i, err)
		case !cancelled[i] && err != nil:
			fail("waiter %d returned %v", i, err)
		}
	}

	if len(resumes) != sc.Waiters {
		fail("%d resumptions for %d waiters", len(resumes), sc.Waiters)
	}
	want := gate.ResumeOpen
	if sc.Release {
		want = gate.ResumeRelease
	}
	seen := make(map[uint64]bool, len(resumes))
	var last uint64
	for _, r := range resumes {
		if seen[r.Ticket] {
			fail("ticket %d resumed twice", r.Ticket)
		}
		seen[r.Ticket] = true
		if r.Reason != want {
			continue
		}
		if r.Ticket <= last {
			fail("ticket %d resumed after ticket %d", r.Ticket, last)
		}
		last = r.Ticket
	}
	if n := g.Pending(); n != 0 {
		fail("%d waiters still pending", n)
	}
	return errs
}
