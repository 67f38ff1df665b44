package gate

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Pool runs submitted jobs on a fixed set of worker goroutines.
// Workers can be held back with Pause and let go again with Resume.
type Pool interface {
	// Submit enqueues a job to be executed by the pool.
	//
	// Behavior:
	//   - Returns ErrNilJob if job is nil.
	//   - Returns ErrPoolClosed if the pool is closed (or closing).
	//   - Returns ctx.Err() if ctx is canceled before the job can be enqueued
	//     (e.g., while waiting for queue capacity).
	//   - Otherwise returns nil and guarantees that the job will be run exactly once.
	//
	// Submitting to a paused pool is allowed; the job waits for Resume or Close.
	Submit(ctx context.Context, job func()) error

	// Pause stops workers from starting jobs they pick up from now on.
	// Jobs already started run to completion.
	Pause()

	// Resume lets paused workers start jobs again.
	Resume()

	// Paused reports whether the pool is paused.
	Paused() bool

	// Close shuts the pool down:
	//   1) Rejects further Submit, Pause and Resume calls.
	//   2) Resumes the pool, so jobs held by Pause are not stranded.
	//   3) Waits for in-flight submitters to leave the enqueue window.
	//   4) Closes the queue and waits for workers to drain it.
	//
	// Pause and Resume do nothing once Close has shut the enqueue window.
	// Close is idempotent and safe for concurrent use.
	Close()
}

// PoolOption configures optional behavior of the pool.
type PoolOption func(*pool)

// WithPanicHandler installs a handler invoked with the recovered value
// of any panic that occurs while running a job.
func WithPanicHandler(h func(any)) PoolOption {
	return func(p *pool) { p.panicHandler = h }
}

// WithPoolLogger sets the pool's logger. By default nothing is logged.
func WithPoolLogger(log *zap.Logger) PoolOption {
	return func(p *pool) { p.log = log }
}

// StartPaused makes NewWorkerPool return a paused pool.
func StartPaused() PoolOption {
	return func(p *pool) { p.startPaused = true }
}

// NewWorkerPool constructs a new worker pool with the given number of workers and queue size.
//
//	workers: number of worker goroutines (>= 1; values < 1 are set to 1)
//	qsize:   maximum number of queued jobs (>= 0; values < 0 are set to 0)
//
// Call Close to shut it down.
func NewWorkerPool(workers, qsize int, opts ...PoolOption) Pool {
	if workers < 1 {
		workers = 1
	}
	if qsize < 0 {
		qsize = 0
	}

	p := &pool{
		work: make(chan func(), qsize),
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	p.running = New(!p.startPaused, WithName("pool"), WithLogger(p.log))

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}

	return p
}

type pool struct {
	// work is only closed by Close, once no submitter is inside the window.
	work chan func()
	wg   sync.WaitGroup

	window

	// running is open unless the pool is paused.
	running *Gate

	panicHandler func(any)
	log          *zap.Logger
	startPaused  bool

	closeOnce sync.Once
}

// Submit implements Pool.Submit.
func (p *pool) Submit(ctx context.Context, job func()) error {
	if job == nil {
		return ErrNilJob
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if !p.window.enter() {
		return ErrPoolClosed
	}
	defer p.window.exit()

	select {
	case p.work <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pause implements Pool.Pause.
func (p *pool) Pause() {
	p.window.do(func() {
		p.running.Lock()
		p.log.Debug("pool paused")
	})
}

// Resume implements Pool.Resume.
func (p *pool) Resume() {
	p.window.do(func() {
		p.running.Signal()
		p.log.Debug("pool resumed")
	})
}

// Paused implements Pool.Paused.
func (p *pool) Paused() bool {
	return !p.running.IsOpen()
}

// Close implements Pool.Close.
func (p *pool) Close() {
	p.closeOnce.Do(func() {
		// After close no Pause is running or can start, so this Signal is
		// the last word on the gate. Submitters blocked on a full queue
		// behind a paused pool drain through it.
		p.window.close()
		p.running.Signal()
		p.window.wait()

		close(p.work)
		p.wg.Wait()

		p.running.Release()
	})
}

// worker runs jobs until the work channel is closed and drained.
func (p *pool) worker() {
	defer p.wg.Done()
	for job := range p.work {
		// Never cancelled: Close opens the gate before closing work.
		_ = p.running.Wait(context.Background())
		p.run(job)
	}
}

// run executes a single job with panic safety.
func (p *pool) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("job panicked", zap.Any("panic", r))
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
		}
	}()
	job()
}
