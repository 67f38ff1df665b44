package gate

import (
	"context"
	"fmt"
	"sync"
)

// Future holds the result of an asynchronous computation that some other
// goroutine will deliver exactly once, typically from a callback.
//
// The zero Future is not usable; call NewFuture.
type Future[T any] struct {
	ready *Gate

	mu       sync.Mutex
	resolved bool
	val      T
	err      error
}

// NewFuture returns an unresolved Future. opts configure its internal gate.
func NewFuture[T any](opts ...Option) *Future[T] {
	return &Future[T]{ready: New(false, opts...)}
}

// Resolve stores the result and wakes every Await.
// Only the first call has any effect; later calls return ErrResolved.
func (f *Future[T]) Resolve(val T, err error) error {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return ErrResolved
	}
	f.val, f.err, f.resolved = val, err, true
	f.mu.Unlock()

	f.ready.Signal()
	return nil
}

// Await blocks until the future is resolved and returns its result.
// If ctx is done first it returns the zero value and ctx.Err().
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if err := f.ready.Wait(ctx); err != nil {
		var zero T
		return zero, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.val, f.err
}

// Resolved reports whether Resolve has been called.
func (f *Future[T]) Resolved() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolved
}

// Go runs fn on p and returns a Future for its result.
//
// If the job cannot be submitted the Future resolves at once with the
// submit error. A panic in fn resolves the Future with an error.
func Go[T any](ctx context.Context, p Pool, fn func(context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				_ = f.Resolve(zero, fmt.Errorf("panic in job: %v", r))
			}
		}()
		if err := ctx.Err(); err != nil {
			var zero T
			_ = f.Resolve(zero, err)
			return
		}
		_ = f.Resolve(fn(ctx))
	}
	if err := p.Submit(ctx, job); err != nil {
		var zero T
		_ = f.Resolve(zero, err)
	}
	return f
}
