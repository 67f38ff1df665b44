package gate

import "sync"

// window coordinates callers entering a short critical stretch (such as
// enqueueing a job) with a one-time shutdown that must wait for them.
//
// Shutdown is two steps: close stops new callers, wait blocks until those
// already inside have left. Work that must finish before close returns can
// run under do.
type window struct {
	mu     sync.RWMutex
	closed bool
	inside sync.WaitGroup
}

// enter reports whether the caller got in. A caller that got in must call
// exit exactly once.
func (w *window) enter() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	w.inside.Add(1)
	return true
}

func (w *window) exit() {
	w.inside.Done()
}

// do runs f unless the window is closed and reports whether it ran.
// close waits for a running f, so f must not block.
func (w *window) do(f func()) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	f()
	return true
}

// close shuts the window. When it returns no do is running and no enter or
// do can succeed. Calling it again does nothing.
func (w *window) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// wait blocks until every caller that got in has exited.
func (w *window) wait() {
	w.inside.Wait()
}
