package gate

// waiterState is the lifecycle of a single Wait call's resumption token.
//
//	unarmed -> armed -> resumed
//	unarmed ----------> resumed   (gate was open, or released)
type waiterState uint8

const (
	waiterUnarmed waiterState = iota
	waiterArmed
	waiterResumed
)

func (s waiterState) String() string {
	switch s {
	case waiterUnarmed:
		return "unarmed"
	case waiterArmed:
		return "armed"
	case waiterResumed:
		return "resumed"
	}
	return "unknown"
}

// ResumeReason says why a waiter stopped waiting.
type ResumeReason uint8

const (
	// ResumeOpen means the waiter observed the gate open, either on arrival
	// or when Signal drained the queue.
	ResumeOpen ResumeReason = iota
	// ResumeCancel means the waiter's context was done first.
	ResumeCancel
	// ResumeRelease means the gate was torn down while the waiter was queued.
	// It carries no "opened" meaning.
	ResumeRelease
)

func (r ResumeReason) String() string {
	switch r {
	case ResumeOpen:
		return "open"
	case ResumeCancel:
		return "cancel"
	case ResumeRelease:
		return "release"
	}
	return "unknown"
}

// Resume describes one waiter being resumed. It is passed to the hook
// installed with WithResumeHook.
type Resume struct {
	// Ticket is the arrival sequence number of a queued waiter, starting at 1.
	// It is 0 for waiters that never queued.
	Ticket uint64
	Reason ResumeReason
}

// waiter is owned by exactly one in-flight Wait.
// All fields except ready are guarded by the owning Gate's mutex.
type waiter struct {
	state  waiterState
	ticket uint64
	ready  chan struct{}

	// Neighbours in the Gate's pending queue while armed.
	prev, next *waiter
}

func newWaiter() *waiter {
	return &waiter{ready: make(chan struct{})}
}

// resume moves w to resumed and wakes its Wait.
// It reports false, and does nothing, if w was already resumed.
func (w *waiter) resume() bool {
	if w.state == waiterResumed {
		return false
	}
	w.state = waiterResumed
	close(w.ready)
	return true
}

// waitQueue is an intrusive FIFO of armed waiters.
// Removal of an arbitrary member is O(1), which cancellation relies on.
type waitQueue struct {
	head, tail *waiter
	n          int
}

func (q *waitQueue) len() int { return q.n }

func (q *waitQueue) push(w *waiter) {
	w.prev, w.next = q.tail, nil
	if q.tail == nil {
		q.head = w
	} else {
		q.tail.next = w
	}
	q.tail = w
	q.n++
}

// pop removes and returns the oldest waiter, or nil.
func (q *waitQueue) pop() *waiter {
	w := q.head
	if w == nil {
		return nil
	}
	q.remove(w)
	return w
}

// remove unlinks w. w must be a member of q.
func (q *waitQueue) remove(w *waiter) {
	if w.prev == nil {
		q.head = w.next
	} else {
		w.prev.next = w.next
	}
	if w.next == nil {
		q.tail = w.prev
	} else {
		w.next.prev = w.prev
	}
	w.prev, w.next = nil, nil
	q.n--
}
