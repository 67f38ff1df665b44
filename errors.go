package gate

import "github.com/bobg/errors"

var (
	// ErrTimeout is returned by WaitTimeout when the timer fires before the
	// gate opens.
	ErrTimeout = errors.New("gate: wait timed out")

	// ErrResolved is returned by Future.Resolve on every call after the first.
	ErrResolved = errors.New("future: already resolved")

	// ErrPoolClosed is returned when Submit is called after Close has begun.
	ErrPoolClosed = errors.New("worker pool closed")

	// ErrNilJob is returned when Submit is called with a nil job function.
	ErrNilJob = errors.New("pool: nil job submitted")
)
