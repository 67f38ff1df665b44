package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewWorkerPool(t *testing.T) {
	p := NewWorkerPool(2, 10)
	require.NotNil(t, p)
	assert.False(t, p.Paused())
	p.Close()

	// workers < 1 is raised to 1
	p = NewWorkerPool(0, 10)
	p.Close()

	// qsize < 0 is raised to 0
	p = NewWorkerPool(2, -1)
	p.Close()
}

func TestSubmitBasic(t *testing.T) {
	p := NewWorkerPool(1, 1, WithPoolLogger(zaptest.NewLogger(t)))
	defer p.Close()

	executed := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { close(executed) }))

	select {
	case <-executed:
	case <-time.After(time.Second):
		t.Fatal("job not executed within timeout")
	}
}

func TestSubmitRejects(t *testing.T) {
	p := NewWorkerPool(1, 0)

	assert.ErrorIs(t, p.Submit(context.Background(), nil), ErrNilJob)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Submit(ctx, func() {}), context.Canceled)

	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Submit(context.Background(), func() {}), ErrPoolClosed)
}

func TestPanicHandler(t *testing.T) {
	caught := make(chan any, 1)
	p := NewWorkerPool(1, 1, WithPanicHandler(func(r any) { caught <- r }))
	defer p.Close()

	require.NoError(t, p.Submit(context.Background(), func() { panic("test panic") }))

	select {
	case r := <-caught:
		assert.Equal(t, "test panic", r)
	case <-time.After(time.Second):
		t.Fatal("panic not caught within timeout")
	}

	// The worker survives the panic.
	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { close(done) }))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
}

func TestConcurrentSubmits(t *testing.T) {
	p := NewWorkerPool(5, 10)

	const numJobs = 100
	var ran atomic.Int64
	var wg sync.WaitGroup
	for range numJobs {
		wg.Go(func() {
			assert.NoError(t, p.Submit(context.Background(), func() { ran.Add(1) }))
		})
	}
	wg.Wait()
	p.Close()

	assert.Equal(t, int64(numJobs), ran.Load())
}

func TestSubmitContextCancelDuringBlock(t *testing.T) {
	p := NewWorkerPool(1, 0)
	defer p.Close()

	release := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { <-release }))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Submit(ctx, func() {}) }()

	select {
	case err := <-done:
		t.Fatalf("Submit should have blocked, got %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Submit did not return after cancel")
	}
	close(release)
}

func TestPauseHoldsJobs(t *testing.T) {
	p := NewWorkerPool(2, 10)
	defer p.Close()

	p.Pause()
	require.True(t, p.Paused())

	var ran atomic.Int64
	for range 4 {
		require.NoError(t, p.Submit(context.Background(), func() { ran.Add(1) }))
	}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int64(0), ran.Load(), "jobs ran while paused")

	p.Resume()
	assert.False(t, p.Paused())
	require.Eventually(t, func() bool { return ran.Load() == 4 }, time.Second, time.Millisecond)
}

func TestStartPaused(t *testing.T) {
	p := NewWorkerPool(1, 1, StartPaused())
	defer p.Close()

	assert.True(t, p.Paused())
	done := make(chan struct{})
	require.NoError(t, p.Submit(context.Background(), func() { close(done) }))

	select {
	case <-done:
		t.Fatal("job ran on a pool started paused")
	case <-time.After(30 * time.Millisecond):
	}
	p.Resume()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not run after Resume")
	}
}

func TestCloseDrainsPausedPool(t *testing.T) {
	p := NewWorkerPool(1, 0, StartPaused())

	var ran atomic.Int64
	// With qsize 0 the second Submit blocks until the paused worker takes
	// a job off the queue, which only Close allows.
	require.NoError(t, p.Submit(context.Background(), func() { ran.Add(1) }))
	submitted := make(chan error, 1)
	go func() { submitted <- p.Submit(context.Background(), func() { ran.Add(1) }) }()
	time.Sleep(20 * time.Millisecond)

	p.Close()
	require.NoError(t, <-submitted)
	assert.Equal(t, int64(2), ran.Load())

	p.Pause()
	assert.False(t, p.Paused(), "Pause after Close must do nothing")
}

// closeWithin fails the test if p.Close does not return within d.
func closeWithin(t *testing.T, p Pool, d time.Duration) {
	t.Helper()
	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(d):
		t.Fatal("Close did not return")
	}
}

func TestPauseDuringCloseIsIgnored(t *testing.T) {
	// Pause lands right after Close opens the gate for the last time.
	var (
		p      Pool
		hooked atomic.Bool
	)
	core, _ := observer.New(zapcore.DebugLevel)
	log := zap.New(core, zap.Hooks(func(e zapcore.Entry) error {
		if e.Message == "gate signaled" && hooked.CompareAndSwap(false, true) {
			p.Pause()
		}
		return nil
	}))
	p = NewWorkerPool(1, 0, StartPaused(), WithPoolLogger(log))

	var ran atomic.Int64
	require.NoError(t, p.Submit(context.Background(), func() { ran.Add(1) }))
	require.Eventually(t, func() bool { return p.(*pool).running.Pending() == 1 }, time.Second, time.Millisecond,
		"worker did not block on the paused gate")

	var (
		wg       sync.WaitGroup
		accepted atomic.Int64
	)
	for range 3 {
		wg.Go(func() {
			err := p.Submit(context.Background(), func() { ran.Add(1) })
			if err == nil {
				accepted.Add(1)
				return
			}
			assert.ErrorIs(t, err, ErrPoolClosed)
		})
	}
	time.Sleep(20 * time.Millisecond)

	closeWithin(t, p, 2*time.Second)
	wg.Wait()

	assert.True(t, hooked.Load(), "Close did not signal the paused gate")
	assert.Equal(t, 1+accepted.Load(), ran.Load())
	assert.False(t, p.Paused())
}

func TestCloseWithConcurrentPauseResume(t *testing.T) {
	for range 50 {
		p := NewWorkerPool(2, 0, StartPaused())

		var ran, accepted atomic.Int64
		stop := make(chan struct{})
		var wg sync.WaitGroup
		for range 2 {
			wg.Go(func() {
				for {
					select {
					case <-stop:
						return
					default:
					}
					p.Pause()
					p.Resume()
					p.Pause()
				}
			})
		}
		for range 4 {
			wg.Go(func() {
				if err := p.Submit(context.Background(), func() { ran.Add(1) }); err == nil {
					accepted.Add(1)
				}
			})
		}

		closeWithin(t, p, 2*time.Second)
		close(stop)
		wg.Wait()

		require.Equal(t, accepted.Load(), ran.Load())
		require.False(t, p.Paused())
	}
}
