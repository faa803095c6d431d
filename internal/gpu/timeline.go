package gpu

import (
	"errors"
	"sync"
	"time"
)

// Timeline errors.
var (
	// ErrFenceTimeout is returned when a wait elapses before the
	// timeline reaches the requested value.
	ErrFenceTimeout = errors.New("gpu: fence wait timed out")

	// ErrTimelineRetired is returned when waiting on a value that was
	// never reserved. Waiting on an unreserved value would block forever.
	ErrTimelineRetired = errors.New("gpu: wait on unreserved timeline value")
)

// Timeline is the synchronization primitive behind every queue: a
// monotonic counter of submitted work plus a blocking "wait until the
// signalled watermark reaches v". Most cross-queue correctness bugs
// live in fence bookkeeping, so this type is deliberately tiny and
// heavily tested.
//
// Values start at 1; 0 means "nothing submitted" and is always
// considered signalled. Timeline is safe for concurrent use.
type Timeline struct {
	mu        sync.Mutex
	cond      *sync.Cond
	reserved  uint64 // highest value handed out by Reserve
	signalled uint64 // highest value observed signalled
}

// NewTimeline creates a timeline with nothing submitted.
func NewTimeline() *Timeline {
	t := &Timeline{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Reserve hands out the next submission value. The first reserved value
// is 1.
func (t *Timeline) Reserve() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reserved++
	return t.reserved
}

// LastReserved returns the highest value handed out so far.
func (t *Timeline) LastReserved() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reserved
}

// MarkSignalled raises the signalled watermark to v and wakes waiters.
// Watermarks only move forward; a stale v is a no-op.
func (t *Timeline) MarkSignalled(v uint64) {
	t.mu.Lock()
	if v > t.signalled {
		t.signalled = v
		t.cond.Broadcast()
	}
	t.mu.Unlock()
}

// Signalled returns the current watermark.
func (t *Timeline) Signalled() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signalled
}

// Reached reports whether the watermark has reached v without blocking.
func (t *Timeline) Reached(v uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.signalled >= v
}

// WaitFor blocks until the watermark reaches v or the timeout elapses.
// Waiting for 0 returns immediately. Waiting for a value that was never
// reserved fails fast with ErrTimelineRetired.
func (t *Timeline) WaitFor(v uint64, timeout time.Duration) error {
	if v == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if v > t.reserved {
		return ErrTimelineRetired
	}
	if t.signalled >= v {
		return nil
	}

	deadline := time.Now().Add(timeout)
	done := false
	timer := time.AfterFunc(timeout, func() {
		t.mu.Lock()
		done = true
		t.cond.Broadcast()
		t.mu.Unlock()
	})
	defer timer.Stop()

	for t.signalled < v {
		if done || !time.Now().Before(deadline) {
			return ErrFenceTimeout
		}
		t.cond.Wait()
	}
	return nil
}
