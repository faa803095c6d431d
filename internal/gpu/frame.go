package gpu

import (
	"errors"
	"fmt"
	"time"
)

// Frame ring errors.
var (
	// ErrFrameInFlight is returned when Begin is called while the
	// previous frame's slot has not been advanced.
	ErrFrameInFlight = errors.New("gpu: frame already begun")

	// ErrFrameNotBegun is returned when Advance is called without a
	// matching Begin.
	ErrFrameNotBegun = errors.New("gpu: no frame begun")
)

// FrameCount is the number of buffered frame slots; at most FrameCount
// frames are ever in flight.
const FrameCount = 3

// frameWaiter blocks until a queue timeline reaches a value. Satisfied
// by *Timeline directly in tests and by *Queue for real submissions.
type frameWaiter interface {
	WaitFor(v uint64, timeout time.Duration) error
}

// FrameSlot is the per-swap-chain-buffer state. A slot is exclusively
// owned by the frame currently occupying it; the retire value gates
// reuse.
type FrameSlot struct {
	// Index is the slot's position in the ring.
	Index int

	// Retire is the graphics timeline value that must be signalled
	// before this slot's resources may be repopulated. Zero means the
	// slot has never been used.
	Retire uint64
}

// FrameRing rotates through FrameCount slots, enforcing bounded
// GPU-ahead latency: Begin blocks until the frame that last owned the
// upcoming slot has retired, so frame k+FrameCount can never populate
// resources the GPU is still reading for frame k.
type FrameRing struct {
	slots   [FrameCount]FrameSlot
	current int
	begun   bool

	// frames counts completed Begin/Advance cycles.
	frames uint64
}

// NewFrameRing creates a ring with all slots immediately available.
func NewFrameRing() *FrameRing {
	r := &FrameRing{}
	for i := range r.slots {
		r.slots[i].Index = i
	}
	return r
}

// Begin claims the current slot, blocking on the queue timeline until
// the slot's previous occupant has retired.
func (r *FrameRing) Begin(w frameWaiter, timeout time.Duration) (*FrameSlot, error) {
	if r.begun {
		return nil, ErrFrameInFlight
	}

	slot := &r.slots[r.current]
	if slot.Retire != 0 {
		if err := w.WaitFor(slot.Retire, timeout); err != nil {
			return nil, fmt.Errorf("wait for frame slot %d (fence %d): %w",
				slot.Index, slot.Retire, err)
		}
	}

	r.begun = true
	return slot, nil
}

// Advance records the submitted fence value for the active slot and
// rotates to the next one. The value is observed by Begin when the ring
// wraps back around.
func (r *FrameRing) Advance(submitted uint64) error {
	if !r.begun {
		return ErrFrameNotBegun
	}
	r.slots[r.current].Retire = submitted
	r.current = (r.current + 1) % FrameCount
	r.begun = false
	r.frames++
	return nil
}

// Cancel abandons a begun frame without rotating: nothing was
// submitted, so the slot's previous retire value still gates its reuse.
func (r *FrameRing) Cancel() {
	r.begun = false
}

// FramesCompleted returns the number of completed frames.
func (r *FrameRing) FramesCompleted() uint64 { return r.frames }

// InFlight reports whether a frame is currently between Begin and
// Advance.
func (r *FrameRing) InFlight() bool { return r.begun }
