package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// Resource state errors.
var (
	// ErrStateMismatch is returned when a transition's claimed "before"
	// state does not match the resource's tracked state. This turns the
	// classic silent barrier bug into a loud, caught error.
	ErrStateMismatch = errors.New("gpu: resource state mismatch")

	// ErrStateNoop is returned when a transition names identical before
	// and after states.
	ErrStateNoop = errors.New("gpu: transition to identical state")
)

// ResourceState describes how the GPU may access a resource next.
// Drivers do no implicit tracking here: every read must be preceded by
// the matching transition, and the tracker enforces that the caller's
// claim about the current state is actually true.
type ResourceState uint8

const (
	// StateUndefined is the initial state of a freshly created resource.
	StateUndefined ResourceState = iota
	// StateShaderResource allows sampled reads from shaders.
	StateShaderResource
	// StateUnorderedAccess allows unordered (storage) reads and writes
	// from compute shaders.
	StateUnorderedAccess
	// StateCopyDest allows transfer writes.
	StateCopyDest
	// StateCopySource allows transfer reads.
	StateCopySource
	// StateRenderTarget allows color attachment writes.
	StateRenderTarget
	// StatePresent hands the resource to the presentation engine.
	StatePresent
)

// String returns the state name.
func (s ResourceState) String() string {
	switch s {
	case StateUndefined:
		return "Undefined"
	case StateShaderResource:
		return "ShaderResource"
	case StateUnorderedAccess:
		return "UnorderedAccess"
	case StateCopyDest:
		return "CopyDest"
	case StateCopySource:
		return "CopySource"
	case StateRenderTarget:
		return "RenderTarget"
	case StatePresent:
		return "Present"
	default:
		return fmt.Sprintf("ResourceState(%d)", uint8(s))
	}
}

// stateTracker carries the current state of one resource and validates
// every transition against it. Embedded by the hal-backed wrappers.
type stateTracker struct {
	mu    sync.Mutex
	label string
	state ResourceState
}

func newStateTracker(label string, initial ResourceState) stateTracker {
	return stateTracker{label: label, state: initial}
}

// State returns the tracked state.
func (t *stateTracker) State() ResourceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// transition validates that the resource is in before and moves it to
// after. It is the only sanctioned state-change path; callers that skip
// it get ErrStateMismatch on their next transition, not corrupted
// frames.
func (t *stateTracker) transition(before, after ResourceState) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if before == after {
		return fmt.Errorf("%w: %s stays %s", ErrStateNoop, t.label, before)
	}
	if t.state != before {
		return fmt.Errorf("%w: %s is %s, transition claimed %s",
			ErrStateMismatch, t.label, t.state, before)
	}
	t.state = after
	return nil
}
