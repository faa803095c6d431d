package gpu

import (
	"errors"
	"testing"
)

func TestStateTrackerTransition(t *testing.T) {
	tr := newStateTracker("atlas", StateUndefined)

	if err := tr.transition(StateUndefined, StateCopyDest); err != nil {
		t.Fatalf("transition Undefined->CopyDest: %v", err)
	}
	if got := tr.State(); got != StateCopyDest {
		t.Fatalf("State = %v, want CopyDest", got)
	}
	if err := tr.transition(StateCopyDest, StateShaderResource); err != nil {
		t.Fatalf("transition CopyDest->ShaderResource: %v", err)
	}
}

func TestStateTrackerMismatch(t *testing.T) {
	tr := newStateTracker("grid", StateShaderResource)

	err := tr.transition(StateCopyDest, StateUnorderedAccess)
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("mismatched transition = %v, want ErrStateMismatch", err)
	}
	// A rejected transition must leave the tracked state untouched.
	if got := tr.State(); got != StateShaderResource {
		t.Fatalf("State after rejection = %v, want ShaderResource", got)
	}
}

func TestStateTrackerNoop(t *testing.T) {
	tr := newStateTracker("instances", StateCopyDest)
	err := tr.transition(StateCopyDest, StateCopyDest)
	if !errors.Is(err, ErrStateNoop) {
		t.Fatalf("identity transition = %v, want ErrStateNoop", err)
	}
}

func TestResourceStateString(t *testing.T) {
	names := map[ResourceState]string{
		StateUndefined:       "Undefined",
		StateShaderResource:  "ShaderResource",
		StateUnorderedAccess: "UnorderedAccess",
		StateCopyDest:        "CopyDest",
		StateCopySource:      "CopySource",
		StateRenderTarget:    "RenderTarget",
		StatePresent:         "Present",
	}
	for state, want := range names {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
	if got := ResourceState(200).String(); got != "ResourceState(200)" {
		t.Errorf("unknown state String = %q", got)
	}
}
