//go:build !nogpu

package termgpu

import (
	"errors"
	"testing"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/internal/gpu"
)

// fakeProvider returns arbitrary values from the HAL provider methods.
type fakeProvider struct {
	device any
	queue  any
}

func (f *fakeProvider) HalDevice() any { return f.device }
func (f *fakeProvider) HalQueue() any  { return f.queue }

func TestExtractHal(t *testing.T) {
	tests := []struct {
		name     string
		provider any
	}{
		{"nil provider", nil},
		{"wrong shape", struct{}{}},
		{"nil handles", &fakeProvider{}},
		{"non-hal values", &fakeProvider{device: 42, queue: "queue"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := extractHal(tt.provider)
			if !errors.Is(err, ErrNoDevice) {
				t.Fatalf("extractHal() error = %v, want ErrNoDevice", err)
			}
		})
	}
}

func TestNewRequiresFont(t *testing.T) {
	// Provider extraction runs before font checks, so a bad provider is
	// the first error.
	_, err := New()
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("New() error = %v, want ErrNoDevice", err)
	}
}

func TestAppendCellRunCoalescing(t *testing.T) {
	var runs []gpu.Batch

	// Contiguous same-kind cells extend one run.
	runs = appendCellRun(runs, 0, gpu.ShadingTextGrayscale)
	runs = appendCellRun(runs, 1, gpu.ShadingTextGrayscale)
	runs = appendCellRun(runs, 2, gpu.ShadingTextGrayscale)
	if len(runs) != 1 || runs[0] != (gpu.Batch{Offset: 0, Count: 3, Shading: gpu.ShadingTextGrayscale}) {
		t.Fatalf("runs = %+v, want one run of 3 at cell 0", runs)
	}

	// A blank cell breaks the run even with the same kind after it.
	runs = appendCellRun(runs, 5, gpu.ShadingTextGrayscale)
	if len(runs) != 2 || runs[1] != (gpu.Batch{Offset: 5, Count: 1, Shading: gpu.ShadingTextGrayscale}) {
		t.Fatalf("runs = %+v, want gap to start run at cell 5", runs)
	}

	// A kind change breaks the run even when contiguous.
	runs = appendCellRun(runs, 6, gpu.ShadingTextClearType)
	if len(runs) != 3 || runs[2] != (gpu.Batch{Offset: 6, Count: 1, Shading: gpu.ShadingTextClearType}) {
		t.Fatalf("runs = %+v, want kind change to start run at cell 6", runs)
	}
}
