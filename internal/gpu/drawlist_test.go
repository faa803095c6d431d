package gpu

import "testing"

// spillBatcher wires a batcher to a session-style segment spill.
type spillBatcher struct {
	*Batcher
	segments []frameSegment
}

func newSpillBatcher(capacity int) *spillBatcher {
	s := &spillBatcher{}
	s.Batcher = NewBatcher(capacity, func(instances []QuadInstance, batches []Batch) error {
		seg := frameSegment{
			data:    packInstances(instances),
			batches: make([]Batch, len(batches)),
		}
		copy(seg.batches, batches)
		s.segments = append(s.segments, seg)
		return nil
	})
	return s
}

func TestOverflowFrameFitsGrownBuffer(t *testing.T) {
	// One instance past capacity spills a full segment; the frame then
	// needs segment plus tail bytes, more than the batcher capacity alone
	// would suggest. The slot buffer must be sized for the sum.
	const capacity = 8
	b := newSpillBatcher(capacity)
	if err := b.BeginBatch(); err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	addN(t, b.Batcher, ShadingTextGrayscale, capacity+1)
	if err := b.EndBatch(); err != nil {
		t.Fatalf("EndBatch: %v", err)
	}

	if len(b.segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(b.segments))
	}
	need := instanceBytesNeeded(b.segments, len(b.Instances()))
	if want := uint64(capacity+1) * QuadInstanceSize; need != want {
		t.Fatalf("bytes needed = %d, want %d", need, want)
	}
	if capOnly := uint64(capacity) * QuadInstanceSize; need <= capOnly {
		t.Fatalf("bytes needed = %d fits a capacity-sized buffer (%d); spill not counted", need, capOnly)
	}
	if size := instanceBufferSize(need); size < need {
		t.Fatalf("buffer size %d does not hold %d bytes", size, need)
	}
}

func TestInstanceBufferSizeGranules(t *testing.T) {
	const granule = uint64(MaxInstancesPerFrame) * QuadInstanceSize
	tests := []struct {
		need, want uint64
	}{
		{0, granule},
		{1, granule},
		{granule, granule},
		{granule + 1, 2 * granule},
		{2*granule + 16, 3 * granule},
	}
	for _, tt := range tests {
		if got := instanceBufferSize(tt.need); got != tt.want {
			t.Errorf("instanceBufferSize(%d) = %d, want %d", tt.need, got, tt.want)
		}
	}
}

func TestLayoutDrawRunsSegmentsBeforeTail(t *testing.T) {
	const capacity = 8
	b := newSpillBatcher(capacity)
	if err := b.BeginBatch(); err != nil {
		t.Fatalf("BeginBatch: %v", err)
	}
	addN(t, b.Batcher, ShadingBackground, 3)
	addN(t, b.Batcher, ShadingTextGrayscale, capacity) // forces a flush mid-run
	if err := b.EndBatch(); err != nil {
		t.Fatalf("EndBatch: %v", err)
	}

	runs := layoutDrawRuns(b.segments, b.Batches(), nil, 0)

	// Every instance appears exactly once and run offsets are packed
	// contiguously in emission order.
	total := uint32(0)
	next := uint64(0)
	for i, run := range runs {
		if run.grid {
			t.Fatalf("run %d drawn from compute buffer with no grid runs", i)
		}
		if run.offset != next {
			t.Errorf("run %d offset = %d, want %d", i, run.offset, next)
		}
		next += uint64(run.batch.Count) * QuadInstanceSize
		total += run.batch.Count
	}
	if total != 3+capacity {
		t.Errorf("instances drawn = %d, want %d", total, 3+capacity)
	}
}

func TestLayoutDrawRunsGridSplice(t *testing.T) {
	tail := []Batch{
		{Offset: 0, Count: 4, Shading: ShadingBackground},
		{Offset: 4, Count: 2, Shading: ShadingSolidLine},
		{Offset: 6, Count: 1, Shading: ShadingCursor},
	}
	grid := []Batch{
		{Offset: 0, Count: 10, Shading: ShadingTextGrayscale},
		{Offset: 12, Count: 3, Shading: ShadingTextClearType},
	}

	// Splice after the background batch: glyphs draw above backgrounds
	// and below decorations and cursor.
	runs := layoutDrawRuns(nil, tail, grid, 1)
	if len(runs) != 5 {
		t.Fatalf("runs = %d, want 5", len(runs))
	}
	wantOrder := []ShadingKind{
		ShadingBackground,
		ShadingTextGrayscale, ShadingTextClearType,
		ShadingSolidLine, ShadingCursor,
	}
	for i, w := range wantOrder {
		if runs[i].batch.Shading != w {
			t.Errorf("run %d = %s, want %s", i, runs[i].batch.Shading, w)
		}
	}

	// Grid run offsets are cell indices scaled to instance bytes.
	if runs[1].offset != 0 || !runs[1].grid {
		t.Errorf("first grid run = %+v, want grid offset 0", runs[1])
	}
	if runs[2].offset != 12*QuadInstanceSize || !runs[2].grid {
		t.Errorf("second grid run = %+v, want grid offset %d", runs[2], 12*QuadInstanceSize)
	}
}

func TestLayoutDrawRunsGridPastEnd(t *testing.T) {
	// A splice beyond the CPU batch count still emits the grid runs.
	tail := []Batch{{Offset: 0, Count: 1, Shading: ShadingBackground}}
	grid := []Batch{{Offset: 5, Count: 2, Shading: ShadingTextGrayscale}}

	runs := layoutDrawRuns(nil, tail, grid, 10)
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if !runs[1].grid || runs[1].offset != 5*QuadInstanceSize {
		t.Errorf("grid run = %+v, want grid offset %d", runs[1], 5*QuadInstanceSize)
	}
}
