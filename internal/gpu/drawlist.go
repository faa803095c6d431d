package gpu

// frameSegment is an overflow run spilled by an early batcher flush.
// Segments draw before the frame's tail run, preserving paint order.
type frameSegment struct {
	data    []byte
	batches []Batch
}

// drawRun is one draw call: a contiguous same-kind run at a byte offset
// in an instance buffer. Runs with grid set draw from the compute
// dispatcher's expanded instance buffer instead of the frame slot's.
type drawRun struct {
	offset uint64
	batch  Batch
	grid   bool
}

// instanceBytesNeeded returns the byte size of a frame's full instance
// stream: every spilled segment plus the tail run.
func instanceBytesNeeded(segments []frameSegment, tailInstances int) uint64 {
	n := uint64(tailInstances) * QuadInstanceSize
	for _, seg := range segments {
		n += uint64(len(seg.data))
	}
	return n
}

// instanceBufferSize rounds a byte requirement up to whole slot-buffer
// granules, so a workload that overflows every frame settles on one
// stable buffer size instead of reallocating per frame.
func instanceBufferSize(need uint64) uint64 {
	const granule = uint64(MaxInstancesPerFrame) * QuadInstanceSize
	if need <= granule {
		return granule
	}
	return (need + granule - 1) / granule * granule
}

// layoutDrawRuns builds the frame's draw list: spilled segments first,
// then the tail, each run offset by its position in the packed upload.
// When grid runs are present (cell-index offsets into the compute
// instance buffer) they splice in after the first splice CPU batches,
// which places the GPU-expanded glyph layer above the backgrounds and
// below the decorations.
func layoutDrawRuns(segments []frameSegment, tail []Batch, grid []Batch, splice int) []drawRun {
	runs := make([]drawRun, 0, len(tail)+len(grid)+8)
	pending := len(grid) > 0
	emitted := 0
	spliceGrid := func() {
		if !pending || emitted < splice {
			return
		}
		for _, g := range grid {
			runs = append(runs, drawRun{offset: uint64(g.Offset) * QuadInstanceSize, batch: g, grid: true})
		}
		pending = false
	}

	spliceGrid()
	base := uint64(0)
	for _, seg := range segments {
		for _, b := range seg.batches {
			runs = append(runs, drawRun{offset: base + uint64(b.Offset)*QuadInstanceSize, batch: b})
			emitted++
			spliceGrid()
		}
		base += uint64(len(seg.data))
	}
	for _, b := range tail {
		runs = append(runs, drawRun{offset: base + uint64(b.Offset)*QuadInstanceSize, batch: b})
		emitted++
		spliceGrid()
	}
	if pending {
		for _, g := range grid {
			runs = append(runs, drawRun{offset: uint64(g.Offset) * QuadInstanceSize, batch: g, grid: true})
		}
	}
	return runs
}
