package gpu

import (
	"errors"
	"fmt"
)

// Batching errors.
var (
	// ErrBatchNotActive is returned when AddInstance or EndBatch is
	// called outside a BeginBatch/EndBatch pair.
	ErrBatchNotActive = errors.New("gpu: no batch in progress")

	// ErrBatchActive is returned when BeginBatch is called twice without
	// an intervening EndBatch.
	ErrBatchActive = errors.New("gpu: batch already in progress")

	// ErrInvalidShadingKind is returned when an instance carries an
	// undefined shading kind.
	ErrInvalidShadingKind = errors.New("gpu: invalid shading kind")
)

// MaxInstancesPerFrame caps the flat instance array. Reaching the cap
// mid-frame triggers a transparent early flush rather than an error, so
// the instance buffer can never overflow.
const MaxInstancesPerFrame = 65536

// Batch is a contiguous run of same-kind instances, drawn with a single
// indexed-instanced draw call. Batches are rebuilt from scratch every
// frame and preserve submission order: backgrounds are appended before
// glyphs before cursor, and the draw order must keep that paint order
// for blending to come out right.
type Batch struct {
	// Offset is the index of the run's first instance.
	Offset uint32
	// Count is the run length.
	Count uint32
	// Shading selects the pipeline state for the whole run.
	Shading ShadingKind
}

// FlushFunc drains accumulated instances mid-frame when the capacity
// ceiling is hit. The renderer uploads and draws the passed slices
// before the batcher resets; both slices are invalid after return.
type FlushFunc func(instances []QuadInstance, batches []Batch) error

// Batcher accumulates per-cell quad instances into a flat per-frame
// array and groups contiguous same-kind runs into batches. A new batch
// starts exactly when the shading kind changes relative to the previous
// instance, so consecutive same-kind instances always collapse into one
// draw call.
//
// Batcher is not safe for concurrent use; each frame populates it from
// a single goroutine.
type Batcher struct {
	instances []QuadInstance
	batches   []Batch

	active   bool
	capacity int
	flush    FlushFunc

	// flushes counts early capacity flushes for diagnostics.
	flushes uint64
	// flushedBatches counts batches handed to the flush callback this
	// frame, so TotalBatches stays stable across early flushes.
	flushedBatches int
}

// NewBatcher creates a batcher with the given instance capacity. A
// capacity <= 0 selects MaxInstancesPerFrame. The flush callback may be
// nil, in which case hitting the ceiling returns an error from
// AddInstance instead of flushing.
func NewBatcher(capacity int, flush FlushFunc) *Batcher {
	if capacity <= 0 {
		capacity = MaxInstancesPerFrame
	}
	return &Batcher{
		instances: make([]QuadInstance, 0, capacity),
		batches:   make([]Batch, 0, 16),
		capacity:  capacity,
		flush:     flush,
	}
}

// BeginBatch starts a new frame's accumulation, discarding any previous
// frame's instances.
func (b *Batcher) BeginBatch() error {
	if b.active {
		return ErrBatchActive
	}
	b.instances = b.instances[:0]
	b.batches = b.batches[:0]
	b.flushedBatches = 0
	b.active = true
	return nil
}

// AddInstance appends one instance, growing the current batch or
// starting a new one when the shading kind changes. At capacity the
// accumulated run is flushed early and accumulation restarts, at the
// cost of one extra draw call for the split run.
func (b *Batcher) AddInstance(q QuadInstance) error {
	if !b.active {
		return ErrBatchNotActive
	}
	if !q.Shading.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidShadingKind, uint8(q.Shading))
	}

	if len(b.instances) >= b.capacity {
		if b.flush == nil {
			return fmt.Errorf("gpu: instance capacity %d exceeded with no flush handler", b.capacity)
		}
		if err := b.flush(b.instances, b.batches); err != nil {
			return fmt.Errorf("early flush: %w", err)
		}
		b.flushes++
		b.flushedBatches += len(b.batches)
		b.instances = b.instances[:0]
		b.batches = b.batches[:0]
	}

	if n := len(b.batches); n == 0 || b.batches[n-1].Shading != q.Shading {
		b.batches = append(b.batches, Batch{
			Offset:  uint32(len(b.instances)),
			Count:   0,
			Shading: q.Shading,
		})
	}
	b.instances = append(b.instances, q)
	b.batches[len(b.batches)-1].Count++
	return nil
}

// EndBatch closes the frame's accumulation. The instance and batch
// slices remain readable until the next BeginBatch.
func (b *Batcher) EndBatch() error {
	if !b.active {
		return ErrBatchNotActive
	}
	b.active = false
	return nil
}

// Instances returns the accumulated instance run.
func (b *Batcher) Instances() []QuadInstance { return b.instances }

// Batches returns the accumulated same-kind runs.
func (b *Batcher) Batches() []Batch { return b.batches }

// TotalBatches returns the frame's batch count including runs already
// handed to the flush callback.
func (b *Batcher) TotalBatches() int { return b.flushedBatches + len(b.batches) }

// Flushes returns the number of early capacity flushes performed.
func (b *Batcher) Flushes() uint64 { return b.flushes }
