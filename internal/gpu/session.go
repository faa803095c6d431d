//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
)

// Session errors.
var (
	// ErrSessionReleased is returned by operations on a released session.
	ErrSessionReleased = errors.New("gpu: session released")

	// ErrNilTarget is returned when Render is given no target view.
	ErrNilTarget = errors.New("gpu: nil render target")
)

// RenderTarget describes the surface a frame draws into.
type RenderTarget struct {
	View          hal.TextureView
	Width, Height int
}

// SessionConfig configures NewSession.
type SessionConfig struct {
	// TargetFormat is the swap chain format the pipelines render to.
	TargetFormat gputypes.TextureFormat
	// AtlasWidth, AtlasHeight size the glyph atlas; zero selects
	// DefaultAtlasSize.
	AtlasWidth, AtlasHeight int
	// FenceTimeout bounds every fence wait; zero selects
	// DefaultFenceTimeout.
	FenceTimeout time.Duration
	// EnableCompute builds the compute dispatch path.
	EnableCompute bool
}

// Diagnostics is a snapshot of session counters.
type Diagnostics struct {
	FramesCompleted  uint64
	LastDrawCalls    int
	LastInstances    int
	EarlyFlushes     uint64
	Atlas            AtlasStats
	SubpixelDegraded bool
	ComputeActive    bool
}

// Session owns the frame loop: it rotates the frame ring, populates
// instance batches, encodes one render pass per frame and submits on
// the graphics queue. One session serves one target surface.
//
// Methods are serialized by an internal mutex; the expected caller is
// a single render goroutine.
type Session struct {
	mu sync.Mutex

	device hal.Device
	queues *QueueSet
	ring   *FrameRing

	atlas    *GlyphAtlas
	atlasTex *AtlasTexture

	batcher   *Batcher
	pipelines *PipelineSet
	compute   *ComputeDispatcher

	// One frozen arena per bind group layout; the assignment order is
	// the binding order the shaders declare.
	renderBindings *DescriptorArena
	gridBindings   *DescriptorArena
	glyphBindings  *DescriptorArena

	vsBuf     *TrackedBuffer
	psBuf     *TrackedBuffer
	vertexBuf *TrackedBuffer
	indexBuf  *TrackedBuffer
	// instanceBufs are per frame slot so frame k+FrameCount never
	// overwrites instances the GPU still reads for frame k. A slot
	// buffer grows when an overflowing frame needs more room; growth is
	// safe because Begin has already waited out the slot's previous
	// occupant.
	instanceBufs [FrameCount]*TrackedBuffer

	bindGroup hal.BindGroup

	segments []frameSegment

	// gridRuns are the same-kind cell runs of the last grid generation
	// dispatch, with Offset as a cell index into the compute instance
	// buffer. Non-nil selects the compute draw path for the glyph layer.
	gridRuns   []Batch
	gridSplice int

	config     SessionConfig
	timeout    time.Duration
	released   bool
	deviceLost bool

	// gate holds the compute timeline value the next graphics
	// submission must wait for.
	gate computeGate

	lastDrawCalls int
	lastInstances int
}

// NewSession builds a complete session over an opened device.
func NewSession(device hal.Device, hq hal.Queue, rasterizer glyph.Rasterizer, config SessionConfig) (*Session, error) {
	timeout := config.FenceTimeout
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}

	s := &Session{
		device:  device,
		ring:    NewFrameRing(),
		config:  config,
		timeout: timeout,
	}
	ok := false
	defer func() {
		if !ok {
			s.release()
		}
	}()

	var err error
	if s.queues, err = NewQueueSet(device, hq); err != nil {
		return nil, err
	}
	if err = s.assignDescriptors(); err != nil {
		return nil, err
	}
	if s.pipelines, err = NewPipelineSet(device, config.TargetFormat, s.renderBindings); err != nil {
		return nil, err
	}

	aw, ah := config.AtlasWidth, config.AtlasHeight
	if aw <= 0 {
		aw = DefaultAtlasSize
	}
	if ah <= 0 {
		ah = DefaultAtlasSize
	}
	if s.atlasTex, err = NewAtlasTexture(device, s.queues.Copy, aw, ah); err != nil {
		return nil, err
	}
	if s.atlas, err = NewGlyphAtlas(rasterizer, s.atlasTex, GlyphAtlasConfig{Width: aw, Height: ah}); err != nil {
		return nil, err
	}

	s.batcher = NewBatcher(MaxInstancesPerFrame, s.spillSegment)

	if err = s.createStaticBuffers(); err != nil {
		return nil, err
	}
	if err = s.createBindGroup(); err != nil {
		return nil, err
	}

	if config.EnableCompute {
		if s.compute, err = NewComputeDispatcher(device, s.queues.Compute, s.gridBindings, s.glyphBindings); err != nil {
			return nil, err
		}
	}

	ok = true
	slogger().Info("session created",
		"atlas", fmt.Sprintf("%dx%d", aw, ah),
		"compute", config.EnableCompute)
	return s, nil
}

// spillSegment is the batcher's early-flush callback: it copies the
// overflowing run aside so the encode phase can draw it first.
func (s *Session) spillSegment(instances []QuadInstance, batches []Batch) error {
	seg := frameSegment{
		data:    packInstances(instances),
		batches: make([]Batch, len(batches)),
	}
	copy(seg.batches, batches)
	s.segments = append(s.segments, seg)
	return nil
}

func (s *Session) createStaticBuffers() error {
	var err error
	if s.vsBuf, err = NewTrackedBuffer(s.device, "vs_constants",
		VSConstantsSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	if s.psBuf, err = NewTrackedBuffer(s.device, "ps_constants",
		PSConstantsSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}

	vtx := quadVertexBytes()
	if s.vertexBuf, err = NewTrackedBuffer(s.device, "quad_vertices",
		uint64(len(vtx)), gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	s.queues.Copy.WriteBuffer(s.vertexBuf.Buffer(), 0, vtx)

	idx := quadIndexBytes()
	if s.indexBuf, err = NewTrackedBuffer(s.device, "quad_indices",
		uint64(len(idx)), gputypes.BufferUsageIndex|gputypes.BufferUsageCopyDst); err != nil {
		return err
	}
	s.queues.Copy.WriteBuffer(s.indexBuf.Buffer(), 0, idx)

	for i := range s.instanceBufs {
		s.instanceBufs[i], err = NewTrackedBuffer(s.device,
			fmt.Sprintf("instances_%d", i),
			instanceBufferSize(0),
			gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
		if err != nil {
			return err
		}
	}
	return nil
}

// assignDescriptors lays out one frozen binding arena per bind group.
func (s *Session) assignDescriptors() error {
	var err error
	s.renderBindings, err = AssignAll(DefaultDescriptorCapacity,
		SlotVSConstants, SlotPSConstants, SlotGlyphAtlasSampled, SlotAtlasSampler)
	if err != nil {
		return err
	}
	if !s.config.EnableCompute {
		return nil
	}

	s.gridBindings, err = AssignAll(DefaultDescriptorCapacity,
		SlotGridConstants, SlotGridCells, SlotInstanceBuffer)
	if err != nil {
		return err
	}
	s.glyphBindings, err = AssignAll(DefaultDescriptorCapacity,
		SlotGlyphConstants, SlotGlyphStaging, SlotGlyphAtlasStorage)
	return err
}

func (s *Session) createBindGroup() error {
	entries := make([]gputypes.BindGroupEntry, 4)
	for i, e := range []struct {
		slot     DescriptorSlot
		resource func() gputypes.BindingResource
	}{
		{SlotVSConstants, func() gputypes.BindingResource {
			return gputypes.BufferBinding{
				Buffer: s.vsBuf.Buffer().NativeHandle(), Offset: 0, Size: VSConstantsSize,
			}
		}},
		{SlotPSConstants, func() gputypes.BindingResource {
			return gputypes.BufferBinding{
				Buffer: s.psBuf.Buffer().NativeHandle(), Offset: 0, Size: PSConstantsSize,
			}
		}},
		{SlotGlyphAtlasSampled, func() gputypes.BindingResource {
			return gputypes.TextureViewBinding{
				TextureView: s.atlasTex.Texture().View().NativeHandle(),
			}
		}},
		{SlotAtlasSampler, func() gputypes.BindingResource {
			return gputypes.SamplerBinding{
				Sampler: s.pipelines.Sampler().NativeHandle(),
			}
		}},
	} {
		binding, err := s.renderBindings.Binding(e.slot)
		if err != nil {
			return fmt.Errorf("cell bind group: %w", err)
		}
		entries[i] = gputypes.BindGroupEntry{Binding: binding, Resource: e.resource()}
	}

	bg, err := s.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "cell_bg",
		Layout:  s.pipelines.BindLayout(),
		Entries: entries,
	})
	if err != nil {
		return fmt.Errorf("create cell bind group: %w", err)
	}
	s.bindGroup = bg
	return nil
}

// Render draws one frame: begin the next slot, populate instance
// batches from the grid, encode a single render pass and submit. When a
// grid generation dispatch preceded this frame, the glyph layer draws
// from the compute-expanded instance buffer and only the overlay layers
// populate on the CPU.
func (s *Session) Render(target RenderTarget, frame *Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrSessionReleased
	}
	if s.deviceLost {
		return ErrDeviceRemoved
	}
	if target.View == nil {
		return ErrNilTarget
	}

	slot, err := s.ring.Begin(s.queues.Graphics, s.timeout)
	if err != nil {
		return s.noteFailure(err)
	}

	s.segments = s.segments[:0]
	if s.gridRuns != nil {
		splice, err := populateOverlayFrame(s.batcher, frame)
		if err != nil {
			s.abandonFrame()
			return err
		}
		s.gridSplice = splice
	} else {
		restart := func() { s.segments = s.segments[:0] }
		if err := populateFrameStable(s.batcher, s.atlas, frame, restart); err != nil {
			s.abandonFrame()
			return err
		}
	}

	if err := s.uploadFrame(slot, target, frame); err != nil {
		s.abandonFrame()
		return s.noteFailure(err)
	}

	// Graphics reads compute output (the expanded instance buffer, any
	// kernel-written atlas slots) only after the compute queue has
	// signalled the gating value.
	submitted, err := gatedSubmit(&s.gate, s.queues.Compute, s.timeout, func() (uint64, error) {
		return s.encodeAndSubmit(slot, target, frame)
	})
	if err != nil {
		s.abandonFrame()
		return s.noteFailure(err)
	}
	return s.ring.Advance(submitted)
}

func (s *Session) abandonFrame() {
	s.ring.Cancel()
}

// noteFailure marks the session dead on device-removal class errors.
func (s *Session) noteFailure(err error) error {
	if errors.Is(err, ErrDeviceRemoved) {
		s.deviceLost = true
		slogger().Error("device removed, session dead", "err", err)
	}
	return err
}

// ensureInstanceCapacity grows the slot's instance buffer to hold need
// bytes. The slot's previous frame retired in Begin, so replacing the
// buffer never races an in-flight read.
func (s *Session) ensureInstanceCapacity(slot *FrameSlot, need uint64) error {
	buf := s.instanceBufs[slot.Index]
	if need <= buf.Size() {
		return nil
	}
	grown, err := NewTrackedBuffer(s.device,
		fmt.Sprintf("instances_%d", slot.Index),
		instanceBufferSize(need),
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	buf.Destroy(s.device)
	s.instanceBufs[slot.Index] = grown
	slogger().Debug("instance buffer grown",
		"slot", slot.Index, "bytes", grown.Size())
	return nil
}

// uploadFrame writes this frame's uniforms and instance data into the
// slot's buffers.
func (s *Session) uploadFrame(slot *FrameSlot, target RenderTarget, frame *Frame) error {
	var vs [VSConstantsSize]byte
	VSConstants{
		TargetWidth:  float32(target.Width),
		TargetHeight: float32(target.Height),
		CellWidth:    float32(frame.CellWidth),
		CellHeight:   float32(frame.CellHeight),
	}.Pack(vs[:])
	s.queues.Graphics.WriteBuffer(s.vsBuf.Buffer(), 0, vs[:])

	bg := frame.BackgroundColor
	var ps [PSConstantsSize]byte
	PSConstants{
		BackgroundColor: [4]float32{
			float32(bg&0xFF) / 255,
			float32(bg>>8&0xFF) / 255,
			float32(bg>>16&0xFF) / 255,
			float32(bg>>24&0xFF) / 255,
		},
		CellCountX:          uint32(frame.Columns),
		CellCountY:          uint32(frame.Rows),
		UnderlineWidth:      float32(strokeWidth(frame.CellHeight)),
		DashedLineLength:    float32(frame.CellWidth) / 2,
		CurlyLineHalfExtent: float32(curlyHeight(frame.CellHeight)) / 2,
		AtlasGeneration:     s.atlas.Generation(),
	}.Pack(ps[:])
	s.queues.Graphics.WriteBuffer(s.psBuf.Buffer(), 0, ps[:])

	// Overflow segments first, tail run after, all packed contiguously.
	// The slot buffer grows to fit, keeping the capacity flush
	// transparent to the caller.
	tail := packInstances(s.batcher.Instances())
	if err := s.ensureInstanceCapacity(slot, instanceBytesNeeded(s.segments, len(s.batcher.Instances()))); err != nil {
		return err
	}
	buf := s.instanceBufs[slot.Index]
	offset := uint64(0)
	for _, seg := range s.segments {
		s.queues.Graphics.WriteBuffer(buf.Buffer(), offset, seg.data)
		offset += uint64(len(seg.data))
	}
	if len(tail) > 0 {
		s.queues.Graphics.WriteBuffer(buf.Buffer(), offset, tail)
	}
	return nil
}

func (s *Session) encodeAndSubmit(slot *FrameSlot, target RenderTarget, frame *Frame) (uint64, error) {
	encoder, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "frame"})
	if err != nil {
		return 0, fmt.Errorf("create frame encoder: %w", err)
	}
	if err := encoder.BeginEncoding("frame"); err != nil {
		return 0, fmt.Errorf("begin frame encoding: %w", err)
	}

	// First use moves the atlas out of Undefined; afterwards it stays
	// sampled except while a glyph compute dispatch owns it.
	atlasTex := s.atlasTex.Texture()
	if atlasTex.State() == StateUndefined {
		if err := atlasTex.Transition(encoder, StateUndefined, StateShaderResource); err != nil {
			encoder.DiscardEncoding()
			return 0, err
		}
	}

	bg := frame.BackgroundColor
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "cells",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:    target.View,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
			ClearValue: gputypes.Color{
				R: float64(bg&0xFF) / 255,
				G: float64(bg>>8&0xFF) / 255,
				B: float64(bg>>16&0xFF) / 255,
				A: float64(bg>>24&0xFF) / 255,
			},
		}},
	})

	runs := layoutDrawRuns(s.segments, s.batcher.Batches(), s.gridRuns, s.gridSplice)
	instances := 0
	slotBuf := s.instanceBufs[slot.Index].Buffer()
	for _, run := range runs {
		instanceBuf := slotBuf
		if run.grid {
			instanceBuf = s.compute.InstanceBuffer().Buffer()
		}
		rp.SetPipeline(s.pipelines.pipelineFor(run.batch.Shading))
		rp.SetBindGroup(0, s.bindGroup, nil)
		rp.SetVertexBuffer(0, s.vertexBuf.Buffer(), 0)
		rp.SetVertexBuffer(1, instanceBuf, run.offset)
		rp.SetIndexBuffer(s.indexBuf.Buffer(), gputypes.IndexFormatUint16, 0)
		rp.DrawIndexed(uint32(len(quadIndices)), run.batch.Count, 0, 0, 0)
		instances += int(run.batch.Count)
	}
	rp.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return 0, fmt.Errorf("end frame encoding: %w", err)
	}

	v, err := s.queues.Graphics.Submit([]hal.CommandBuffer{cmdBuf})
	s.device.FreeCommandBuffer(cmdBuf)
	if err != nil {
		return 0, err
	}

	s.lastDrawCalls = len(runs)
	s.lastInstances = instances
	slogger().Debug("frame submitted",
		"slot", slot.Index, "draws", len(runs), "instances", instances, "fence", v)
	return v, nil
}

// DispatchGridGeneration runs the grid kernel for the next frame. runs
// carries the same-kind glyph runs of the packed cells, with Offset as
// a cell index; the next Render draws them from the expanded instance
// buffer after waiting out the returned compute timeline value. A
// session without the compute path returns zero values untouched.
func (s *Session) DispatchGridGeneration(cellData []byte, runs []Batch, gc GridConstants) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return 0, ErrSessionReleased
	}
	if s.compute == nil {
		return 0, nil
	}
	v, err := s.compute.DispatchGrid(cellData, gc)
	if err != nil {
		return 0, s.noteFailure(err)
	}
	if v != 0 {
		s.gate.record(v)
		s.gridRuns = append(s.gridRuns[:0], runs...)
	}
	return v, nil
}

// InitializeCompute sizes the compute path for a grid and routes atlas
// uploads through the glyph rasterization kernel. No-op without
// EnableCompute.
func (s *Session) InitializeCompute(columns, rows int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return ErrSessionReleased
	}
	if s.compute == nil {
		return nil
	}
	if s.compute.Initialized() {
		if err := s.queues.DrainAll(s.timeout); err != nil {
			return s.noteFailure(err)
		}
	}
	// Resizing tears down the expanded instance buffer; stale runs must
	// not outlive it.
	s.gridRuns = nil
	if err := s.compute.Initialize(columns, rows, s.atlasTex); err != nil {
		return err
	}
	s.atlasTex.SetComputeRoute(s.compute, s.gate.record)
	return nil
}

// Atlas exposes the glyph atlas for prewarming.
func (s *Session) Atlas() *GlyphAtlas { return s.atlas }

// Diagnostics returns a snapshot of the session counters.
func (s *Session) Diagnostics() Diagnostics {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Diagnostics{
		FramesCompleted:  s.ring.FramesCompleted(),
		LastDrawCalls:    s.lastDrawCalls,
		LastInstances:    s.lastInstances,
		EarlyFlushes:     s.batcher.Flushes(),
		Atlas:            s.atlas.Stats(),
		SubpixelDegraded: s.pipelines.SubpixelDegraded(),
		ComputeActive:    s.compute != nil && s.compute.Initialized(),
	}
}

// ReleaseResources drains the queues and destroys every GPU object.
// Idempotent; the session is unusable afterwards.
func (s *Session) ReleaseResources() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
}

func (s *Session) release() {
	if s.released {
		return
	}
	s.released = true

	if s.queues != nil && !s.deviceLost {
		if err := s.queues.DrainAll(s.timeout); err != nil {
			slogger().Warn("drain before release failed", "err", err)
		}
	}

	if s.atlas != nil {
		s.atlas.Close()
	}
	if s.atlasTex != nil {
		s.atlasTex.SetComputeRoute(nil, nil)
	}
	if s.compute != nil {
		s.compute.Destroy()
		s.compute = nil
	}
	if s.bindGroup != nil {
		s.device.DestroyBindGroup(s.bindGroup)
		s.bindGroup = nil
	}
	for i, b := range s.instanceBufs {
		if b != nil {
			b.Destroy(s.device)
			s.instanceBufs[i] = nil
		}
	}
	for _, b := range []**TrackedBuffer{&s.vsBuf, &s.psBuf, &s.vertexBuf, &s.indexBuf} {
		if *b != nil {
			(*b).Destroy(s.device)
			*b = nil
		}
	}
	if s.atlasTex != nil {
		s.atlasTex.Destroy(s.device)
		s.atlasTex = nil
	}
	if s.pipelines != nil {
		s.pipelines.Destroy()
		s.pipelines = nil
	}
	if s.queues != nil {
		s.queues.Destroy()
		s.queues = nil
	}
	slogger().Info("session released")
}
