//go:build !nogpu

package gpu

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// ErrComputeUninitialized is returned by operations that require
// Initialize. Dispatch itself treats the uninitialized state as a
// no-op so a session without the compute path stays functional.
var ErrComputeUninitialized = errors.New("gpu: compute dispatcher not initialized")

// packedCellSize is the byte size of one compact cell in the grid
// generation input buffer: one texcoord/shading word and one color word.
const packedCellSize = 8

// ComputeDispatcher owns the two compute kernels: grid generation
// expands compact cell data into quad instances on the GPU, glyph
// rasterization resamples staged bitmaps into atlas slots.
//
// Every dispatch submits on the compute queue and returns that queue's
// timeline value. Work consuming the outputs waits for the value on the
// compute timeline explicitly before reading; the barrier recorded
// inside the dispatch only orders GPU-side access.
type ComputeDispatcher struct {
	device hal.Device
	queue  *Queue

	gridShader     hal.ShaderModule
	gridLayout     hal.BindGroupLayout
	gridPipeLayout hal.PipelineLayout
	gridPipeline   hal.ComputePipeline

	glyphShader     hal.ShaderModule
	glyphLayout     hal.BindGroupLayout
	glyphPipeLayout hal.PipelineLayout
	glyphPipeline   hal.ComputePipeline

	gridConstants  *TrackedBuffer
	cellBuffer     *TrackedBuffer
	instanceBuffer *TrackedBuffer

	glyphConstants *TrackedBuffer
	glyphStaging   *TrackedBuffer

	atlas *AtlasTexture

	// Binding numbers from the per-kernel descriptor arenas, fixed at
	// construction.
	bGridConst, bGridCells, bGridInst   uint32
	bGlyphConst, bGlyphSrc, bGlyphAtlas uint32

	columns, rows int
	initialized   bool
}

// NewComputeDispatcher compiles both kernels and builds their
// pipelines. The arenas supply each kernel's binding numbers; their
// assignment order must match the shader binding declarations. Buffers
// are sized later by Initialize.
func NewComputeDispatcher(device hal.Device, queue *Queue, gridBindings, glyphBindings *DescriptorArena) (*ComputeDispatcher, error) {
	d := &ComputeDispatcher{device: device, queue: queue}
	ok := false
	defer func() {
		if !ok {
			d.Destroy()
		}
	}()

	var err error
	for _, s := range []struct {
		arena *DescriptorArena
		slot  DescriptorSlot
		dst   *uint32
	}{
		{gridBindings, SlotGridConstants, &d.bGridConst},
		{gridBindings, SlotGridCells, &d.bGridCells},
		{gridBindings, SlotInstanceBuffer, &d.bGridInst},
		{glyphBindings, SlotGlyphConstants, &d.bGlyphConst},
		{glyphBindings, SlotGlyphStaging, &d.bGlyphSrc},
		{glyphBindings, SlotGlyphAtlasStorage, &d.bGlyphAtlas},
	} {
		if *s.dst, err = s.arena.Binding(s.slot); err != nil {
			return nil, fmt.Errorf("compute bindings: %w", err)
		}
	}

	if err := d.buildGridPipeline(); err != nil {
		return nil, err
	}
	if err := d.buildGlyphPipeline(); err != nil {
		return nil, err
	}

	ok = true
	return d, nil
}

func (d *ComputeDispatcher) buildGridPipeline() error {
	spirv, err := compileWGSL(gridGenerateShaderWGSL)
	if err != nil {
		return fmt.Errorf("grid shader: %w", err)
	}
	d.gridShader, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "grid_generate_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create grid shader module: %w", err)
	}

	d.gridLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "grid_generate_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    d.bGridConst,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    d.bGridCells,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    d.bGridInst,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create grid bind group layout: %w", err)
	}

	d.gridPipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "grid_generate_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.gridLayout},
	})
	if err != nil {
		return fmt.Errorf("create grid pipeline layout: %w", err)
	}

	d.gridPipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "grid_generate",
		Layout:  d.gridPipeLayout,
		Compute: hal.ComputeState{Module: d.gridShader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create grid pipeline: %w", err)
	}
	return nil
}

func (d *ComputeDispatcher) buildGlyphPipeline() error {
	spirv, err := compileWGSL(glyphRasterizeShaderWGSL)
	if err != nil {
		return fmt.Errorf("glyph shader: %w", err)
	}
	d.glyphShader, err = d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "glyph_rasterize_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return fmt.Errorf("create glyph shader module: %w", err)
	}

	d.glyphLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "glyph_rasterize_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    d.bGlyphConst,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    d.bGlyphSrc,
				Visibility: gputypes.ShaderStageCompute,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage},
			},
			{
				Binding:    d.bGlyphAtlas,
				Visibility: gputypes.ShaderStageCompute,
				StorageTexture: &gputypes.StorageTextureBindingLayout{
					Access:        gputypes.StorageTextureAccessReadWrite,
					Format:        gputypes.TextureFormatRGBA8Unorm,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create glyph bind group layout: %w", err)
	}

	d.glyphPipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "glyph_rasterize_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.glyphLayout},
	})
	if err != nil {
		return fmt.Errorf("create glyph pipeline layout: %w", err)
	}

	d.glyphPipeline, err = d.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "glyph_rasterize",
		Layout:  d.glyphPipeLayout,
		Compute: hal.ComputeState{Module: d.glyphShader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create glyph pipeline: %w", err)
	}
	return nil
}

// Initialize sizes the dispatch buffers for a grid. Resizing tears down
// the previous buffers after a queue drain by the caller.
func (d *ComputeDispatcher) Initialize(columns, rows int, atlas *AtlasTexture) error {
	if columns <= 0 || rows <= 0 {
		return fmt.Errorf("gpu: invalid compute grid %dx%d", columns, rows)
	}
	d.releaseBuffers()

	cellCount := uint64(columns) * uint64(rows)
	var err error

	d.gridConstants, err = NewTrackedBuffer(d.device, "grid_constants",
		GridConstantsSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	d.cellBuffer, err = NewTrackedBuffer(d.device, "grid_cells",
		cellCount*packedCellSize, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	d.instanceBuffer, err = NewTrackedBuffer(d.device, "grid_instances",
		cellCount*QuadInstanceSize,
		gputypes.BufferUsageStorage|gputypes.BufferUsageVertex)
	if err != nil {
		return err
	}
	d.glyphConstants, err = NewTrackedBuffer(d.device, "glyph_constants",
		GlyphConstantsSize, gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}

	d.atlas = atlas
	d.columns, d.rows = columns, rows
	d.initialized = true
	return nil
}

// Initialized reports whether the dispatcher has live buffers.
func (d *ComputeDispatcher) Initialized() bool { return d.initialized }

// InstanceBuffer returns the GPU-expanded instance buffer, bindable as
// a vertex buffer once the returned dispatch value has been reached on
// the compute timeline.
func (d *ComputeDispatcher) InstanceBuffer() *TrackedBuffer { return d.instanceBuffer }

// DispatchGrid uploads compact cell data and expands it into quad
// instances. Returns the compute timeline value gating the result, or
// zero when the dispatcher is a no-op.
func (d *ComputeDispatcher) DispatchGrid(cellData []byte, gc GridConstants) (uint64, error) {
	if !d.initialized {
		return 0, nil
	}
	if want := int(gc.CellCountX*gc.CellCountY) * packedCellSize; len(cellData) != want {
		return 0, fmt.Errorf("gpu: cell data %d bytes, want %d", len(cellData), want)
	}

	var constants [GridConstantsSize]byte
	gc.Pack(constants[:])
	d.queue.WriteBuffer(d.gridConstants.Buffer(), 0, constants[:])
	d.queue.WriteBuffer(d.cellBuffer.Buffer(), 0, cellData)

	// The instance buffer flips between compute writes and vertex
	// reads; the tracker catches a dispatch racing an un-waited draw.
	if st := d.instanceBuffer.State(); st != StateUnorderedAccess {
		if err := d.instanceBuffer.Transition(st, StateUnorderedAccess); err != nil {
			return 0, err
		}
	}

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "grid_generate_bg",
		Layout: d.gridLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: d.bGridConst, Resource: gputypes.BufferBinding{
				Buffer: d.gridConstants.Buffer().NativeHandle(), Offset: 0, Size: GridConstantsSize,
			}},
			{Binding: d.bGridCells, Resource: gputypes.BufferBinding{
				Buffer: d.cellBuffer.Buffer().NativeHandle(), Offset: 0, Size: d.cellBuffer.Size(),
			}},
			{Binding: d.bGridInst, Resource: gputypes.BufferBinding{
				Buffer: d.instanceBuffer.Buffer().NativeHandle(), Offset: 0, Size: d.instanceBuffer.Size(),
			}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("create grid bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bg)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "grid_generate"})
	if err != nil {
		return 0, fmt.Errorf("create grid encoder: %w", err)
	}
	if err := encoder.BeginEncoding("grid_generate"); err != nil {
		return 0, fmt.Errorf("begin grid encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "grid_generate"})
	pass.SetPipeline(d.gridPipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(
		dispatchGroups(int(gc.CellCountX), GridWorkgroupDim),
		dispatchGroups(int(gc.CellCountY), GridWorkgroupDim),
		1,
	)
	pass.End()

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return 0, fmt.Errorf("end grid encoding: %w", err)
	}

	v, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf})
	d.device.FreeCommandBuffer(cmdBuf)
	if err != nil {
		return 0, err
	}
	if err := d.instanceBuffer.Transition(StateUnorderedAccess, StateShaderResource); err != nil {
		return 0, err
	}

	slogger().Debug("grid generation dispatched",
		"cells", gc.CellCountX*gc.CellCountY, "fence", v)
	return v, nil
}

// DispatchGlyphRasterize resamples a staged RGBA bitmap into an atlas
// region. src holds one packed RGBA8 word per destination pixel.
func (d *ComputeDispatcher) DispatchGlyphRasterize(src []byte, gc GlyphConstants) (uint64, error) {
	if !d.initialized {
		return 0, nil
	}
	if want := int(gc.DestWidth*gc.DestHeight) * 4; len(src) != want {
		return 0, fmt.Errorf("gpu: glyph staging %d bytes, want %d", len(src), want)
	}

	if err := d.ensureGlyphStaging(uint64(len(src))); err != nil {
		return 0, err
	}

	var constants [GlyphConstantsSize]byte
	gc.Pack(constants[:])
	d.queue.WriteBuffer(d.glyphConstants.Buffer(), 0, constants[:])
	d.queue.WriteBuffer(d.glyphStaging.Buffer(), 0, src)

	bg, err := d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "glyph_rasterize_bg",
		Layout: d.glyphLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: d.bGlyphConst, Resource: gputypes.BufferBinding{
				Buffer: d.glyphConstants.Buffer().NativeHandle(), Offset: 0, Size: GlyphConstantsSize,
			}},
			{Binding: d.bGlyphSrc, Resource: gputypes.BufferBinding{
				Buffer: d.glyphStaging.Buffer().NativeHandle(), Offset: 0, Size: d.glyphStaging.Size(),
			}},
			{Binding: d.bGlyphAtlas, Resource: gputypes.TextureViewBinding{
				TextureView: d.atlas.Texture().View().NativeHandle(),
			}},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("create glyph bind group: %w", err)
	}
	defer d.device.DestroyBindGroup(bg)

	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "glyph_rasterize"})
	if err != nil {
		return 0, fmt.Errorf("create glyph encoder: %w", err)
	}
	if err := encoder.BeginEncoding("glyph_rasterize"); err != nil {
		return 0, fmt.Errorf("begin glyph encoding: %w", err)
	}

	// The atlas flips to storage access for the kernel and back to
	// sampled before any text draw reads it.
	tex := d.atlas.Texture()
	if st := tex.State(); st != StateUnorderedAccess {
		if err := tex.Transition(encoder, st, StateUnorderedAccess); err != nil {
			encoder.DiscardEncoding()
			return 0, err
		}
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "glyph_rasterize"})
	pass.SetPipeline(d.glyphPipeline)
	pass.SetBindGroup(0, bg, nil)
	pass.Dispatch(
		dispatchGroups(int(gc.DestWidth), GlyphWorkgroupDim),
		dispatchGroups(int(gc.DestHeight), GlyphWorkgroupDim),
		1,
	)
	pass.End()

	if err := tex.Transition(encoder, StateUnorderedAccess, StateShaderResource); err != nil {
		encoder.DiscardEncoding()
		return 0, err
	}

	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		encoder.DiscardEncoding()
		return 0, fmt.Errorf("end glyph encoding: %w", err)
	}

	v, err := d.queue.Submit([]hal.CommandBuffer{cmdBuf})
	d.device.FreeCommandBuffer(cmdBuf)
	if err != nil {
		return 0, err
	}

	slogger().Debug("glyph rasterization dispatched",
		"dest", gc.DestWidth*gc.DestHeight, "fence", v)
	return v, nil
}

// ensureGlyphStaging grows the staging buffer to at least size bytes.
func (d *ComputeDispatcher) ensureGlyphStaging(size uint64) error {
	if d.glyphStaging != nil && d.glyphStaging.Size() >= size {
		return nil
	}
	if d.glyphStaging != nil {
		d.glyphStaging.Destroy(d.device)
	}
	var err error
	d.glyphStaging, err = NewTrackedBuffer(d.device, "glyph_staging",
		size, gputypes.BufferUsageStorage|gputypes.BufferUsageCopyDst)
	return err
}

func (d *ComputeDispatcher) releaseBuffers() {
	for _, b := range []**TrackedBuffer{
		&d.gridConstants, &d.cellBuffer, &d.instanceBuffer,
		&d.glyphConstants, &d.glyphStaging,
	} {
		if *b != nil {
			(*b).Destroy(d.device)
			*b = nil
		}
	}
	d.initialized = false
}

// Destroy releases all pipelines and buffers. The caller drains the
// compute queue first.
func (d *ComputeDispatcher) Destroy() {
	d.releaseBuffers()

	if d.gridPipeline != nil {
		d.device.DestroyComputePipeline(d.gridPipeline)
		d.gridPipeline = nil
	}
	if d.gridPipeLayout != nil {
		d.device.DestroyPipelineLayout(d.gridPipeLayout)
		d.gridPipeLayout = nil
	}
	if d.gridLayout != nil {
		d.device.DestroyBindGroupLayout(d.gridLayout)
		d.gridLayout = nil
	}
	if d.gridShader != nil {
		d.device.DestroyShaderModule(d.gridShader)
		d.gridShader = nil
	}

	if d.glyphPipeline != nil {
		d.device.DestroyComputePipeline(d.glyphPipeline)
		d.glyphPipeline = nil
	}
	if d.glyphPipeLayout != nil {
		d.device.DestroyPipelineLayout(d.glyphPipeLayout)
		d.glyphPipeLayout = nil
	}
	if d.glyphLayout != nil {
		d.device.DestroyBindGroupLayout(d.glyphLayout)
		d.glyphLayout = nil
	}
	if d.glyphShader != nil {
		d.device.DestroyShaderModule(d.glyphShader)
		d.glyphShader = nil
	}
}
