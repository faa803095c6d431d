//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// compileWGSL compiles WGSL source to SPIR-V words for the hal shader
// module path.
func compileWGSL(source string) ([]uint32, error) {
	spirvBytes, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	words := make([]uint32, len(spirvBytes)/4)
	for i := range words {
		words[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	return words, nil
}

// cellVertexLayouts returns the two vertex buffer layouts shared by all
// cell pipelines: slot 0 steps per vertex over the unit quad corners,
// slot 1 steps per instance over the packed 16-byte instances.
func cellVertexLayouts() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: 8,
			StepMode:    gputypes.VertexStepModeVertex,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
			},
		},
		{
			ArrayStride: QuadInstanceSize,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatSint16x2, Offset: 0, ShaderLocation: 1},
				{Format: gputypes.VertexFormatUint16x2, Offset: 4, ShaderLocation: 2},
				{Format: gputypes.VertexFormatUint16x2, Offset: 8, ShaderLocation: 3},
				{Format: gputypes.VertexFormatUint32, Offset: 12, ShaderLocation: 4},
			},
		},
	}
}

// PipelineSet owns the render pipelines, their shared bind group layout
// and the atlas sampler. One set serves a session for its lifetime; the
// layout is immutable after construction.
type PipelineSet struct {
	device hal.Device

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	sampler    hal.Sampler

	pipelines [pipelineClassCount]hal.RenderPipeline

	// subpixelDegraded records that the subpixel text pipeline runs
	// with alpha blending instead of true per-channel blending.
	subpixelDegraded bool
}

// fragmentEntry maps a pipeline class to its shader entry point.
func fragmentEntry(c pipelineClass) string {
	switch c {
	case pipelineBackground:
		return "fs_background"
	case pipelineTextGrayscale:
		return "fs_text_grayscale"
	case pipelineTextClearType:
		return "fs_text_cleartype"
	case pipelineLine:
		return "fs_line"
	case pipelineCursor:
		return "fs_cursor"
	default:
		panic(fmt.Sprintf("gpu: unhandled pipeline class %s", c))
	}
}

// NewPipelineSet compiles the cell shader and builds one pipeline per
// class targeting the given surface format. The bindings arena supplies
// the layout's binding numbers; its assignment order must match the
// cell shader's binding declarations.
func NewPipelineSet(device hal.Device, targetFormat gputypes.TextureFormat, bindings *DescriptorArena) (*PipelineSet, error) {
	spirv, err := compileWGSL(cellShaderWGSL)
	if err != nil {
		return nil, fmt.Errorf("cell shader: %w", err)
	}

	var bVS, bPS, bTex, bSamp uint32
	for _, s := range []struct {
		slot DescriptorSlot
		dst  *uint32
	}{
		{SlotVSConstants, &bVS},
		{SlotPSConstants, &bPS},
		{SlotGlyphAtlasSampled, &bTex},
		{SlotAtlasSampler, &bSamp},
	} {
		if *s.dst, err = bindings.Binding(s.slot); err != nil {
			return nil, fmt.Errorf("cell pipeline bindings: %w", err)
		}
	}

	p := &PipelineSet{device: device}
	ok := false
	defer func() {
		if !ok {
			p.Destroy()
		}
	}()

	p.shader, err = device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "cell_shader",
		Source: hal.ShaderSource{SPIRV: spirv},
	})
	if err != nil {
		return nil, fmt.Errorf("create cell shader module: %w", err)
	}

	p.bindLayout, err = device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "cell_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    bVS,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    bPS,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    bTex,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    bSamp,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create cell bind group layout: %w", err)
	}

	p.pipeLayout, err = device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "cell_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return nil, fmt.Errorf("create cell pipeline layout: %w", err)
	}

	p.sampler, err = device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "atlas_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeLinear,
		MinFilter:    gputypes.FilterModeLinear,
		MipmapFilter: gputypes.FilterModeLinear,
	})
	if err != nil {
		return nil, fmt.Errorf("create atlas sampler: %w", err)
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	for class := pipelineClass(0); class < pipelineClassCount; class++ {
		// Backgrounds are opaque and skip blending entirely; everything
		// above them composites premultiplied. True per-channel subpixel
		// blending needs dual-source support; the premultiplied fallback
		// keeps text readable on backends without it.
		var blend *gputypes.BlendState
		if class != pipelineBackground {
			blend = &premulBlend
		}
		if class == pipelineTextClearType {
			p.subpixelDegraded = true
		}

		pipe, err := device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
			Label:  "cell_" + class.String(),
			Layout: p.pipeLayout,
			Vertex: hal.VertexState{
				Module:     p.shader,
				EntryPoint: "vs_main",
				Buffers:    cellVertexLayouts(),
			},
			Fragment: &hal.FragmentState{
				Module:     p.shader,
				EntryPoint: fragmentEntry(class),
				Targets: []gputypes.ColorTargetState{
					{
						Format:    targetFormat,
						Blend:     blend,
						WriteMask: gputypes.ColorWriteMaskAll,
					},
				},
			},
			Primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			Multisample: gputypes.MultisampleState{
				Count: 1,
				Mask:  0xFFFFFFFF,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("create %s pipeline: %w", class, err)
		}
		p.pipelines[class] = pipe
	}

	ok = true
	return p, nil
}

// pipelineFor returns the pipeline rendering a shading kind.
func (p *PipelineSet) pipelineFor(k ShadingKind) hal.RenderPipeline {
	return p.pipelines[pipelineClassFor(k)]
}

// BindLayout returns the shared bind group layout.
func (p *PipelineSet) BindLayout() hal.BindGroupLayout { return p.bindLayout }

// Sampler returns the atlas sampler.
func (p *PipelineSet) Sampler() hal.Sampler { return p.sampler }

// SubpixelDegraded reports whether subpixel text renders through the
// alpha-blend fallback.
func (p *PipelineSet) SubpixelDegraded() bool { return p.subpixelDegraded }

// Destroy releases every pipeline object. Safe on a partially
// constructed set.
func (p *PipelineSet) Destroy() {
	for i, pipe := range p.pipelines {
		if pipe != nil {
			p.device.DestroyRenderPipeline(pipe)
			p.pipelines[i] = nil
		}
	}
	if p.sampler != nil {
		p.device.DestroySampler(p.sampler)
		p.sampler = nil
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
		p.pipeLayout = nil
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
		p.bindLayout = nil
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
		p.shader = nil
	}
}
