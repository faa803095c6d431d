package termgpu

import (
	"github.com/gogpu/gputypes"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
)

// Option configures a Renderer during creation.
// Use functional options to customize Renderer behavior.
//
// Example:
//
//	r, err := termgpu.New(
//		termgpu.WithDeviceProvider(provider),
//		termgpu.WithFontData(fontBytes),
//		termgpu.WithFontSize(15),
//	)
type Option func(*rendererOptions)

// rendererOptions holds optional configuration for Renderer creation.
type rendererOptions struct {
	provider     any
	targetFormat gputypes.TextureFormat
	fontData     []byte
	rasterizer   glyph.Rasterizer
	fontSize     uint16
	cellWidth    int
	cellHeight   int
	atlasWidth   int
	atlasHeight  int
	subpixel     bool
	compute      bool
}

func defaultRendererOptions() rendererOptions {
	// Cell metrics and atlas dimensions stay zero here; the font and
	// the session supply their defaults.
	return rendererOptions{
		targetFormat: gputypes.TextureFormatBGRA8Unorm,
		fontSize:     15,
	}
}

// WithDeviceProvider supplies the GPU device the renderer draws with.
// The provider must implement HalDevice() any and HalQueue() any
// returning wgpu/hal types; backend/wgpu.Device does.
//
// Example:
//
//	dev, err := wgpu.Open(wgpu.DeviceOptions{})
//	r, err := termgpu.New(termgpu.WithDeviceProvider(dev), ...)
func WithDeviceProvider(provider any) Option {
	return func(o *rendererOptions) {
		o.provider = provider
	}
}

// WithTargetFormat sets the texture format of the render targets passed
// to Render. Defaults to BGRA8Unorm, the common swapchain format.
func WithTargetFormat(format gputypes.TextureFormat) Option {
	return func(o *rendererOptions) {
		o.targetFormat = format
	}
}

// WithFontData supplies a TrueType/OpenType font as raw bytes. The
// renderer builds its own rasterizer from it. Mutually exclusive with
// WithRasterizer; if both are given, the explicit rasterizer wins.
func WithFontData(data []byte) Option {
	return func(o *rendererOptions) {
		o.fontData = data
	}
}

// WithRasterizer injects a prebuilt glyph rasterizer. Use this to share
// one rasterizer across renderers or to substitute a fake in tests.
func WithRasterizer(r glyph.Rasterizer) Option {
	return func(o *rendererOptions) {
		o.rasterizer = r
	}
}

// WithFontSize sets the em size in pixels. Defaults to 15.
func WithFontSize(px uint16) Option {
	return func(o *rendererOptions) {
		o.fontSize = px
	}
}

// WithCellSize overrides the derived cell dimensions in pixels. Without
// it the cell size comes from the font's advance and line metrics.
func WithCellSize(width, height int) Option {
	return func(o *rendererOptions) {
		o.cellWidth = width
		o.cellHeight = height
	}
}

// WithAtlasSize overrides the glyph atlas texture dimensions.
func WithAtlasSize(width, height int) Option {
	return func(o *rendererOptions) {
		o.atlasWidth = width
		o.atlasHeight = height
	}
}

// WithSubpixelText enables per-channel subpixel coverage for font
// glyphs. On targets without dual-source blending the renderer degrades
// to a premultiplied approximation; Diagnostics reports when it does.
func WithSubpixelText(enabled bool) Option {
	return func(o *rendererOptions) {
		o.subpixel = enabled
	}
}

// WithCompute enables the compute expansion path: cell-grid instance
// generation and glyph rasterization run on the GPU where supported.
func WithCompute(enabled bool) Option {
	return func(o *rendererOptions) {
		o.compute = enabled
	}
}
