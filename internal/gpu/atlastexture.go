//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
)

// atlasBytesPerPixel is the RGBA8 pixel stride of the atlas texture.
// A single format carries both grayscale and subpixel coverage:
// grayscale replicates into all channels, subpixel fills R, G, B with
// the three per-channel weights.
const atlasBytesPerPixel = 4

// AtlasTexture is the GPU-resident glyph atlas: a tracked RGBA texture
// plus the queue used to feed it. It implements AtlasUploader. With a
// compute route set, uploads run through the glyph rasterization kernel
// instead of the copy queue.
type AtlasTexture struct {
	texture *TrackedTexture
	queue   *Queue

	compute *ComputeDispatcher
	onFence func(uint64)

	width, height int
}

// NewAtlasTexture creates the atlas texture sized to match the packing
// allocator.
func NewAtlasTexture(device hal.Device, queue *Queue, width, height int) (*AtlasTexture, error) {
	tex, err := NewTrackedTexture(device, TrackedTextureDescriptor{
		Label:  "glyph_atlas",
		Width:  width,
		Height: height,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Usage: gputypes.TextureUsageTextureBinding |
			gputypes.TextureUsageStorageBinding |
			gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	return &AtlasTexture{
		texture: tex,
		queue:   queue,
		width:   width,
		height:  height,
	}, nil
}

// SetComputeRoute redirects subsequent uploads through the glyph
// rasterization kernel. Every dispatched upload reports its compute
// timeline value through onFence so the owner can gate the next
// graphics submission. A nil dispatcher restores the copy-queue path.
func (a *AtlasTexture) SetComputeRoute(d *ComputeDispatcher, onFence func(uint64)) {
	a.compute = d
	a.onFence = onFence
}

// Upload expands a coverage bitmap to RGBA rows and writes it into the
// given region.
func (a *AtlasTexture) Upload(region AtlasRegion, bm *glyph.Bitmap) error {
	if !region.IsValid() || bm.Empty() {
		return nil
	}
	if region.X+region.Width > a.width || region.Y+region.Height > a.height {
		return fmt.Errorf("gpu: upload region %s outside %dx%d atlas", region, a.width, a.height)
	}
	if region.Width != bm.Width || region.Height != bm.Height {
		return fmt.Errorf("gpu: region %s does not match %dx%d bitmap", region, bm.Width, bm.Height)
	}

	if a.compute != nil && a.compute.Initialized() {
		return a.uploadCompute(region, bm)
	}

	data := expandCoverage(bm)
	a.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  a.texture.Texture(),
			MipLevel: 0,
			Origin:   hal.Origin3D{X: uint32(region.X), Y: uint32(region.Y)},
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(bm.Width * atlasBytesPerPixel),
			RowsPerImage: uint32(bm.Height),
		},
		&hal.Extent3D{
			Width:              uint32(bm.Width),
			Height:             uint32(bm.Height),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

// uploadCompute stages the expanded bitmap and dispatches the glyph
// rasterization kernel to write it into the atlas slot.
func (a *AtlasTexture) uploadCompute(region AtlasRegion, bm *glyph.Bitmap) error {
	gc := GlyphConstants{
		AtlasWidth:  uint32(a.width),
		AtlasHeight: uint32(a.height),
		DestX:       uint32(region.X),
		DestY:       uint32(region.Y),
		DestWidth:   uint32(region.Width),
		DestHeight:  uint32(region.Height),
	}
	if bm.Channels() == 3 {
		gc.Subpixel = 1
	}

	v, err := a.compute.DispatchGlyphRasterize(expandCoverage(bm), gc)
	if err != nil {
		return fmt.Errorf("gpu: glyph dispatch %s: %w", region, err)
	}
	if v != 0 && a.onFence != nil {
		a.onFence(v)
	}
	return nil
}

// Clear wipes the whole atlas to transparent after a generation bump.
func (a *AtlasTexture) Clear() error {
	zero := make([]byte, a.width*a.height*atlasBytesPerPixel)
	a.queue.WriteTexture(
		&hal.ImageCopyTexture{Texture: a.texture.Texture(), MipLevel: 0},
		zero,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(a.width * atlasBytesPerPixel),
			RowsPerImage: uint32(a.height),
		},
		&hal.Extent3D{
			Width:              uint32(a.width),
			Height:             uint32(a.height),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

// Texture returns the tracked atlas texture for transitions and
// binding.
func (a *AtlasTexture) Texture() *TrackedTexture { return a.texture }

// Destroy releases the texture. The caller drains the queues first.
func (a *AtlasTexture) Destroy(device hal.Device) {
	a.texture.Destroy(device)
}

// expandCoverage converts a 1- or 3-channel coverage bitmap to RGBA8.
func expandCoverage(bm *glyph.Bitmap) []byte {
	out := make([]byte, bm.Width*bm.Height*atlasBytesPerPixel)
	switch bm.Channels() {
	case 3:
		for i := 0; i < bm.Width*bm.Height; i++ {
			l, c, r := bm.Pixels[i*3], bm.Pixels[i*3+1], bm.Pixels[i*3+2]
			out[i*4+0] = l
			out[i*4+1] = c
			out[i*4+2] = r
			out[i*4+3] = c
		}
	default:
		for i, v := range bm.Pixels {
			out[i*4+0] = v
			out[i*4+1] = v
			out[i*4+2] = v
			out[i*4+3] = v
		}
	}
	return out
}
