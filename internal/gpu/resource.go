//go:build !nogpu

package gpu

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// textureUsageFor maps a tracked resource state onto the hal usage
// flags the barrier machinery expects.
func textureUsageFor(s ResourceState) gputypes.TextureUsage {
	switch s {
	case StateShaderResource:
		return gputypes.TextureUsageTextureBinding
	case StateUnorderedAccess:
		return gputypes.TextureUsageStorageBinding
	case StateCopyDest:
		return gputypes.TextureUsageCopyDst
	case StateCopySource:
		return gputypes.TextureUsageCopySrc
	case StateRenderTarget, StatePresent:
		return gputypes.TextureUsageRenderAttachment
	default:
		return 0
	}
}

// TrackedTexture wraps a hal texture with enforced state transitions.
// The embedded tracker is the single source of truth for the texture's
// access state; Transition is the only way to change it, and it rejects
// callers whose claimed "before" state is stale.
type TrackedTexture struct {
	stateTracker
	tex  hal.Texture
	view hal.TextureView

	width, height int
	format        gputypes.TextureFormat
}

// TrackedTextureDescriptor configures NewTrackedTexture.
type TrackedTextureDescriptor struct {
	Label         string
	Width, Height int
	Format        gputypes.TextureFormat
	Usage         gputypes.TextureUsage
}

// NewTrackedTexture creates the texture and its default view, starting
// in StateUndefined.
func NewTrackedTexture(device hal.Device, desc TrackedTextureDescriptor) (*TrackedTexture, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         desc.Label + "_view",
		Format:        desc.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, fmt.Errorf("create texture view %q: %w", desc.Label, err)
	}

	return &TrackedTexture{
		stateTracker: newStateTracker(desc.Label, StateUndefined),
		tex:          tex,
		view:         view,
		width:        desc.Width,
		height:       desc.Height,
		format:       desc.Format,
	}, nil
}

// Transition validates the state change and records the matching
// barrier on the encoder. StateUndefined sources skip the barrier: the
// first real use establishes the layout.
func (t *TrackedTexture) Transition(enc hal.CommandEncoder, before, after ResourceState) error {
	if err := t.transition(before, after); err != nil {
		return err
	}
	if before == StateUndefined {
		return nil
	}
	enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.tex,
		Usage: hal.TextureUsageTransition{
			OldUsage: textureUsageFor(before),
			NewUsage: textureUsageFor(after),
		},
	}})
	return nil
}

// Texture returns the underlying hal texture.
func (t *TrackedTexture) Texture() hal.Texture { return t.tex }

// View returns the texture's default view.
func (t *TrackedTexture) View() hal.TextureView { return t.view }

// Size returns the texture dimensions in pixels.
func (t *TrackedTexture) Size() (int, int) { return t.width, t.height }

// Format returns the texture format.
func (t *TrackedTexture) Format() gputypes.TextureFormat { return t.format }

// Destroy releases the view and texture. The caller drains the queues
// first.
func (t *TrackedTexture) Destroy(device hal.Device) {
	device.DestroyTextureView(t.view)
	device.DestroyTexture(t.tex)
}

// TrackedBuffer wraps a hal buffer with the same enforced transition
// discipline. Buffer barriers on this backend are implicit in pass
// boundaries, so the tracker's job here is pure validation: catching
// reads of buffers the compute pass is still writing.
type TrackedBuffer struct {
	stateTracker
	buf  hal.Buffer
	size uint64
}

// NewTrackedBuffer creates the buffer in StateUndefined.
func NewTrackedBuffer(device hal.Device, label string, size uint64, usage gputypes.BufferUsage) (*TrackedBuffer, error) {
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  size,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", label, err)
	}
	return &TrackedBuffer{
		stateTracker: newStateTracker(label, StateUndefined),
		buf:          buf,
		size:         size,
	}, nil
}

// Transition validates the state change.
func (b *TrackedBuffer) Transition(before, after ResourceState) error {
	return b.transition(before, after)
}

// Buffer returns the underlying hal buffer.
func (b *TrackedBuffer) Buffer() hal.Buffer { return b.buf }

// Size returns the buffer size in bytes.
func (b *TrackedBuffer) Size() uint64 { return b.size }

// Destroy releases the buffer. The caller drains the queues first.
func (b *TrackedBuffer) Destroy(device hal.Device) {
	device.DestroyBuffer(b.buf)
}
