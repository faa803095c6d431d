//go:build !nogpu

package termgpu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/wgpu/hal"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
	"github.com/Oichkatzelesfrettschen/terminal-sub003/internal/gpu"
)

// Construction errors.
var (
	// ErrNoDevice is returned when New is called without a device provider.
	ErrNoDevice = errors.New("termgpu: no device provider")
	// ErrNoFont is returned when New has neither font data nor a rasterizer.
	ErrNoFont = errors.New("termgpu: no font data or rasterizer")
	// ErrNoCellSize is returned when an injected rasterizer cannot derive
	// cell metrics and WithCellSize was not given.
	ErrNoCellSize = errors.New("termgpu: cell size required with custom rasterizer")
	// ErrReleased is returned by operations on a released renderer.
	ErrReleased = errors.New("termgpu: renderer released")
)

// RenderTarget identifies the texture a frame draws into.
type RenderTarget = gpu.RenderTarget

// Diagnostics is a point-in-time snapshot of renderer counters plus the
// adapter identification when the device provider exposes one.
type Diagnostics struct {
	gpu.Diagnostics
	// Adapter is a one-line GPU description, empty if unknown.
	Adapter string
}

// cellMetricsProvider is implemented by rasterizers that can derive
// cell dimensions from the font, like glyph.FontRasterizer.
type cellMetricsProvider interface {
	CellMetrics(size uint16) (width, height int, err error)
}

// Renderer draws terminal cell grids to GPU textures. Construct with
// New, feed frames with Render, and free GPU resources with
// ReleaseResources. Methods are safe for concurrent use, though frames
// for one target must be submitted in order.
type Renderer struct {
	mu       sync.Mutex
	session  *gpu.Session
	conv     *converter
	packed   []byte
	runs     []gpu.Batch
	adapter  string
	columns  int
	rows     int
	cellW    int
	cellH    int
	fontSize uint16
	aa       glyph.AAMode
	released bool
}

// New builds a renderer from functional options. WithDeviceProvider is
// required; so is one of WithFontData or WithRasterizer.
//
// Example:
//
//	r, err := termgpu.New(
//		termgpu.WithDeviceProvider(dev),
//		termgpu.WithFontData(fontBytes),
//		termgpu.WithFontSize(15),
//	)
func New(opts ...Option) (*Renderer, error) {
	o := defaultRendererOptions()
	for _, opt := range opts {
		opt(&o)
	}

	device, queue, err := extractHal(o.provider)
	if err != nil {
		return nil, err
	}

	rast := o.rasterizer
	if rast == nil {
		if len(o.fontData) == 0 {
			return nil, ErrNoFont
		}
		fr, err := glyph.NewFontRasterizer(o.fontData, glyph.FontRasterizerConfig{})
		if err != nil {
			return nil, err
		}
		rast = fr
	}

	cellW, cellH := o.cellWidth, o.cellHeight
	if cellW <= 0 || cellH <= 0 {
		mp, ok := rast.(cellMetricsProvider)
		if !ok {
			return nil, ErrNoCellSize
		}
		cellW, cellH, err = mp.CellMetrics(o.fontSize)
		if err != nil {
			return nil, fmt.Errorf("termgpu: derive cell size: %w", err)
		}
	}

	session, err := gpu.NewSession(device, queue, rast, gpu.SessionConfig{
		TargetFormat:  o.targetFormat,
		AtlasWidth:    o.atlasWidth,
		AtlasHeight:   o.atlasHeight,
		EnableCompute: o.compute,
	})
	if err != nil {
		return nil, err
	}

	aa := glyph.AAGrayscale
	if o.subpixel {
		aa = glyph.AASubpixel
	}

	adapter := ""
	if ad, ok := o.provider.(interface{ AdapterDescription() string }); ok {
		adapter = ad.AdapterDescription()
	}

	r := &Renderer{
		session:  session,
		adapter:  adapter,
		conv:     newConverter(newClassifier(), o.fontSize, aa, cellW, cellH),
		cellW:    cellW,
		cellH:    cellH,
		fontSize: o.fontSize,
		aa:       aa,
	}
	logger().Debug("termgpu: renderer created",
		"cellWidth", cellW, "cellHeight", cellH, "fontSize", o.fontSize)
	return r, nil
}

// extractHal pulls hal.Device and hal.Queue out of a device provider.
// The provider must implement HalDevice() any and HalQueue() any.
func extractHal(provider any) (hal.Device, hal.Queue, error) {
	if provider == nil {
		return nil, nil, ErrNoDevice
	}
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, nil, fmt.Errorf("%w: provider does not expose HAL types", ErrNoDevice)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrNoDevice)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrNoDevice)
	}
	return device, queue, nil
}

// Render draws one payload into target. Population, upload, encode and
// submit happen synchronously; the GPU finishes asynchronously, gated
// by the frame ring.
func (r *Renderer) Render(target RenderTarget, payload *RenderPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}

	frame := r.conv.convert(payload)
	return r.session.Render(target, &frame)
}

// Prewarm rasterizes and uploads the printable ASCII range so the first
// rendered frame misses nothing. Best effort.
func (r *Renderer) Prewarm() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}

	keys := make([]glyph.Key, 0, 95)
	for c := rune(' '); c <= '~'; c++ {
		keys = append(keys, glyph.Key{Rune: c, Size: r.fontSize, AA: r.aa})
	}
	r.session.Atlas().Prewarm(keys)
}

// InitializeCompute sizes the GPU cell-expansion path for a grid. Call
// again on resize; in-flight dispatches are drained first. Requires
// WithCompute at construction.
func (r *Renderer) InitializeCompute(columns, rows int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return ErrReleased
	}
	if err := r.session.InitializeCompute(columns, rows); err != nil {
		return err
	}
	r.columns, r.rows = columns, rows
	r.packed = make([]byte, columns*rows*8)
	return nil
}

// DispatchGrid expands payload's cells into quad instances on the GPU;
// the next Render draws the glyph layer from the expanded buffer. Only
// the payload's dirty row window is regenerated when one is set.
// Without InitializeCompute this is a no-op returning zero.
func (r *Renderer) DispatchGrid(payload *RenderPayload) (uint64, error) {
	if err := payload.Validate(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return 0, ErrReleased
	}
	if payload.Columns != r.columns || payload.Rows != r.rows {
		return 0, fmt.Errorf("%w: grid %dx%d, compute sized for %dx%d",
			ErrInvalidPayload, payload.Columns, payload.Rows, r.columns, r.rows)
	}

	runs := r.packCells(payload)
	return r.session.DispatchGridGeneration(r.packed, runs, gpu.GridConstants{
		CellCountX:    uint32(payload.Columns),
		CellCountY:    uint32(payload.Rows),
		CellWidth:     uint32(r.cellW),
		CellHeight:    uint32(r.cellH),
		FirstDirtyRow: uint32(payload.DirtyFirstRow),
		DirtyRowCount: uint32(payload.DirtyRowCount),
	})
}

// packCells fills the compact 8-byte-per-cell buffer the grid kernel
// reads: atlas x/y in the low 24 bits of word 0, shading kind above
// them, premultiplied foreground in word 1. Atlas lookups go through
// the normal cache, so dispatching also warms it. The returned runs
// cover the glyph-bearing cells, with Offset as a cell index into the
// expanded instance buffer; if the atlas resets partway through, the
// pack re-runs once so no run references wiped texels.
func (r *Renderer) packCells(payload *RenderPayload) []gpu.Batch {
	atlas := r.session.Atlas()
	for attempt := 0; ; attempt++ {
		gen := atlas.Generation()
		r.runs = r.runs[:0]

		for i, src := range payload.Cells {
			cell := r.conv.convertCell(payload, src)

			var word0 uint32
			if cell.Glyph != (glyph.Key{}) {
				if entry, err := atlas.GetOrInsert(cell.Glyph); err == nil &&
					entry.Occupied && entry.Region.IsValid() {
					word0 = uint32(entry.Region.X)&0xFFF |
						(uint32(entry.Region.Y)&0xFFF)<<12 |
						uint32(entry.Shading)<<24
					r.runs = appendCellRun(r.runs, i, entry.Shading)
				}
			}
			fg := cell.Foreground
			binary.LittleEndian.PutUint32(r.packed[i*8:], word0)
			binary.LittleEndian.PutUint32(r.packed[i*8+4:],
				gpu.PackRGBA(uint8(fg), uint8(fg>>8), uint8(fg>>16), uint8(fg>>24)))
		}

		if atlas.Generation() == gen || attempt == 1 {
			return r.runs
		}
	}
}

// appendCellRun extends the last run when cell i continues it with the
// same shading kind, otherwise starts a new one.
func appendCellRun(runs []gpu.Batch, i int, shading gpu.ShadingKind) []gpu.Batch {
	if n := len(runs); n > 0 && runs[n-1].Shading == shading &&
		runs[n-1].Offset+runs[n-1].Count == uint32(i) {
		runs[n-1].Count++
		return runs
	}
	return append(runs, gpu.Batch{Offset: uint32(i), Count: 1, Shading: shading})
}

// Diagnostics returns a snapshot of the renderer's counters.
func (r *Renderer) Diagnostics() Diagnostics {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return Diagnostics{Adapter: r.adapter}
	}
	return Diagnostics{
		Diagnostics: r.session.Diagnostics(),
		Adapter:     r.adapter,
	}
}

// RequiresContinuousRedraw reports whether the renderer needs frames
// when nothing changed. It never does: all animation state lives in the
// payload, so callers can idle between terminal updates.
func (r *Renderer) RequiresContinuousRedraw() bool { return false }

// EnableVariableRateShading is accepted for interface compatibility and
// does nothing. Cell quads are already minimal fill work.
func (r *Renderer) EnableVariableRateShading(enabled bool) {}

// EnableLowLatency is accepted for interface compatibility and does
// nothing. The frame ring depth is fixed.
func (r *Renderer) EnableLowLatency(enabled bool) {}

// ReleaseResources drains the GPU and destroys everything the renderer
// created. Idempotent; the renderer is unusable afterward.
func (r *Renderer) ReleaseResources() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.released {
		return
	}
	r.released = true
	r.session.ReleaseResources()
}
