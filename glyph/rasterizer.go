package glyph

import (
	"fmt"
	"image"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// DefaultMaskCacheSize is the number of rasterized bitmaps retained by a
// FontRasterizer. An atlas generation bump re-uploads from this cache
// instead of re-rasterizing every visible glyph.
const DefaultMaskCacheSize = 4096

// FontRasterizer rasterizes glyphs from an outline font using
// golang.org/x/image/font/opentype. Box-drawing and block-element
// codepoints are generated procedurally instead of consulting the font,
// so line-drawing characters join seamlessly across cells regardless of
// font coverage.
//
// FontRasterizer is safe for concurrent use. Faces are created per call
// (font.Face is not concurrency-safe); completed bitmaps are kept in a
// bounded LRU so repeated keys cost one map lookup.
type FontRasterizer struct {
	mu   sync.Mutex
	font *opentype.Font

	masks *lru.Cache[Key, *Bitmap]

	// rasterized counts actual outline rasterizations, excluding cache
	// hits and procedural glyphs. Read by tests and diagnostics.
	rasterized uint64
}

// FontRasterizerConfig holds construction options for a FontRasterizer.
type FontRasterizerConfig struct {
	// MaskCacheSize bounds the bitmap LRU. Defaults to DefaultMaskCacheSize.
	MaskCacheSize int
}

// NewFontRasterizer parses font data and returns a rasterizer for it.
func NewFontRasterizer(data []byte, config FontRasterizerConfig) (*FontRasterizer, error) {
	if len(data) == 0 {
		return nil, ErrNilFont
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("glyph: parse font: %w", err)
	}

	size := config.MaskCacheSize
	if size <= 0 {
		size = DefaultMaskCacheSize
	}
	masks, err := lru.New[Key, *Bitmap](size)
	if err != nil {
		return nil, fmt.Errorf("glyph: mask cache: %w", err)
	}

	return &FontRasterizer{
		font:  f,
		masks: masks,
	}, nil
}

// Rasterize implements Rasterizer.
func (r *FontRasterizer) Rasterize(key Key) (*Bitmap, error) {
	if !key.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKey, key)
	}

	if bm, ok := r.masks.Get(key); ok {
		return bm, nil
	}

	var (
		bm  *Bitmap
		err error
	)
	if IsBuiltin(key.Rune) {
		bm = renderBuiltin(key)
	} else {
		bm, err = r.rasterizeOutline(key)
		if err != nil {
			return nil, err
		}
	}

	r.masks.Add(key, bm)
	return bm, nil
}

// CellMetrics derives terminal cell dimensions for an em size: the
// advance of 'M' for the width, ascent plus descent for the height.
func (r *FontRasterizer) CellMetrics(size uint16) (width, height int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    float64(size),
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("glyph: create face: %w", err)
	}
	defer func() { _ = face.Close() }()

	adv, ok := face.GlyphAdvance('M')
	if !ok {
		adv = fixed.I(int(size)) / 2
	}
	m := face.Metrics()
	return adv.Ceil(), (m.Ascent + m.Descent).Ceil(), nil
}

// RasterizedCount returns the number of outline rasterizations performed.
func (r *FontRasterizer) RasterizedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rasterized
}

// rasterizeOutline renders one glyph via an opentype face into an alpha
// mask, following the bearing math used by the face's bounds.
func (r *FontRasterizer) rasterizeOutline(key Key) (*Bitmap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, err := r.font.GlyphIndex(nil, key.Rune)
	if err != nil || idx == 0 {
		return nil, fmt.Errorf("%w: %q", ErrGlyphMissing, key.Rune)
	}

	hinting := font.HintingFull
	if key.AA == AANone {
		hinting = font.HintingNone
	}
	face, err := opentype.NewFace(r.font, &opentype.FaceOptions{
		Size:    float64(key.Size),
		DPI:     72,
		Hinting: hinting,
	})
	if err != nil {
		return nil, fmt.Errorf("glyph: create face: %w", err)
	}
	defer func() { _ = face.Close() }()

	bounds, advance, ok := face.GlyphBounds(key.Rune)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGlyphMissing, key.Rune)
	}

	minX := bounds.Min.X.Floor()
	minY := bounds.Min.Y.Floor()
	maxX := bounds.Max.X.Ceil()
	maxY := bounds.Max.Y.Ceil()

	w := maxX - minX
	h := maxY - minY
	if w <= 0 || h <= 0 {
		// Whitespace: renderable, zero coverage.
		return &Bitmap{Advance: advance.Ceil()}, nil
	}

	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.White,
		Face: face,
		Dot: fixed.Point26_6{
			X: -bounds.Min.X,
			Y: -bounds.Min.Y,
		},
	}
	d.DrawString(string(key.Rune))

	r.rasterized++

	bm := &Bitmap{
		Width:    w,
		Height:   h,
		BearingX: minX,
		BearingY: -minY,
		Advance:  advance.Ceil(),
	}
	switch key.AA {
	case AASubpixel:
		bm.Subpixel = true
		bm.Pixels = packSubpixel(mask.Pix, mask.Stride, w, h)
	case AANone:
		bm.Pixels = threshold(mask.Pix, mask.Stride, w, h)
	default:
		bm.Pixels = tighten(mask.Pix, mask.Stride, w, h)
	}
	return bm, nil
}

// tighten copies an image.Alpha buffer into a stride-free byte slice.
func tighten(pix []byte, stride, w, h int) []byte {
	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		copy(out[y*w:(y+1)*w], pix[y*stride:y*stride+w])
	}
	return out
}

// threshold converts coverage to hard monochrome at 50%.
func threshold(pix []byte, stride, w, h int) []byte {
	out := make([]byte, w*h)
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w]
		for x, v := range row {
			if v >= 128 {
				out[y*w+x] = 0xFF
			}
		}
	}
	return out
}

// packSubpixel derives three per-channel coverage values from a grayscale
// mask. Each channel's sample point sits a third of a pixel from its
// neighbors, approximated with a 3-tap horizontal filter over the mask.
// The GPU rasterization path produces true 3x coverage; this CPU path is
// the fallback quality.
func packSubpixel(pix []byte, stride, w, h int) []byte {
	out := make([]byte, w*h*3)
	at := func(row []byte, x int) int {
		if x < 0 || x >= w {
			return 0
		}
		return int(row[x])
	}
	for y := 0; y < h; y++ {
		row := pix[y*stride : y*stride+w]
		for x := 0; x < w; x++ {
			l, c, r := at(row, x-1), at(row, x), at(row, x+1)
			o := (y*w + x) * 3
			out[o+0] = byte((l + 2*c) / 3)
			out[o+1] = byte(c)
			out[o+2] = byte((r + 2*c) / 3)
		}
	}
	return out
}
