// Package glyph provides the glyph rasterization service consumed by the
// GPU renderer. It turns a glyph identity (font, codepoint, size, style,
// antialiasing mode) into an alpha or subpixel-coverage bitmap, either by
// rasterizing an outline font or by generating box-drawing shapes
// procedurally. The renderer never shapes text or resolves font fallback
// itself; this package is its only source of pixels.
package glyph

import (
	"errors"
	"fmt"
)

// Rasterization errors.
var (
	// ErrGlyphMissing is returned when the font has no glyph for the
	// requested codepoint. Callers substitute a shared replacement bitmap.
	ErrGlyphMissing = errors.New("glyph: missing glyph for codepoint")

	// ErrInvalidKey is returned when a key has a zero size or an unknown
	// antialiasing mode.
	ErrInvalidKey = errors.New("glyph: invalid glyph key")

	// ErrNilFont is returned when constructing a rasterizer without font data.
	ErrNilFont = errors.New("glyph: font data is nil")
)

// Style holds the bold/italic rendition bits of a glyph identity.
type Style uint8

const (
	// StyleRegular is the default upright weight.
	StyleRegular Style = 0
	// StyleBold selects the bold rendition.
	StyleBold Style = 1 << 0
	// StyleItalic selects the italic rendition.
	StyleItalic Style = 1 << 1
)

// AAMode selects the antialiasing output of rasterization.
type AAMode uint8

const (
	// AAGrayscale produces a single-channel alpha coverage bitmap.
	AAGrayscale AAMode = iota
	// AASubpixel produces three independent per-channel coverage values
	// for ClearType-style rendering on pixel-striped displays.
	AASubpixel
	// AANone produces a hard-thresholded monochrome bitmap.
	AANone
)

// String returns the antialiasing mode name.
func (m AAMode) String() string {
	switch m {
	case AAGrayscale:
		return "grayscale"
	case AASubpixel:
		return "subpixel"
	case AANone:
		return "none"
	default:
		return fmt.Sprintf("AAMode(%d)", uint8(m))
	}
}

// Key is the immutable identity of a rasterized glyph. Two keys are equal
// iff they produce bit-identical bitmaps, so Key is used directly as a
// cache key. Codepoints at different sizes are fully distinct keys; no
// cross-size sharing is attempted.
type Key struct {
	// Font identifies the font face within the rasterizer.
	Font uint32
	// Rune is the Unicode codepoint to render.
	Rune rune
	// Size is the requested em size in pixels.
	Size uint16
	// Style holds the bold/italic bits.
	Style Style
	// AA is the antialiasing mode.
	AA AAMode
}

// Valid reports whether the key can be rasterized at all.
func (k Key) Valid() bool {
	return k.Size > 0 && k.AA <= AANone
}

// Hash returns an FNV-1a style hash of the key, used for shard selection
// in caches that index by Key.
func (k Key) Hash() uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, v := range [...]uint64{
		uint64(k.Font),
		uint64(uint32(k.Rune)),
		uint64(k.Size),
		uint64(k.Style),
		uint64(k.AA),
	} {
		h ^= v
		h *= prime64
	}
	return h
}

// String returns a compact description for logging.
func (k Key) String() string {
	return fmt.Sprintf("Key(font=%d %q size=%d style=%d aa=%s)",
		k.Font, k.Rune, k.Size, k.Style, k.AA)
}

// Bitmap is a rasterized glyph. Pixels are tightly packed rows, one byte
// per pixel for grayscale/monochrome output and three bytes per pixel for
// subpixel output.
type Bitmap struct {
	// Pixels holds Width*Height*Channels() coverage bytes.
	Pixels []byte
	// Width and Height are the bitmap dimensions in pixels.
	Width, Height int
	// BearingX is the horizontal offset from the cell origin to the
	// leftmost pixel.
	BearingX int
	// BearingY is the vertical offset from the baseline to the topmost
	// pixel (positive up).
	BearingY int
	// Advance is the horizontal advance in pixels.
	Advance int
	// Subpixel is true when Pixels carries three channels per pixel.
	Subpixel bool
}

// Channels returns the number of coverage bytes per pixel.
func (b *Bitmap) Channels() int {
	if b.Subpixel {
		return 3
	}
	return 1
}

// Empty reports whether the bitmap has no pixels (e.g. a space character).
func (b *Bitmap) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

// Rasterizer produces bitmaps for glyph keys. Implementations must be safe
// for concurrent use.
//
// A missing glyph is reported via ErrGlyphMissing, never via a zero bitmap:
// empty bitmaps are valid results (whitespace renders to nothing but is
// still renderable).
type Rasterizer interface {
	Rasterize(key Key) (*Bitmap, error)
}
