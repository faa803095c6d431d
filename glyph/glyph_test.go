package glyph

import (
	"testing"
)

// =============================================================================
// Key Tests
// =============================================================================

func TestKey_Valid(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want bool
	}{
		{"regular key", Key{Rune: 'A', Size: 16}, true},
		{"zero size", Key{Rune: 'A', Size: 0}, false},
		{"subpixel", Key{Rune: 'g', Size: 12, AA: AASubpixel}, true},
		{"aliased", Key{Rune: 'g', Size: 12, AA: AANone}, true},
		{"unknown aa mode", Key{Rune: 'g', Size: 12, AA: AAMode(7)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKey_Hash(t *testing.T) {
	a := Key{Font: 1, Rune: 'A', Size: 16, Style: StyleRegular, AA: AAGrayscale}
	b := a

	if a.Hash() != b.Hash() {
		t.Error("equal keys must hash equal")
	}

	variants := []Key{
		{Font: 2, Rune: 'A', Size: 16},
		{Font: 1, Rune: 'B', Size: 16},
		{Font: 1, Rune: 'A', Size: 17},
		{Font: 1, Rune: 'A', Size: 16, Style: StyleBold},
		{Font: 1, Rune: 'A', Size: 16, AA: AASubpixel},
	}
	for _, v := range variants {
		if v.Hash() == a.Hash() {
			t.Errorf("key %v collides with %v", v, a)
		}
	}
}

// =============================================================================
// Bitmap Tests
// =============================================================================

func TestBitmap_Channels(t *testing.T) {
	gray := &Bitmap{Width: 4, Height: 4}
	if got := gray.Channels(); got != 1 {
		t.Errorf("Channels() = %d, want 1", got)
	}

	sub := &Bitmap{Width: 4, Height: 4, Subpixel: true}
	if got := sub.Channels(); got != 3 {
		t.Errorf("Channels() = %d, want 3", got)
	}
}

func TestBitmap_Empty(t *testing.T) {
	if !(&Bitmap{Advance: 8}).Empty() {
		t.Error("zero-dimension bitmap should be empty")
	}
	if (&Bitmap{Width: 1, Height: 1, Pixels: []byte{0xFF}}).Empty() {
		t.Error("1x1 bitmap should not be empty")
	}
}

// =============================================================================
// Coverage Packing Tests
// =============================================================================

func TestTighten(t *testing.T) {
	// 2x2 image with stride 4.
	pix := []byte{
		1, 2, 9, 9,
		3, 4, 9, 9,
	}
	got := tighten(pix, 4, 2, 2)
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tighten()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestThreshold(t *testing.T) {
	pix := []byte{0, 127, 128, 255}
	got := threshold(pix, 4, 4, 1)
	want := []byte{0, 0, 0xFF, 0xFF}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("threshold()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestPackSubpixel(t *testing.T) {
	// Single row, full coverage in the middle pixel only.
	pix := []byte{0, 255, 0}
	got := packSubpixel(pix, 3, 3, 1)

	if len(got) != 9 {
		t.Fatalf("len = %d, want 9", len(got))
	}
	// Center pixel: all channels near full.
	if got[4] != 255 {
		t.Errorf("center G channel = %d, want 255", got[4])
	}
	// Left neighbor's right channel picks up bleed from the center.
	if got[2] == 0 {
		t.Error("left pixel R-edge channel should receive bleed coverage")
	}
	// Far edges stay dark.
	if got[0] != 0 {
		t.Errorf("left pixel left channel = %d, want 0", got[0])
	}
}

// =============================================================================
// FontRasterizer Tests
// =============================================================================

func TestNewFontRasterizer_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"nil data", nil},
		{"garbage data", []byte("not a font at all")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFontRasterizer(tt.data, FontRasterizerConfig{}); err == nil {
				t.Error("NewFontRasterizer() should fail")
			}
		})
	}
}
