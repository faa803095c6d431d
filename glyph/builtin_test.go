package glyph

import "testing"

func TestIsBuiltin(t *testing.T) {
	tests := []struct {
		name string
		r    rune
		want bool
	}{
		{"light horizontal", 0x2500, true},
		{"box drawing end", 0x257F, true},
		{"full block", 0x2588, true},
		{"block elements end", 0x259F, true},
		{"letter A", 'A', false},
		{"before range", 0x24FF, false},
		{"after range", 0x25A0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsBuiltin(tt.r); got != tt.want {
				t.Errorf("IsBuiltin(%U) = %v, want %v", tt.r, got, tt.want)
			}
		})
	}
}

func TestRenderBuiltin_FullBlock(t *testing.T) {
	bm := renderBuiltin(Key{Rune: 0x2588, Size: 16})

	if bm.Empty() {
		t.Fatal("full block must not be empty")
	}
	for i, v := range bm.Pixels {
		if v != 0xFF {
			t.Fatalf("pixel %d = %#x, want 0xFF", i, v)
		}
	}
	if bm.Advance != bm.Width {
		t.Errorf("Advance = %d, want cell width %d", bm.Advance, bm.Width)
	}
}

func TestRenderBuiltin_HalfBlocks(t *testing.T) {
	bm := renderBuiltin(Key{Rune: 0x2580, Size: 16}) // upper half

	covered := 0
	for _, v := range bm.Pixels {
		if v == 0xFF {
			covered++
		}
	}
	want := bm.Width * (bm.Height / 2)
	if covered != want {
		t.Errorf("upper half coverage = %d pixels, want %d", covered, want)
	}

	// Top row full, bottom row empty.
	if bm.Pixels[0] != 0xFF {
		t.Error("top-left pixel should be covered")
	}
	if bm.Pixels[len(bm.Pixels)-1] != 0 {
		t.Error("bottom-right pixel should be uncovered")
	}
}

func TestRenderBuiltin_LinesSpanCell(t *testing.T) {
	// Horizontal line must touch both cell edges so adjacent cells join.
	bm := renderBuiltin(Key{Rune: 0x2500, Size: 16})
	midRow := bm.Pixels[(bm.Height/2)*bm.Width : (bm.Height/2+1)*bm.Width]
	if midRow[0] != 0xFF || midRow[bm.Width-1] != 0xFF {
		t.Error("horizontal line must reach both cell edges")
	}

	// Vertical line must touch top and bottom.
	bm = renderBuiltin(Key{Rune: 0x2502, Size: 16})
	cx := bm.Width / 2
	if bm.Pixels[cx] != 0xFF || bm.Pixels[(bm.Height-1)*bm.Width+cx] != 0xFF {
		t.Error("vertical line must reach top and bottom cell edges")
	}
}

func TestRenderBuiltin_Shades(t *testing.T) {
	tests := []struct {
		name string
		r    rune
		want byte
	}{
		{"light", 0x2591, 0x40},
		{"medium", 0x2592, 0x80},
		{"dark", 0x2593, 0xC0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bm := renderBuiltin(Key{Rune: tt.r, Size: 12})
			for i, v := range bm.Pixels {
				if v != tt.want {
					t.Fatalf("pixel %d = %#x, want %#x", i, v, tt.want)
				}
			}
		})
	}
}

func TestRenderBuiltin_Subpixel(t *testing.T) {
	bm := renderBuiltin(Key{Rune: 0x2588, Size: 16, AA: AASubpixel})

	if !bm.Subpixel {
		t.Fatal("subpixel key must produce a subpixel bitmap")
	}
	if len(bm.Pixels) != bm.Width*bm.Height*3 {
		t.Fatalf("len(Pixels) = %d, want %d", len(bm.Pixels), bm.Width*bm.Height*3)
	}
	// All three channels identical for axis-aligned shapes.
	for i := 0; i < len(bm.Pixels); i += 3 {
		if bm.Pixels[i] != bm.Pixels[i+1] || bm.Pixels[i+1] != bm.Pixels[i+2] {
			t.Fatal("builtin subpixel channels must be identical")
		}
	}
}
