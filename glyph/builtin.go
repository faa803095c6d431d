package glyph

// Builtin glyphs are box-drawing and block-element codepoints rendered
// procedurally from rectangles instead of font outlines. Procedural
// rendering guarantees that line segments meet the cell edges exactly, so
// adjacent cells connect without gaps at any size, which fonts frequently
// get wrong.

// IsBuiltin reports whether r is rendered procedurally.
func IsBuiltin(r rune) bool {
	// Box Drawing, Block Elements.
	return (r >= 0x2500 && r <= 0x257F) || (r >= 0x2580 && r <= 0x259F)
}

// builtinCellSize derives the cell box for a builtin glyph from the em
// size. Terminal cells for monospace fonts are close to a 1:2 aspect.
func builtinCellSize(size uint16) (w, h int) {
	h = int(size)
	w = (h + 1) / 2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}

// renderBuiltin generates the bitmap for a builtin codepoint. Unknown
// codepoints inside the builtin ranges fall back to a centered cross,
// which is visibly wrong rather than invisibly absent.
func renderBuiltin(key Key) *Bitmap {
	w, h := builtinCellSize(key.Size)
	bm := &Bitmap{
		Pixels:   make([]byte, w*h),
		Width:    w,
		Height:   h,
		BearingX: 0,
		BearingY: h,
		Advance:  w,
	}

	thin := maxInt(1, h/12)
	thick := maxInt(2, h/6)
	cx, cy := w/2, h/2

	switch key.Rune {
	case 0x2500: // ─
		fillRect(bm, 0, cy-thin/2, w, thin)
	case 0x2501: // ━
		fillRect(bm, 0, cy-thick/2, w, thick)
	case 0x2502: // │
		fillRect(bm, cx-thin/2, 0, thin, h)
	case 0x2503: // ┃
		fillRect(bm, cx-thick/2, 0, thick, h)
	case 0x250C: // ┌
		fillRect(bm, cx-thin/2, cy-thin/2, w-cx+thin/2, thin)
		fillRect(bm, cx-thin/2, cy-thin/2, thin, h-cy+thin/2)
	case 0x2510: // ┐
		fillRect(bm, 0, cy-thin/2, cx+thin/2, thin)
		fillRect(bm, cx-thin/2, cy-thin/2, thin, h-cy+thin/2)
	case 0x2514: // └
		fillRect(bm, cx-thin/2, cy-thin/2, w-cx+thin/2, thin)
		fillRect(bm, cx-thin/2, 0, thin, cy+thin/2)
	case 0x2518: // ┘
		fillRect(bm, 0, cy-thin/2, cx+thin/2, thin)
		fillRect(bm, cx-thin/2, 0, thin, cy+thin/2)
	case 0x251C: // ├
		fillRect(bm, cx-thin/2, 0, thin, h)
		fillRect(bm, cx-thin/2, cy-thin/2, w-cx+thin/2, thin)
	case 0x2524: // ┤
		fillRect(bm, cx-thin/2, 0, thin, h)
		fillRect(bm, 0, cy-thin/2, cx+thin/2, thin)
	case 0x252C: // ┬
		fillRect(bm, 0, cy-thin/2, w, thin)
		fillRect(bm, cx-thin/2, cy-thin/2, thin, h-cy+thin/2)
	case 0x2534: // ┴
		fillRect(bm, 0, cy-thin/2, w, thin)
		fillRect(bm, cx-thin/2, 0, thin, cy+thin/2)
	case 0x253C: // ┼
		fillRect(bm, 0, cy-thin/2, w, thin)
		fillRect(bm, cx-thin/2, 0, thin, h)
	case 0x2550: // ═
		fillRect(bm, 0, cy-thin-thin/2, w, thin)
		fillRect(bm, 0, cy+thin/2, w, thin)
	case 0x2551: // ║
		fillRect(bm, cx-thin-thin/2, 0, thin, h)
		fillRect(bm, cx+thin/2, 0, thin, h)
	case 0x2580: // ▀ upper half block
		fillRect(bm, 0, 0, w, cy)
	case 0x2584: // ▄ lower half block
		fillRect(bm, 0, cy, w, h-cy)
	case 0x2588: // █ full block
		fillRect(bm, 0, 0, w, h)
	case 0x258C: // ▌ left half block
		fillRect(bm, 0, 0, cx, h)
	case 0x2590: // ▐ right half block
		fillRect(bm, cx, 0, w-cx, h)
	case 0x2591: // ░ light shade
		fillShade(bm, 0x40)
	case 0x2592: // ▒ medium shade
		fillShade(bm, 0x80)
	case 0x2593: // ▓ dark shade
		fillShade(bm, 0xC0)
	case 0x2596: // ▖ quadrant lower left
		fillRect(bm, 0, cy, cx, h-cy)
	case 0x2597: // ▗ quadrant lower right
		fillRect(bm, cx, cy, w-cx, h-cy)
	case 0x2598: // ▘ quadrant upper left
		fillRect(bm, 0, 0, cx, cy)
	case 0x259D: // ▝ quadrant upper right
		fillRect(bm, cx, 0, w-cx, cy)
	default:
		fillRect(bm, 0, cy-thin/2, w, thin)
		fillRect(bm, cx-thin/2, 0, thin, h)
	}

	if key.AA == AASubpixel {
		// Builtin shapes are axis-aligned rectangles; all three channels
		// carry identical coverage.
		sub := make([]byte, len(bm.Pixels)*3)
		for i, v := range bm.Pixels {
			sub[i*3+0] = v
			sub[i*3+1] = v
			sub[i*3+2] = v
		}
		bm.Pixels = sub
		bm.Subpixel = true
	}
	return bm
}

// fillRect sets a clamped rectangle of the bitmap to full coverage.
func fillRect(bm *Bitmap, x, y, rw, rh int) {
	x0, y0 := clampInt(x, 0, bm.Width), clampInt(y, 0, bm.Height)
	x1, y1 := clampInt(x+rw, 0, bm.Width), clampInt(y+rh, 0, bm.Height)
	for yy := y0; yy < y1; yy++ {
		row := bm.Pixels[yy*bm.Width : (yy+1)*bm.Width]
		for xx := x0; xx < x1; xx++ {
			row[xx] = 0xFF
		}
	}
}

// fillShade fills the whole bitmap with uniform partial coverage.
func fillShade(bm *Bitmap, v byte) {
	for i := range bm.Pixels {
		bm.Pixels[i] = v
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
