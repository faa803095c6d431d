package gpu

import (
	"fmt"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
)

// CellAttr is a bitset of per-cell decorations.
type CellAttr uint16

const (
	AttrUnderline CellAttr = 1 << iota
	AttrDottedUnderline
	AttrDashedUnderline
	AttrCurlyUnderline
	AttrDoubleUnderline
	AttrStrikethrough
	AttrOverline
	AttrInvisible
)

// CursorStyle selects the cursor quad's shape.
type CursorStyle uint8

const (
	CursorBlock CursorStyle = iota
	CursorUnderscore
	CursorBar
	CursorHollow
)

// Cell is one grid cell as seen by the population pass. The zero value
// is an empty cell with the frame's default background.
type Cell struct {
	// Glyph identifies the cell's character. A zero key means no glyph.
	Glyph glyph.Key
	// Foreground, Background are straight (non-premultiplied) RGBA8
	// words, R in the low byte.
	Foreground uint32
	Background uint32
	// Attr carries the cell's decorations.
	Attr CellAttr
	// Wide marks the leading half of a double-width character; the
	// trailing half uses a zero glyph key.
	Wide bool
}

// Cursor describes the cursor for one frame.
type Cursor struct {
	X, Y    int
	Width   int // cells, 2 over a wide glyph
	Style   CursorStyle
	Color   uint32 // straight RGBA8
	Visible bool
}

// SelectionSpan is one horizontal run of selected cells.
type SelectionSpan struct {
	Row        int
	StartCol   int
	EndCol     int // exclusive
	Color      uint32
}

// Frame is the per-frame input to the population pass. The caller owns
// the slices; they are read but never retained.
type Frame struct {
	Columns, Rows         int
	CellWidth, CellHeight int
	// Cells is row-major, length Columns*Rows.
	Cells []Cell
	// BackgroundColor is the straight RGBA8 default background. Cells
	// whose Background equals it emit no background quad; the render
	// pass clear supplies it.
	BackgroundColor uint32
	Cursor          Cursor
	Selections      []SelectionSpan
	// DecorationColor overrides the per-cell foreground for underlines
	// when nonzero.
	DecorationColor uint32
}

// Valid reports whether the frame's grid description is coherent.
func (f *Frame) Valid() bool {
	return f.Columns > 0 && f.Rows > 0 &&
		f.CellWidth > 0 && f.CellHeight > 0 &&
		len(f.Cells) == f.Columns*f.Rows
}

// underlineShading maps a decoration attribute to its line pipeline kind.
func underlineShading(attr CellAttr) (ShadingKind, bool) {
	switch {
	case attr&AttrCurlyUnderline != 0:
		return ShadingCurlyLine, true
	case attr&AttrDottedUnderline != 0:
		return ShadingDottedLine, true
	case attr&AttrDashedUnderline != 0:
		return ShadingDashedLine, true
	case attr&(AttrUnderline|AttrDoubleUnderline) != 0:
		return ShadingSolidLine, true
	default:
		return ShadingSolidLine, false
	}
}

// populateFrame walks the grid and emits the frame's complete instance
// stream into the batcher, back to front: backgrounds, glyphs,
// decorations, selection, cursor. Within each layer the emission order
// is row-major and stable, so a steady-state grid of plain text
// produces exactly two batches.
func populateFrame(b *Batcher, atlas *GlyphAtlas, f *Frame) error {
	if !f.Valid() {
		return fmt.Errorf("gpu: invalid frame: %dx%d cells %d", f.Columns, f.Rows, len(f.Cells))
	}

	if err := b.BeginBatch(); err != nil {
		return err
	}

	if err := emitBackgrounds(b, f); err != nil {
		return err
	}
	if err := emitGlyphs(b, atlas, f); err != nil {
		return err
	}
	if err := emitDecorations(b, f); err != nil {
		return err
	}
	if err := emitSelections(b, f); err != nil {
		return err
	}
	if err := emitCursor(b, f); err != nil {
		return err
	}

	return b.EndBatch()
}

// populateFrameStable runs population and, when the atlas reset partway
// through, discards the pass and runs it once more against the fresh
// generation. Instances emitted before a reset reference wiped texels;
// the second pass repacks every glyph it needs, so only a working set
// that overflows the atlas within a single frame can still produce a
// stale draw. restart discards side effects of the abandoned pass.
func populateFrameStable(b *Batcher, atlas *GlyphAtlas, f *Frame, restart func()) error {
	gen := atlas.Generation()
	if err := populateFrame(b, atlas, f); err != nil {
		return err
	}
	if atlas.Generation() == gen {
		return nil
	}
	if restart != nil {
		restart()
	}
	return populateFrame(b, atlas, f)
}

// populateOverlayFrame emits every layer except glyphs, for frames
// whose glyph quads come from the grid generation dispatch. The
// returned count is the number of batches at or below the glyph layer,
// so the draw list can splice the GPU-expanded runs in at the right
// depth.
func populateOverlayFrame(b *Batcher, f *Frame) (int, error) {
	if !f.Valid() {
		return 0, fmt.Errorf("gpu: invalid frame: %dx%d cells %d", f.Columns, f.Rows, len(f.Cells))
	}

	if err := b.BeginBatch(); err != nil {
		return 0, err
	}
	if err := emitBackgrounds(b, f); err != nil {
		return 0, err
	}
	splice := b.TotalBatches()

	if err := emitDecorations(b, f); err != nil {
		return 0, err
	}
	if err := emitSelections(b, f); err != nil {
		return 0, err
	}
	if err := emitCursor(b, f); err != nil {
		return 0, err
	}
	return splice, b.EndBatch()
}

// emitBackgrounds coalesces horizontal runs of identical non-default
// backgrounds into single quads. A uniform screen emits nothing; the
// clear color covers it.
func emitBackgrounds(b *Batcher, f *Frame) error {
	cw, ch := f.CellWidth, f.CellHeight
	for row := 0; row < f.Rows; row++ {
		base := row * f.Columns
		col := 0
		for col < f.Columns {
			bg := f.Cells[base+col].Background
			if bg == f.BackgroundColor || bg>>24 == 0 {
				col++
				continue
			}
			start := col
			for col < f.Columns && f.Cells[base+col].Background == bg {
				col++
			}
			err := b.AddInstance(QuadInstance{
				PosX:    int16(start * cw),
				PosY:    int16(row * ch),
				SizeW:   uint16((col - start) * cw),
				SizeH:   uint16(ch),
				Shading: ShadingBackground,
				ScaleX:  1,
				ScaleY:  1,
				Color:   premultiply(bg),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// emitGlyphs resolves every cell's glyph through the atlas and emits
// one textured quad per visible glyph. An atlas reset inside the loop
// invalidates instances emitted before it; populateFrameStable detects
// the generation change and re-runs the pass.
func emitGlyphs(b *Batcher, atlas *GlyphAtlas, f *Frame) error {
	cw, ch := f.CellWidth, f.CellHeight
	baseline := baselineOffset(ch)

	for row := 0; row < f.Rows; row++ {
		base := row * f.Columns
		for col := 0; col < f.Columns; col++ {
			cell := f.Cells[base+col]
			if cell.Glyph == (glyph.Key{}) || cell.Attr&AttrInvisible != 0 {
				continue
			}

			entry, err := atlas.GetOrInsert(cell.Glyph)
			if err != nil {
				return fmt.Errorf("gpu: cell (%d,%d): %w", col, row, err)
			}
			if !entry.Region.IsValid() {
				continue // whitespace
			}

			err = b.AddInstance(QuadInstance{
				PosX:    int16(col*cw + int(entry.BearingX)),
				PosY:    int16(row*ch + baseline - int(entry.BearingY)),
				SizeW:   uint16(entry.Region.Width),
				SizeH:   uint16(entry.Region.Height),
				TexX:    uint16(entry.Region.X),
				TexY:    uint16(entry.Region.Y),
				Shading: entry.Shading,
				ScaleX:  1,
				ScaleY:  1,
				Color:   premultiply(cell.Foreground),
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// emitDecorations draws underline, strikethrough and overline strokes.
// Horizontal runs with matching attributes and colors merge into single
// line quads.
func emitDecorations(b *Batcher, f *Frame) error {
	cw, ch := f.CellWidth, f.CellHeight
	stroke := strokeWidth(ch)

	for row := 0; row < f.Rows; row++ {
		base := row * f.Columns
		col := 0
		for col < f.Columns {
			cell := f.Cells[base+col]
			kind, ok := underlineShading(cell.Attr)
			deco := cell.Attr & (AttrUnderline | AttrDottedUnderline | AttrDashedUnderline |
				AttrCurlyUnderline | AttrDoubleUnderline | AttrStrikethrough | AttrOverline)
			if deco == 0 {
				col++
				continue
			}
			color := cell.Foreground
			if f.DecorationColor != 0 {
				color = f.DecorationColor
			}

			start := col
			for col < f.Columns {
				c := f.Cells[base+col]
				if c.Attr&deco != deco || c.Foreground != cell.Foreground {
					break
				}
				col++
			}
			runW := uint16((col - start) * cw)
			x := int16(start * cw)
			packed := premultiply(color)

			if ok {
				height := stroke
				if kind == ShadingCurlyLine {
					height = curlyHeight(ch)
				}
				y := row*ch + ch - height
				if err := addLine(b, x, int16(y), runW, uint16(height), kind, packed); err != nil {
					return err
				}
				if cell.Attr&AttrDoubleUnderline != 0 {
					y2 := y - 2*stroke
					if err := addLine(b, x, int16(y2), runW, uint16(stroke), kind, packed); err != nil {
						return err
					}
				}
			}
			if cell.Attr&AttrStrikethrough != 0 {
				y := row*ch + ch/2
				if err := addLine(b, x, int16(y), runW, uint16(stroke), ShadingSolidLine, packed); err != nil {
					return err
				}
			}
			if cell.Attr&AttrOverline != 0 {
				y := row * ch
				if err := addLine(b, x, int16(y), runW, uint16(stroke), ShadingSolidLine, packed); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func addLine(b *Batcher, x, y int16, w, h uint16, kind ShadingKind, color uint32) error {
	return b.AddInstance(QuadInstance{
		PosX: x, PosY: y,
		SizeW: w, SizeH: h,
		Shading: kind,
		ScaleX:  1, ScaleY: 1,
		Color: color,
	})
}

// emitSelections draws the selection highlight over text, one
// translucent quad per span.
func emitSelections(b *Batcher, f *Frame) error {
	cw, ch := f.CellWidth, f.CellHeight
	for _, span := range f.Selections {
		if span.Row < 0 || span.Row >= f.Rows || span.EndCol <= span.StartCol {
			continue
		}
		start := clampInt(span.StartCol, 0, f.Columns)
		end := clampInt(span.EndCol, 0, f.Columns)
		if end <= start {
			continue
		}
		err := b.AddInstance(QuadInstance{
			PosX:    int16(start * cw),
			PosY:    int16(span.Row * ch),
			SizeW:   uint16((end - start) * cw),
			SizeH:   uint16(ch),
			Shading: ShadingFilledRect,
			ScaleX:  1, ScaleY: 1,
			Color: premultiply(span.Color),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// emitCursor draws the cursor last so it composites over everything.
func emitCursor(b *Batcher, f *Frame) error {
	cur := f.Cursor
	if !cur.Visible || cur.X < 0 || cur.X >= f.Columns || cur.Y < 0 || cur.Y >= f.Rows {
		return nil
	}
	cw, ch := f.CellWidth, f.CellHeight
	width := cur.Width
	if width < 1 {
		width = 1
	}

	x := int16(cur.X * cw)
	y := int16(cur.Y * ch)
	w := uint16(width * cw)
	h := uint16(ch)
	stroke := uint16(strokeWidth(ch))

	switch cur.Style {
	case CursorUnderscore:
		y += int16(ch) - int16(stroke)
		h = stroke
	case CursorBar:
		w = stroke
	}
	// Block and hollow cover the full cell; the cursor shader inverts or
	// outlines based on the style carried in the scale bits.

	q := QuadInstance{
		PosX: x, PosY: y,
		SizeW: w, SizeH: h,
		TexX:    uint16(cur.Style), // style selector for the cursor shader
		Shading: ShadingCursor,
		ScaleX:  1, ScaleY: 1,
		Color: premultiply(cur.Color),
	}
	return b.AddInstance(q)
}

// premultiply converts a straight RGBA8 word to premultiplied form.
func premultiply(straight uint32) uint32 {
	a := uint8(straight >> 24)
	return PackRGBA(uint8(straight), uint8(straight>>8), uint8(straight>>16), a)
}

// baselineOffset places the text baseline inside a cell. Roughly 80% of
// the cell height matches common monospace vertical metrics.
func baselineOffset(cellHeight int) int {
	return cellHeight * 4 / 5
}

// strokeWidth scales decoration thickness with cell height.
func strokeWidth(cellHeight int) int {
	w := cellHeight / 16
	if w < 1 {
		w = 1
	}
	return w
}

// curlyHeight is the vertical extent of the curly underline's wave.
func curlyHeight(cellHeight int) int {
	h := cellHeight / 4
	if h < 2 {
		h = 2
	}
	return h
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
