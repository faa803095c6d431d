package termgpu

import (
	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
	"github.com/Oichkatzelesfrettschen/terminal-sub003/internal/gpu"
)

// converter turns a public RenderPayload into the internal per-frame
// representation. It owns a reusable cell slice so steady-state frames
// allocate nothing.
type converter struct {
	classes    *classifier
	fontSize   uint16
	aa         glyph.AAMode
	cellWidth  int
	cellHeight int

	cells []gpu.Cell
	spans []gpu.SelectionSpan
}

func newConverter(classes *classifier, fontSize uint16, aa glyph.AAMode, cellWidth, cellHeight int) *converter {
	return &converter{
		classes:    classes,
		fontSize:   fontSize,
		aa:         aa,
		cellWidth:  cellWidth,
		cellHeight: cellHeight,
	}
}

// convert builds the frame for p. The returned frame aliases the
// converter's scratch buffers and is valid until the next call.
func (c *converter) convert(p *RenderPayload) gpu.Frame {
	n := p.Columns * p.Rows
	if cap(c.cells) < n {
		c.cells = make([]gpu.Cell, n)
	}
	cells := c.cells[:n]

	skipNext := false
	for i, src := range p.Cells {
		if skipNext {
			// Trailing half of a wide character. Keep its colors so the
			// background run stays continuous, but emit no glyph.
			cells[i] = gpu.Cell{
				Foreground: uint32(src.Foreground),
				Background: c.background(p, src),
			}
			skipNext = false
			continue
		}
		cells[i] = c.convertCell(p, src)
		if cells[i].Wide && (i+1)%p.Columns != 0 {
			skipNext = true
		}
	}

	c.spans = c.spans[:0]
	for _, sel := range p.Selections {
		c.spans = append(c.spans, gpu.SelectionSpan{
			Row:      sel.Row,
			StartCol: sel.StartCol,
			EndCol:   sel.EndCol,
			Color:    uint32(sel.Color),
		})
	}

	cursor := convertCursor(p.Cursor)
	if cursor.Visible && cursor.Y >= 0 && cursor.Y < p.Rows &&
		cursor.X >= 0 && cursor.X < p.Columns &&
		cells[cursor.Y*p.Columns+cursor.X].Wide {
		cursor.Width = 2
	}

	return gpu.Frame{
		Columns:         p.Columns,
		Rows:            p.Rows,
		CellWidth:       c.cellWidth,
		CellHeight:      c.cellHeight,
		Cells:           cells,
		BackgroundColor: uint32(p.Background),
		Cursor:          cursor,
		Selections:      c.spans,
	}
}

func (c *converter) convertCell(p *RenderPayload, src Cell) gpu.Cell {
	out := gpu.Cell{
		Foreground: uint32(src.Foreground),
		Background: c.background(p, src),
		Attr:       convertFlags(src.Flags),
	}

	class := c.classes.classify(src.Rune)
	if class.blank {
		return out
	}
	out.Wide = class.wide || src.Flags&FlagWide != 0

	aa := c.aa
	if class.builtin {
		// Builtin glyphs are procedural and always monochrome-coverage.
		aa = glyph.AAGrayscale
	}
	out.Glyph = glyph.Key{
		Font:  0,
		Rune:  src.Rune,
		Size:  c.fontSize,
		Style: convertStyle(src.Flags),
		AA:    aa,
	}
	return out
}

// background resolves the cell's effective background, falling back to
// the payload default when the cell leaves it zero.
func (c *converter) background(p *RenderPayload, src Cell) uint32 {
	if src.Background == 0 {
		return uint32(p.Background)
	}
	return uint32(src.Background)
}

func convertStyle(f CellFlags) glyph.Style {
	var s glyph.Style
	if f&FlagBold != 0 {
		s |= glyph.StyleBold
	}
	if f&FlagItalic != 0 {
		s |= glyph.StyleItalic
	}
	return s
}

var flagToAttr = [...]struct {
	flag CellFlags
	attr gpu.CellAttr
}{
	{FlagUnderline, gpu.AttrUnderline},
	{FlagDottedUnderline, gpu.AttrDottedUnderline},
	{FlagDashedUnderline, gpu.AttrDashedUnderline},
	{FlagCurlyUnderline, gpu.AttrCurlyUnderline},
	{FlagDoubleUnderline, gpu.AttrDoubleUnderline},
	{FlagStrikethrough, gpu.AttrStrikethrough},
	{FlagOverline, gpu.AttrOverline},
	{FlagInvisible, gpu.AttrInvisible},
}

func convertFlags(f CellFlags) gpu.CellAttr {
	var a gpu.CellAttr
	for _, m := range flagToAttr {
		if f&m.flag != 0 {
			a |= m.attr
		}
	}
	return a
}

func convertCursor(cur CursorState) gpu.Cursor {
	out := gpu.Cursor{
		X:       cur.Column,
		Y:       cur.Row,
		Width:   1,
		Color:   uint32(cur.Color),
		Visible: cur.Visible,
	}
	switch cur.Shape {
	case CursorShapeUnderscore:
		out.Style = gpu.CursorUnderscore
	case CursorShapeBar:
		out.Style = gpu.CursorBar
	case CursorShapeHollow:
		out.Style = gpu.CursorHollow
	default:
		out.Style = gpu.CursorBlock
	}
	return out
}
