package termgpu

import (
	"testing"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
	"github.com/Oichkatzelesfrettschen/terminal-sub003/internal/gpu"
)

func testConverter() *converter {
	return newConverter(newClassifier(), 16, glyph.AAGrayscale, 9, 20)
}

func simplePayload(cols, rows int) *RenderPayload {
	return &RenderPayload{
		Columns:    cols,
		Rows:       rows,
		Cells:      make([]Cell, cols*rows),
		Background: RGB(0, 0, 0),
	}
}

func TestConvertBasicCell(t *testing.T) {
	c := testConverter()
	p := simplePayload(2, 1)
	p.Cells[0] = Cell{
		Rune:       'a',
		Foreground: RGB(0xFF, 0xFF, 0xFF),
		Flags:      FlagUnderline,
	}

	frame := c.convert(p)
	if frame.Columns != 2 || frame.Rows != 1 {
		t.Fatalf("frame grid %dx%d, want 2x1", frame.Columns, frame.Rows)
	}
	if frame.CellWidth != 9 || frame.CellHeight != 20 {
		t.Fatalf("cell size %dx%d, want 9x20", frame.CellWidth, frame.CellHeight)
	}

	cell := frame.Cells[0]
	want := glyph.Key{Rune: 'a', Size: 16, AA: glyph.AAGrayscale}
	if cell.Glyph != want {
		t.Errorf("Glyph = %v, want %v", cell.Glyph, want)
	}
	if cell.Attr != gpu.AttrUnderline {
		t.Errorf("Attr = %v, want AttrUnderline", cell.Attr)
	}
	if cell.Background != uint32(p.Background) {
		t.Errorf("Background = %#08x, want default %#08x", cell.Background, uint32(p.Background))
	}
}

func TestConvertBlankAndInvisible(t *testing.T) {
	c := testConverter()
	p := simplePayload(3, 1)
	p.Cells[0] = Cell{Rune: ' ', Foreground: RGB(1, 2, 3)}
	p.Cells[1] = Cell{Rune: 0}
	p.Cells[2] = Cell{Rune: 'x', Flags: FlagInvisible}

	frame := c.convert(p)
	for i := 0; i < 2; i++ {
		if frame.Cells[i].Glyph != (glyph.Key{}) {
			t.Errorf("cell %d: blank rune produced glyph key %v", i, frame.Cells[i].Glyph)
		}
	}
	// Invisible cells keep their key; the population pass drops the
	// glyph while still drawing background and decorations.
	if frame.Cells[2].Attr&gpu.AttrInvisible == 0 {
		t.Errorf("cell 2: AttrInvisible not set")
	}
}

func TestConvertStyles(t *testing.T) {
	tests := []struct {
		name  string
		flags CellFlags
		want  glyph.Style
	}{
		{"regular", 0, glyph.StyleRegular},
		{"bold", FlagBold, glyph.StyleBold},
		{"italic", FlagItalic, glyph.StyleItalic},
		{"bold italic", FlagBold | FlagItalic, glyph.StyleBold | glyph.StyleItalic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := convertStyle(tt.flags); got != tt.want {
				t.Errorf("convertStyle(%#x) = %d, want %d", tt.flags, got, tt.want)
			}
		})
	}
}

func TestConvertFlags(t *testing.T) {
	got := convertFlags(FlagCurlyUnderline | FlagStrikethrough | FlagOverline)
	want := gpu.AttrCurlyUnderline | gpu.AttrStrikethrough | gpu.AttrOverline
	if got != want {
		t.Errorf("convertFlags = %#x, want %#x", got, want)
	}
	if convertFlags(0) != 0 {
		t.Errorf("convertFlags(0) = %#x, want 0", convertFlags(0))
	}
}

func TestConvertWidePair(t *testing.T) {
	c := testConverter()
	p := simplePayload(3, 1)
	p.Cells[0] = Cell{Rune: '漢', Foreground: RGB(0xFF, 0xFF, 0xFF)}
	p.Cells[1] = Cell{} // trailing half
	p.Cells[2] = Cell{Rune: 'x', Foreground: RGB(0xFF, 0xFF, 0xFF)}

	frame := c.convert(p)
	if !frame.Cells[0].Wide {
		t.Errorf("leading cell not wide")
	}
	if frame.Cells[1].Glyph != (glyph.Key{}) {
		t.Errorf("trailing cell has glyph key %v", frame.Cells[1].Glyph)
	}
	if frame.Cells[2].Glyph.Rune != 'x' {
		t.Errorf("cell after wide pair = %v, want 'x'", frame.Cells[2].Glyph)
	}
}

func TestConvertWideCursor(t *testing.T) {
	c := testConverter()
	p := simplePayload(3, 1)
	p.Cells[0] = Cell{Rune: '漢'}
	p.Cursor = CursorState{Column: 0, Row: 0, Visible: true, Color: RGB(0xFF, 0, 0)}

	frame := c.convert(p)
	if frame.Cursor.Width != 2 {
		t.Errorf("cursor width = %d, want 2 over wide glyph", frame.Cursor.Width)
	}
}

func TestConvertCursorShapes(t *testing.T) {
	tests := []struct {
		shape CursorShape
		want  gpu.CursorStyle
	}{
		{CursorShapeBlock, gpu.CursorBlock},
		{CursorShapeUnderscore, gpu.CursorUnderscore},
		{CursorShapeBar, gpu.CursorBar},
		{CursorShapeHollow, gpu.CursorHollow},
	}

	for _, tt := range tests {
		got := convertCursor(CursorState{Shape: tt.shape, Visible: true})
		if got.Style != tt.want {
			t.Errorf("shape %d: style = %d, want %d", tt.shape, got.Style, tt.want)
		}
		if got.Width != 1 {
			t.Errorf("shape %d: width = %d, want 1", tt.shape, got.Width)
		}
	}
}

func TestConvertSelections(t *testing.T) {
	c := testConverter()
	p := simplePayload(4, 2)
	p.Selections = []Selection{
		{Row: 0, StartCol: 1, EndCol: 3, Color: RGBA(0x80, 0x80, 0xFF, 0x80)},
		{Row: 1, StartCol: 0, EndCol: 4, Color: RGBA(0x80, 0x80, 0xFF, 0x80)},
	}

	frame := c.convert(p)
	if len(frame.Selections) != 2 {
		t.Fatalf("len(Selections) = %d, want 2", len(frame.Selections))
	}
	if s := frame.Selections[0]; s.Row != 0 || s.StartCol != 1 || s.EndCol != 3 {
		t.Errorf("span 0 = %+v", s)
	}
}

func TestConvertBuiltinForcesGrayscale(t *testing.T) {
	c := newConverter(newClassifier(), 16, glyph.AASubpixel, 9, 20)
	p := simplePayload(2, 1)
	p.Cells[0] = Cell{Rune: '─', Foreground: RGB(0xFF, 0xFF, 0xFF)}
	p.Cells[1] = Cell{Rune: 'a', Foreground: RGB(0xFF, 0xFF, 0xFF)}

	frame := c.convert(p)
	if frame.Cells[0].Glyph.AA != glyph.AAGrayscale {
		t.Errorf("builtin glyph AA = %v, want grayscale", frame.Cells[0].Glyph.AA)
	}
	if frame.Cells[1].Glyph.AA != glyph.AASubpixel {
		t.Errorf("font glyph AA = %v, want subpixel", frame.Cells[1].Glyph.AA)
	}
}

func TestConvertReusesScratch(t *testing.T) {
	c := testConverter()
	p := simplePayload(4, 4)

	first := c.convert(p)
	second := c.convert(p)
	if &first.Cells[0] != &second.Cells[0] {
		t.Errorf("scratch cell slice reallocated between frames")
	}
}
