package termgpu

import (
	"errors"
	"fmt"
)

// Payload errors.
var (
	// ErrInvalidPayload is returned when a payload's grid description is
	// incoherent.
	ErrInvalidPayload = errors.New("termgpu: invalid payload")
)

// Color is a straight (non-premultiplied) RGBA8 color word, R in the
// low byte. The renderer premultiplies at instance packing time.
type Color uint32

// RGB builds an opaque color.
func RGB(r, g, b uint8) Color {
	return Color(uint32(r) | uint32(g)<<8 | uint32(b)<<16 | 0xFF000000)
}

// RGBA builds a color with explicit alpha.
func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24)
}

// CellFlags is a bitset of per-cell renditions and decorations.
type CellFlags uint16

const (
	// FlagBold selects the bold face.
	FlagBold CellFlags = 1 << iota
	// FlagItalic selects the italic face.
	FlagItalic
	// FlagUnderline draws a solid underline.
	FlagUnderline
	// FlagDottedUnderline draws a dotted underline.
	FlagDottedUnderline
	// FlagDashedUnderline draws a dashed underline.
	FlagDashedUnderline
	// FlagCurlyUnderline draws a curly (squiggle) underline.
	FlagCurlyUnderline
	// FlagDoubleUnderline draws two stacked underlines.
	FlagDoubleUnderline
	// FlagStrikethrough draws a line through the cell's midline.
	FlagStrikethrough
	// FlagOverline draws a line along the cell's top edge.
	FlagOverline
	// FlagInvisible suppresses the glyph but keeps the background and
	// decorations.
	FlagInvisible
	// FlagWide marks the leading half of a double-width character. The
	// trailing cell carries rune zero.
	FlagWide
)

// Cell is one grid position in a frame payload. The zero value is an
// empty cell with the payload's default colors.
type Cell struct {
	// Rune is the cell's character; zero means empty.
	Rune rune
	// Foreground and Background are the cell's colors. A zero
	// Background falls back to the payload default.
	Foreground Color
	Background Color
	// Flags carries renditions and decorations.
	Flags CellFlags
}

// CursorShape selects how the cursor draws.
type CursorShape uint8

const (
	// CursorShapeBlock fills the whole cell.
	CursorShapeBlock CursorShape = iota
	// CursorShapeUnderscore draws a thin bar along the cell bottom.
	CursorShapeUnderscore
	// CursorShapeBar draws a thin vertical bar at the cell's left edge.
	CursorShapeBar
	// CursorShapeHollow draws the cell's outline only.
	CursorShapeHollow
)

// CursorState describes the cursor for one frame.
type CursorState struct {
	Column, Row int
	Shape       CursorShape
	Color       Color
	Visible     bool
}

// Selection is one highlighted horizontal run of cells.
type Selection struct {
	Row      int
	StartCol int
	// EndCol is exclusive.
	EndCol int
	Color  Color
}

// RenderPayload is one frame's complete input: the grid snapshot plus
// cursor and selection state. The renderer reads it during Render and
// never retains it.
type RenderPayload struct {
	// Columns, Rows are the grid dimensions.
	Columns, Rows int
	// Cells is row-major, length Columns*Rows.
	Cells []Cell
	// Background is the default background color, also the render
	// pass clear color.
	Background Color
	Cursor     CursorState
	Selections []Selection
	// DirtyFirstRow and DirtyRowCount bound the changed region for the
	// compute expansion path. A zero DirtyRowCount means everything.
	DirtyFirstRow int
	DirtyRowCount int
}

// Validate checks the payload's grid description.
func (p *RenderPayload) Validate() error {
	if p.Columns <= 0 || p.Rows <= 0 {
		return fmt.Errorf("%w: grid %dx%d", ErrInvalidPayload, p.Columns, p.Rows)
	}
	if len(p.Cells) != p.Columns*p.Rows {
		return fmt.Errorf("%w: %d cells for %dx%d grid",
			ErrInvalidPayload, len(p.Cells), p.Columns, p.Rows)
	}
	return nil
}
