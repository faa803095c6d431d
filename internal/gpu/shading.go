package gpu

import "fmt"

// ShadingKind tags a QuadInstance with the pipeline state that renders
// it. The set is closed: pipelineClass switches over every kind and
// panics on anything else, so an unhandled kind fails loudly at
// submission time instead of silently drawing with the wrong blend mode.
//
// Kinds fit in 4 bits; QuadInstance packs them into the spare high bits
// of the atlas texcoord word.
type ShadingKind uint8

const (
	// ShadingBackground fills the cell background. Opaque, no blending.
	ShadingBackground ShadingKind = iota
	// ShadingTextGrayscale draws an alpha-blended grayscale glyph.
	ShadingTextGrayscale
	// ShadingTextClearType draws a glyph with per-channel subpixel
	// coverage. Without dual-source blending the pipeline approximates
	// it with premultiplied alpha; see PipelineSet.SubpixelDegraded.
	ShadingTextClearType
	// ShadingTextBuiltinGlyph draws a procedurally generated box-drawing
	// glyph. Shares the grayscale text pipeline.
	ShadingTextBuiltinGlyph
	// ShadingDottedLine draws a dotted underline/decoration segment.
	ShadingDottedLine
	// ShadingDashedLine draws a dashed decoration segment.
	ShadingDashedLine
	// ShadingCurlyLine draws a curly (error-squiggle) decoration segment.
	ShadingCurlyLine
	// ShadingSolidLine draws a solid underline/strikethrough segment.
	ShadingSolidLine
	// ShadingCursor draws the cursor shape.
	ShadingCursor
	// ShadingFilledRect fills an arbitrary rectangle (selection overlay).
	ShadingFilledRect

	shadingKindCount
)

// Valid reports whether k names a defined shading kind.
func (k ShadingKind) Valid() bool { return k < shadingKindCount }

// String returns the kind name.
func (k ShadingKind) String() string {
	switch k {
	case ShadingBackground:
		return "Background"
	case ShadingTextGrayscale:
		return "TextGrayscale"
	case ShadingTextClearType:
		return "TextClearType"
	case ShadingTextBuiltinGlyph:
		return "TextBuiltinGlyph"
	case ShadingDottedLine:
		return "DottedLine"
	case ShadingDashedLine:
		return "DashedLine"
	case ShadingCurlyLine:
		return "CurlyLine"
	case ShadingSolidLine:
		return "SolidLine"
	case ShadingCursor:
		return "Cursor"
	case ShadingFilledRect:
		return "FilledRect"
	default:
		return fmt.Sprintf("ShadingKind(%d)", uint8(k))
	}
}

// pipelineClass selects which pipeline state object renders a batch.
// Several kinds share a class: their per-instance data differs but the
// shaders and blend state are identical.
type pipelineClass uint8

const (
	pipelineBackground pipelineClass = iota
	pipelineTextGrayscale
	pipelineTextClearType
	pipelineLine
	pipelineCursor

	pipelineClassCount
)

// String returns the pipeline class name.
func (c pipelineClass) String() string {
	switch c {
	case pipelineBackground:
		return "background"
	case pipelineTextGrayscale:
		return "text_grayscale"
	case pipelineTextClearType:
		return "text_cleartype"
	case pipelineLine:
		return "line"
	case pipelineCursor:
		return "cursor"
	default:
		return fmt.Sprintf("pipelineClass(%d)", uint8(c))
	}
}

// pipelineClassFor maps a shading kind onto its pipeline state. The
// switch is exhaustive over the closed kind set.
func pipelineClassFor(k ShadingKind) pipelineClass {
	switch k {
	case ShadingBackground, ShadingFilledRect:
		return pipelineBackground
	case ShadingTextGrayscale, ShadingTextBuiltinGlyph, ShadingSolidLine:
		return pipelineTextGrayscale
	case ShadingTextClearType:
		return pipelineTextClearType
	case ShadingDottedLine, ShadingDashedLine, ShadingCurlyLine:
		return pipelineLine
	case ShadingCursor:
		return pipelineCursor
	default:
		panic(fmt.Sprintf("gpu: unhandled shading kind %s", k))
	}
}
