package gpu

import (
	"encoding/binary"
	"math"
)

// Constant buffer sizes in bytes. Uniform blocks are padded to 16-byte
// multiples to satisfy std140-style layout rules on every backend.
const (
	VSConstantsSize    = 16
	PSConstantsSize    = 48
	GridConstantsSize  = 32
	GlyphConstantsSize = 32
)

// Compute workgroup dimensions. Dispatch counts are ceil-divided by
// these; the kernels bound-check the overhang.
const (
	GridWorkgroupDim  = 16 // grid generation: 16x16 threads per group
	GlyphWorkgroupDim = 8  // glyph rasterization: 8x8 threads per group
)

// VSConstants feeds the shared vertex stage: it maps cell-space
// instance coordinates to clip space.
type VSConstants struct {
	TargetWidth  float32 // render target width in pixels
	TargetHeight float32
	CellWidth    float32 // cell dimensions in pixels
	CellHeight   float32
}

// Pack serializes the block in little-endian layout.
func (c VSConstants) Pack(dst []byte) {
	_ = dst[VSConstantsSize-1]
	putF32(dst[0:], c.TargetWidth)
	putF32(dst[4:], c.TargetHeight)
	putF32(dst[8:], c.CellWidth)
	putF32(dst[12:], c.CellHeight)
}

// PSConstants feeds every fragment stage.
type PSConstants struct {
	BackgroundColor [4]float32 // premultiplied default background

	CellCountX uint32 // grid columns
	CellCountY uint32 // grid rows

	EnhancedContrast float32 // text contrast boost, 0 disables
	UnderlineWidth   float32 // decoration stroke width in pixels

	DashedLineLength    float32 // dash period in pixels
	CurlyLineHalfExtent float32 // curly underline amplitude in pixels
	AtlasGeneration     uint32  // bumped on atlas reset
	_pad                uint32
}

// Pack serializes the block in little-endian layout.
func (c PSConstants) Pack(dst []byte) {
	_ = dst[PSConstantsSize-1]
	for i, v := range c.BackgroundColor {
		putF32(dst[i*4:], v)
	}
	binary.LittleEndian.PutUint32(dst[16:], c.CellCountX)
	binary.LittleEndian.PutUint32(dst[20:], c.CellCountY)
	putF32(dst[24:], c.EnhancedContrast)
	putF32(dst[28:], c.UnderlineWidth)
	putF32(dst[32:], c.DashedLineLength)
	putF32(dst[36:], c.CurlyLineHalfExtent)
	binary.LittleEndian.PutUint32(dst[40:], c.AtlasGeneration)
	binary.LittleEndian.PutUint32(dst[44:], 0)
}

// GridConstants parameterizes the cell-grid generation kernel.
type GridConstants struct {
	CellCountX    uint32
	CellCountY    uint32
	CellWidth     uint32 // pixels
	CellHeight    uint32
	FirstDirtyRow uint32 // inclusive
	DirtyRowCount uint32 // 0 means the whole grid
}

// Pack serializes the block in little-endian layout.
func (c GridConstants) Pack(dst []byte) {
	_ = dst[GridConstantsSize-1]
	binary.LittleEndian.PutUint32(dst[0:], c.CellCountX)
	binary.LittleEndian.PutUint32(dst[4:], c.CellCountY)
	binary.LittleEndian.PutUint32(dst[8:], c.CellWidth)
	binary.LittleEndian.PutUint32(dst[12:], c.CellHeight)
	binary.LittleEndian.PutUint32(dst[16:], c.FirstDirtyRow)
	binary.LittleEndian.PutUint32(dst[20:], c.DirtyRowCount)
	binary.LittleEndian.PutUint32(dst[24:], 0)
	binary.LittleEndian.PutUint32(dst[28:], 0)
}

// GlyphConstants parameterizes the GPU glyph post-processing kernel,
// which resamples oversized glyph bitmaps into their atlas slots.
type GlyphConstants struct {
	AtlasWidth  uint32
	AtlasHeight uint32
	DestX       uint32 // destination rectangle inside the atlas
	DestY       uint32
	DestWidth   uint32
	DestHeight  uint32
	Subpixel    uint32 // 1 for three-channel coverage
}

// Pack serializes the block in little-endian layout.
func (c GlyphConstants) Pack(dst []byte) {
	_ = dst[GlyphConstantsSize-1]
	binary.LittleEndian.PutUint32(dst[0:], c.AtlasWidth)
	binary.LittleEndian.PutUint32(dst[4:], c.AtlasHeight)
	binary.LittleEndian.PutUint32(dst[8:], c.DestX)
	binary.LittleEndian.PutUint32(dst[12:], c.DestY)
	binary.LittleEndian.PutUint32(dst[16:], c.DestWidth)
	binary.LittleEndian.PutUint32(dst[20:], c.DestHeight)
	binary.LittleEndian.PutUint32(dst[24:], c.Subpixel)
	binary.LittleEndian.PutUint32(dst[28:], 0)
}

// dispatchGroups ceil-divides a thread count by a workgroup dimension.
func dispatchGroups(threads, groupDim int) uint32 {
	if threads <= 0 {
		return 0
	}
	return uint32((threads + groupDim - 1) / groupDim)
}

func putF32(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}
