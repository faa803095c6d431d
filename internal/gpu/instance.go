package gpu

import (
	"encoding/binary"
	"math"
)

// QuadInstance layout constants. The 16-byte layout is shared verbatim
// with the shader's instance input declarations; any change here must
// change shaders/cell.wgsl in the same commit.
const (
	// QuadInstanceSize is the packed byte size of one instance.
	QuadInstanceSize = 16

	// texcoordBits is the number of low bits of each texcoord word that
	// carry the atlas coordinate. The high bits carry the shading kind
	// (x word) and the rendition scale (y word).
	texcoordBits = 12
	texcoordMask = (1 << texcoordBits) - 1

	// MaxAtlasDim is the largest atlas dimension addressable by a packed
	// texcoord.
	MaxAtlasDim = 1 << texcoordBits
)

// QuadInstance is one per-cell draw unit. Instances are built fresh
// every frame and packed into the instance buffer with Pack; they are
// never persisted across frames.
//
// Packed layout (little-endian, 16 bytes):
//
//	offset 0  i16x2  position        (pixels, top-left)
//	offset 4  u16x2  size            (pixels)
//	offset 8  u16    texcoord.x low 12 bits | shading kind << 12
//	offset 10 u16    texcoord.y low 12 bits | (scaleX-1) << 12 | (scaleY-1) << 14
//	offset 12 u32    color           (premultiplied RGBA8)
type QuadInstance struct {
	// PosX, PosY are the top-left corner in target pixels.
	PosX, PosY int16
	// SizeW, SizeH are the quad dimensions in pixels.
	SizeW, SizeH uint16
	// TexX, TexY locate the glyph in the atlas. Must be < MaxAtlasDim.
	TexX, TexY uint16
	// Shading selects the pipeline state. Must fit in 4 bits.
	Shading ShadingKind
	// ScaleX, ScaleY are the rendition scale (1..4) for double-width and
	// double-height lines.
	ScaleX, ScaleY uint8
	// Color is the premultiplied RGBA8 color, R in the low byte.
	Color uint32
}

// Pack serializes the instance into dst, which must hold at least
// QuadInstanceSize bytes.
func (q QuadInstance) Pack(dst []byte) {
	binary.LittleEndian.PutUint16(dst[0:2], uint16(q.PosX))
	binary.LittleEndian.PutUint16(dst[2:4], uint16(q.PosY))
	binary.LittleEndian.PutUint16(dst[4:6], q.SizeW)
	binary.LittleEndian.PutUint16(dst[6:8], q.SizeH)

	tx := (q.TexX & texcoordMask) | uint16(q.Shading)<<texcoordBits
	ty := q.TexY & texcoordMask
	if q.ScaleX > 0 {
		ty |= uint16(q.ScaleX-1) << 12
	}
	if q.ScaleY > 0 {
		ty |= uint16(q.ScaleY-1) << 14
	}
	binary.LittleEndian.PutUint16(dst[8:10], tx)
	binary.LittleEndian.PutUint16(dst[10:12], ty)

	binary.LittleEndian.PutUint32(dst[12:16], q.Color)
}

// packInstances serializes a run of instances into a contiguous byte
// slice sized for direct instance-buffer upload.
func packInstances(instances []QuadInstance) []byte {
	out := make([]byte, len(instances)*QuadInstanceSize)
	for i, q := range instances {
		q.Pack(out[i*QuadInstanceSize:])
	}
	return out
}

// PackRGBA packs non-premultiplied 8-bit color channels into the
// premultiplied RGBA8 word carried by QuadInstance.Color.
func PackRGBA(r, g, b, a uint8) uint32 {
	if a != 0xFF {
		r = uint8(uint16(r) * uint16(a) / 0xFF)
		g = uint8(uint16(g) * uint16(a) / 0xFF)
		b = uint8(uint16(b) * uint16(a) / 0xFF)
	}
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

// Static quad geometry. Four corner vertices and two triangles shared by
// every instance; per-instance data does the rest.
var (
	quadVertices = [8]float32{
		0, 0,
		1, 0,
		1, 1,
		0, 1,
	}
	quadIndices = [6]uint16{0, 1, 2, 2, 3, 0}
)

// quadVertexBytes serializes the corner vertices for vertex-buffer upload.
func quadVertexBytes() []byte {
	out := make([]byte, len(quadVertices)*4)
	for i, v := range quadVertices {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

// quadIndexBytes serializes the triangle indices for index-buffer upload.
func quadIndexBytes() []byte {
	out := make([]byte, len(quadIndices)*2)
	for i, v := range quadIndices {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}
