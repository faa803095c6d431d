//go:build !nogpu

package gpu

import _ "embed"

// WGSL shader sources, embedded at build time.

//go:embed shaders/cell.wgsl
var cellShaderWGSL string

//go:embed shaders/grid_generate.wgsl
var gridGenerateShaderWGSL string

//go:embed shaders/glyph_rasterize.wgsl
var glyphRasterizeShaderWGSL string
