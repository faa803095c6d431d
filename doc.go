// Package termgpu renders a terminal cell grid on the GPU.
//
// The renderer consumes per-frame snapshots of the grid, one Cell per
// column and row plus cursor and selection state, and draws them with
// a small, fixed set of instanced pipelines: cell backgrounds, glyphs
// from a cached atlas, decoration lines and the cursor. Glyphs are
// rasterized on the CPU once, packed into the atlas texture and reused
// until the atlas fills, at which point it resets wholesale and
// repopulates on demand.
//
// A Renderer owns one GPU session over a device supplied through a
// DeviceProvider; see the backend/wgpu package for the default
// provider. Frames are fully rebuilt every call: there is no retained
// scene, which keeps damage tracking trivial and the steady-state cost
// of a full 80x24 screen at two draw calls.
package termgpu
