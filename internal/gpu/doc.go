// Package gpu implements the GPU rendering core for the terminal cell
// renderer: frame and queue orchestration with explicit fence values,
// the packed glyph atlas, instanced batch rendering, the compute
// dispatch path, and state-tracked resource allocation, all on top of
// gogpu/wgpu.
//
// The package splits into pure bookkeeping types (timelines, frame ring,
// batcher, atlas packing, descriptor arena) that are fully testable
// without a device, and thin hal-backed types that carry the same
// state through real GPU submissions.
package gpu
