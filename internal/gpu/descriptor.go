package gpu

import (
	"errors"
	"fmt"
	"sync"
)

// Descriptor arena errors.
var (
	// ErrArenaFrozen is returned when assigning a slot after Freeze.
	ErrArenaFrozen = errors.New("gpu: descriptor arena is frozen")

	// ErrArenaFull is returned when the arena capacity is exhausted.
	ErrArenaFull = errors.New("gpu: descriptor arena is full")

	// ErrSlotAssigned is returned when a slot is assigned twice.
	ErrSlotAssigned = errors.New("gpu: descriptor slot already assigned")

	// ErrSlotUnassigned is returned when looking up a slot that was
	// never assigned.
	ErrSlotUnassigned = errors.New("gpu: descriptor slot not assigned")
)

// DefaultDescriptorCapacity is the shader-visible heap size.
const DefaultDescriptorCapacity = 128

// DescriptorSlot names a binding location in the shader-visible heap.
// Slots replace magic numeric offsets: code refers to bindings by name,
// and the arena hands out the indices once at init.
type DescriptorSlot uint8

const (
	// SlotVSConstants is the vertex-stage constant buffer view.
	SlotVSConstants DescriptorSlot = iota
	// SlotPSConstants is the fragment-stage constant buffer view.
	SlotPSConstants
	// SlotGlyphAtlasSampled is the atlas sampled-texture view.
	SlotGlyphAtlasSampled
	// SlotAtlasSampler is the atlas sampler.
	SlotAtlasSampler
	// SlotGridConstants is the grid generation uniform block.
	SlotGridConstants
	// SlotGridCells is the compact per-cell storage buffer read by the
	// grid generation dispatch.
	SlotGridCells
	// SlotInstanceBuffer is the expanded instance storage buffer written
	// by the grid generation dispatch.
	SlotInstanceBuffer
	// SlotGlyphConstants is the glyph rasterization uniform block.
	SlotGlyphConstants
	// SlotGlyphStaging is the staged bitmap storage buffer read by the
	// glyph rasterization dispatch.
	SlotGlyphStaging
	// SlotGlyphAtlasStorage is the atlas storage view written by the
	// glyph rasterization dispatch.
	SlotGlyphAtlasStorage

	descriptorSlotCount
)

// String returns the slot name.
func (s DescriptorSlot) String() string {
	switch s {
	case SlotVSConstants:
		return "VSConstants"
	case SlotPSConstants:
		return "PSConstants"
	case SlotGlyphAtlasSampled:
		return "GlyphAtlasSampled"
	case SlotAtlasSampler:
		return "AtlasSampler"
	case SlotGridConstants:
		return "GridConstants"
	case SlotGridCells:
		return "GridCells"
	case SlotInstanceBuffer:
		return "InstanceBuffer"
	case SlotGlyphConstants:
		return "GlyphConstants"
	case SlotGlyphStaging:
		return "GlyphStaging"
	case SlotGlyphAtlasStorage:
		return "GlyphAtlasStorage"
	default:
		return fmt.Sprintf("DescriptorSlot(%d)", uint8(s))
	}
}

// DescriptorArena assigns heap indices to named slots once at init and
// never grows at runtime. After Freeze, the layout is immutable for the
// lifetime of the backend; a lookup of an unassigned slot is an error,
// not a silent zero.
type DescriptorArena struct {
	mu       sync.Mutex
	capacity int
	indices  map[DescriptorSlot]int
	next     int
	frozen   bool
}

// NewDescriptorArena creates an arena with the given heap capacity.
// A capacity <= 0 selects DefaultDescriptorCapacity.
func NewDescriptorArena(capacity int) *DescriptorArena {
	if capacity <= 0 {
		capacity = DefaultDescriptorCapacity
	}
	return &DescriptorArena{
		capacity: capacity,
		indices:  make(map[DescriptorSlot]int, descriptorSlotCount),
	}
}

// Assign reserves the next heap index for slot. Assignments happen only
// during backend init, before Freeze.
func (a *DescriptorArena) Assign(slot DescriptorSlot) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.frozen {
		return 0, fmt.Errorf("%w: assigning %s", ErrArenaFrozen, slot)
	}
	if _, ok := a.indices[slot]; ok {
		return 0, fmt.Errorf("%w: %s", ErrSlotAssigned, slot)
	}
	if a.next >= a.capacity {
		return 0, fmt.Errorf("%w: capacity %d", ErrArenaFull, a.capacity)
	}

	idx := a.next
	a.next++
	a.indices[slot] = idx
	return idx, nil
}

// Freeze seals the layout. Further Assign calls fail.
func (a *DescriptorArena) Freeze() {
	a.mu.Lock()
	a.frozen = true
	a.mu.Unlock()
}

// AssignAll builds a frozen arena whose slots occupy indices 0..n-1 in
// argument order. Bind group layouts take their binding numbers from
// the result, so the argument order is the binding order.
func AssignAll(capacity int, slots ...DescriptorSlot) (*DescriptorArena, error) {
	a := NewDescriptorArena(capacity)
	for _, s := range slots {
		if _, err := a.Assign(s); err != nil {
			return nil, err
		}
	}
	a.Freeze()
	return a, nil
}

// Index returns the heap index assigned to slot.
func (a *DescriptorArena) Index(slot DescriptorSlot) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	idx, ok := a.indices[slot]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSlotUnassigned, slot)
	}
	return idx, nil
}

// Binding returns the slot's index as a shader binding number.
func (a *DescriptorArena) Binding(slot DescriptorSlot) (uint32, error) {
	idx, err := a.Index(slot)
	return uint32(idx), err
}

// Assigned returns the number of assigned slots.
func (a *DescriptorArena) Assigned() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.indices)
}

// Capacity returns the heap capacity.
func (a *DescriptorArena) Capacity() int { return a.capacity }
