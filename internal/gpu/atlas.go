package gpu

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
)

// Atlas errors.
var (
	// ErrAtlasFull signals that the allocator has no room for a
	// requested rectangle. GlyphAtlas handles it internally with a full
	// reset; it escapes only when a single glyph exceeds atlas bounds.
	ErrAtlasFull = errors.New("gpu: glyph atlas is full")

	// ErrAtlasClosed is returned when operating on a closed atlas.
	ErrAtlasClosed = errors.New("gpu: glyph atlas is closed")

	// ErrNilRasterizer is returned when constructing an atlas without a
	// rasterization service.
	ErrNilRasterizer = errors.New("gpu: rasterizer is nil")

	// ErrNilUploader is returned when constructing an atlas without an
	// upload sink.
	ErrNilUploader = errors.New("gpu: uploader is nil")
)

// Atlas sizing defaults.
const (
	// DefaultAtlasSize is the default atlas dimension in pixels.
	DefaultAtlasSize = 2048

	// MinAtlasSize is the smallest supported atlas dimension.
	MinAtlasSize = 256

	// atlasPadding is the gap between packed rectangles, preventing
	// sampler bleed between neighboring glyphs.
	atlasPadding = 1
)

// AtlasRegion is a rectangle inside the atlas texture.
type AtlasRegion struct {
	X, Y          int
	Width, Height int
}

// IsValid reports whether the region has positive dimensions.
func (r AtlasRegion) IsValid() bool { return r.Width > 0 && r.Height > 0 }

// Overlaps reports whether two regions intersect.
func (r AtlasRegion) Overlaps(o AtlasRegion) bool {
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// String returns a compact description of the region.
func (r AtlasRegion) String() string {
	return fmt.Sprintf("Region(%d,%d %dx%d)", r.X, r.Y, r.Width, r.Height)
}

// shelf is one horizontal row of the shelf-packing allocator.
type shelf struct {
	y      int // top edge
	height int // row height, set by the tallest resident
	nextX  int // next free x position
}

// shelfAllocator packs rectangles into horizontal shelves: each new
// rectangle goes onto the current shelf if the remaining width and the
// shelf height admit it, otherwise a new shelf opens below. When
// vertical space runs out the allocator reports failure and the owner
// performs a full reset; there is deliberately no per-rectangle
// eviction.
type shelfAllocator struct {
	width, height int
	shelves       []shelf

	allocs   int
	usedArea int
}

func newShelfAllocator(width, height int) *shelfAllocator {
	return &shelfAllocator{
		width:   width,
		height:  height,
		shelves: make([]shelf, 0, 16),
	}
}

// allocate finds room for a w x h rectangle, returning an invalid
// region when nothing fits.
func (a *shelfAllocator) allocate(w, h int) AtlasRegion {
	if w <= 0 || h <= 0 {
		return AtlasRegion{}
	}

	pw, ph := w+atlasPadding, h+atlasPadding
	if pw > a.width || ph > a.height {
		return AtlasRegion{}
	}

	// Existing shelves first.
	for i := range a.shelves {
		s := &a.shelves[i]
		if s.nextX+pw > a.width {
			continue
		}
		// A shelf can only grow taller while empty.
		if ph > s.height && s.nextX > 0 {
			continue
		}
		region := AtlasRegion{X: s.nextX, Y: s.y, Width: w, Height: h}
		s.nextX += pw
		if ph > s.height {
			s.height = ph
		}
		a.allocs++
		a.usedArea += w * h
		return region
	}

	// New shelf below the last one.
	y := 0
	if n := len(a.shelves); n > 0 {
		last := a.shelves[n-1]
		y = last.y + last.height
	}
	if y+ph > a.height {
		return AtlasRegion{}
	}
	a.shelves = append(a.shelves, shelf{y: y, height: ph, nextX: pw})
	a.allocs++
	a.usedArea += w * h
	return AtlasRegion{X: 0, Y: y, Width: w, Height: h}
}

// reset drops every shelf, making the full area available again.
func (a *shelfAllocator) reset() {
	a.shelves = a.shelves[:0]
	a.allocs = 0
	a.usedArea = 0
}

// utilization returns the used fraction of the total area.
func (a *shelfAllocator) utilization() float64 {
	total := a.width * a.height
	if total == 0 {
		return 0
	}
	return float64(a.usedArea) / float64(total)
}

// AtlasEntry is the cached placement of one glyph. Entries are scoped to
// an atlas generation: a reset bumps the generation and drops every
// entry atomically, so a stale entry can never alias a new glyph's
// pixels.
type AtlasEntry struct {
	// Region is the glyph's packed location. Zero-size for glyphs with
	// no coverage (whitespace).
	Region AtlasRegion

	// BearingX, BearingY offset the glyph bitmap from the cell origin
	// (X right, Y up from the baseline).
	BearingX, BearingY int16

	// Shading is the pipeline kind that renders this glyph.
	Shading ShadingKind

	// Generation is the atlas generation the entry belongs to.
	Generation uint32

	// Occupied distinguishes a real entry from the zero value.
	Occupied bool
}

// AtlasUploader is the sink for rasterized bitmaps. The GPU-backed
// implementation copies into the atlas texture; tests count calls.
type AtlasUploader interface {
	// Upload copies a bitmap into the given region.
	Upload(region AtlasRegion, bm *glyph.Bitmap) error
	// Clear wipes the whole atlas after a generation bump.
	Clear() error
}

// AtlasStats is a snapshot of atlas cache counters.
type AtlasStats struct {
	Hits         uint64
	Misses       uint64
	Uploads      uint64
	Resets       uint64
	Unrenderable uint64
	Generation   uint32
	Entries      int
	Utilization  float64
}

// sentinelKey caches the shared replacement bitmap for unrenderable
// glyphs. N distinct missing glyphs produce one upload, not N.
var sentinelKey = glyph.Key{Font: ^uint32(0), Rune: 0xFFFD, Size: 1}

// GlyphAtlas maps glyph identities to packed atlas locations. Hits are
// O(1) map lookups with no GPU work; misses rasterize through the
// service, pack via the shelf allocator, and upload exactly once. When
// packing fails the atlas performs a full reset (clear, bump
// generation, drop all entries), trading a rare cheap rebuild for
// eviction-policy simplicity.
//
// GlyphAtlas is single-writer by construction (touched only during
// frame population); the mutex guards the diagnostics path.
type GlyphAtlas struct {
	mu sync.Mutex

	rasterizer glyph.Rasterizer
	uploader   AtlasUploader
	allocator  *shelfAllocator
	entries    map[glyph.Key]AtlasEntry

	width, height int
	generation    atomic.Uint32
	closed        bool

	hits         atomic.Uint64
	misses       atomic.Uint64
	uploads      atomic.Uint64
	resets       atomic.Uint64
	unrenderable atomic.Uint64
}

// GlyphAtlasConfig holds construction options for a GlyphAtlas.
type GlyphAtlasConfig struct {
	// Width, Height are the atlas texture dimensions. Values below
	// MinAtlasSize select DefaultAtlasSize.
	Width, Height int
}

// NewGlyphAtlas creates an atlas over the given rasterization service
// and upload sink.
func NewGlyphAtlas(r glyph.Rasterizer, u AtlasUploader, config GlyphAtlasConfig) (*GlyphAtlas, error) {
	if r == nil {
		return nil, ErrNilRasterizer
	}
	if u == nil {
		return nil, ErrNilUploader
	}

	w, h := config.Width, config.Height
	if w < MinAtlasSize {
		w = DefaultAtlasSize
	}
	if h < MinAtlasSize {
		h = DefaultAtlasSize
	}
	if w > MaxAtlasDim {
		w = MaxAtlasDim
	}
	if h > MaxAtlasDim {
		h = MaxAtlasDim
	}

	return &GlyphAtlas{
		rasterizer: r,
		uploader:   u,
		allocator:  newShelfAllocator(w, h),
		entries:    make(map[glyph.Key]AtlasEntry, 256),
		width:      w,
		height:     h,
	}, nil
}

// GetOrInsert returns the atlas placement for key, rasterizing and
// uploading on miss. Repeated calls with an unchanged key and
// generation return a bit-identical entry with zero additional uploads.
func (a *GlyphAtlas) GetOrInsert(key glyph.Key) (AtlasEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return AtlasEntry{}, ErrAtlasClosed
	}

	if e, ok := a.entries[key]; ok {
		a.hits.Add(1)
		return e, nil
	}
	a.misses.Add(1)

	bm, err := a.rasterizer.Rasterize(key)
	if err != nil {
		if errors.Is(err, glyph.ErrGlyphMissing) {
			return a.sentinelEntryLocked(key)
		}
		return AtlasEntry{}, fmt.Errorf("rasterize %s: %w", key, err)
	}

	return a.insertLocked(key, bm, shadingForKey(key))
}

// insertLocked packs and uploads a bitmap, retrying once after a full
// reset when packing fails. Caller holds a.mu.
func (a *GlyphAtlas) insertLocked(key glyph.Key, bm *glyph.Bitmap, kind ShadingKind) (AtlasEntry, error) {
	if bm.Empty() {
		// Whitespace: cache a zero-region entry, no GPU work.
		e := AtlasEntry{
			Shading:    kind,
			Generation: a.generation.Load(),
			Occupied:   true,
		}
		a.entries[key] = e
		return e, nil
	}

	// A glyph that cannot fit even an empty atlas is unrenderable.
	if bm.Width+atlasPadding > a.width || bm.Height+atlasPadding > a.height {
		return a.sentinelEntryLocked(key)
	}

	region := a.allocator.allocate(bm.Width, bm.Height)
	if !region.IsValid() {
		if err := a.resetLocked(); err != nil {
			return AtlasEntry{}, err
		}
		region = a.allocator.allocate(bm.Width, bm.Height)
		if !region.IsValid() {
			return AtlasEntry{}, fmt.Errorf("%w: %dx%d after reset", ErrAtlasFull, bm.Width, bm.Height)
		}
	}

	if err := a.uploader.Upload(region, bm); err != nil {
		return AtlasEntry{}, fmt.Errorf("upload %s: %w", key, err)
	}
	a.uploads.Add(1)

	e := AtlasEntry{
		Region:     region,
		BearingX:   int16(bm.BearingX),
		BearingY:   int16(bm.BearingY),
		Shading:    kind,
		Generation: a.generation.Load(),
		Occupied:   true,
	}
	a.entries[key] = e
	return e, nil
}

// sentinelEntryLocked returns the shared replacement entry, creating
// and uploading it on first use. The requesting key is cached pointing
// at the sentinel's pixels so the miss is not repeated. Caller holds a.mu.
func (a *GlyphAtlas) sentinelEntryLocked(key glyph.Key) (AtlasEntry, error) {
	a.unrenderable.Add(1)

	if e, ok := a.entries[sentinelKey]; ok {
		a.entries[key] = e
		return e, nil
	}

	bm := replacementBitmap(int(key.Size))
	e, err := a.insertLocked(sentinelKey, bm, ShadingTextGrayscale)
	if err != nil {
		return AtlasEntry{}, fmt.Errorf("sentinel: %w", err)
	}
	a.entries[key] = e
	return e, nil
}

// Reset clears the atlas, bumps the generation, and drops every entry.
// Previously cached keys become fresh misses on the next lookup.
func (a *GlyphAtlas) Reset() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrAtlasClosed
	}
	return a.resetLocked()
}

func (a *GlyphAtlas) resetLocked() error {
	a.allocator.reset()
	clear(a.entries)
	a.generation.Add(1)
	a.resets.Add(1)
	if err := a.uploader.Clear(); err != nil {
		return fmt.Errorf("clear atlas: %w", err)
	}
	return nil
}

// Prewarm inserts a set of keys ahead of first use, typically the
// printable ASCII range, so a steady-state frame starts with a hot
// cache. Individual failures are skipped: prewarming is best-effort.
func (a *GlyphAtlas) Prewarm(keys []glyph.Key) {
	for _, k := range keys {
		_, _ = a.GetOrInsert(k)
	}
}

// Generation returns the current atlas generation.
func (a *GlyphAtlas) Generation() uint32 { return a.generation.Load() }

// Size returns the atlas dimensions in pixels.
func (a *GlyphAtlas) Size() (int, int) { return a.width, a.height }

// Stats returns a snapshot of the cache counters.
func (a *GlyphAtlas) Stats() AtlasStats {
	a.mu.Lock()
	entries := len(a.entries)
	util := a.allocator.utilization()
	a.mu.Unlock()

	return AtlasStats{
		Hits:         a.hits.Load(),
		Misses:       a.misses.Load(),
		Uploads:      a.uploads.Load(),
		Resets:       a.resets.Load(),
		Unrenderable: a.unrenderable.Load(),
		Generation:   a.generation.Load(),
		Entries:      entries,
		Utilization:  util,
	}
}

// Close marks the atlas unusable. The uploader's resources are owned by
// the session and released separately.
func (a *GlyphAtlas) Close() {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()
}

// shadingForKey derives the pipeline kind from a glyph identity.
func shadingForKey(key glyph.Key) ShadingKind {
	switch {
	case glyph.IsBuiltin(key.Rune):
		return ShadingTextBuiltinGlyph
	case key.AA == glyph.AASubpixel:
		return ShadingTextClearType
	default:
		return ShadingTextGrayscale
	}
}

// replacementBitmap draws the hollow-box substitute for unrenderable
// glyphs: a one-pixel border inset from the cell edges.
func replacementBitmap(size int) *glyph.Bitmap {
	if size < 4 {
		size = 4
	}
	w := (size + 1) / 2
	h := size
	bm := &glyph.Bitmap{
		Pixels:   make([]byte, w*h),
		Width:    w,
		Height:   h,
		BearingY: h,
		Advance:  w,
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			border := x == 0 || y == 0 || x == w-1 || y == h-1
			if border {
				bm.Pixels[y*w+x] = 0xFF
			}
		}
	}
	return bm
}
