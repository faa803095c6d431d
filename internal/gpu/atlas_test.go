package gpu

import (
	"errors"
	"fmt"
	"testing"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
)

// fakeRasterizer produces deterministic bitmaps sized from the key.
type fakeRasterizer struct {
	missing map[rune]bool
	big     map[rune]bool
	calls   int
}

func (f *fakeRasterizer) Rasterize(key glyph.Key) (*glyph.Bitmap, error) {
	f.calls++
	if f.missing[key.Rune] {
		return nil, glyph.ErrGlyphMissing
	}
	w, h := int(key.Size)/2+1, int(key.Size)
	if f.big[key.Rune] {
		w, h = 4000, 4000
	}
	if key.Rune == ' ' {
		return &glyph.Bitmap{Advance: w}, nil
	}
	return &glyph.Bitmap{
		Pixels:   make([]byte, w*h),
		Width:    w,
		Height:   h,
		BearingY: h,
		Advance:  w,
	}, nil
}

// fakeUploader counts uploads and records regions for overlap checks.
type fakeUploader struct {
	uploads int
	clears  int
	regions []AtlasRegion
	err     error
}

func (f *fakeUploader) Upload(region AtlasRegion, bm *glyph.Bitmap) error {
	if f.err != nil {
		return f.err
	}
	f.uploads++
	f.regions = append(f.regions, region)
	return nil
}

func (f *fakeUploader) Clear() error {
	f.clears++
	f.regions = f.regions[:0]
	return nil
}

func newTestAtlas(t *testing.T, r *fakeRasterizer, u *fakeUploader, w, h int) *GlyphAtlas {
	t.Helper()
	a, err := NewGlyphAtlas(r, u, GlyphAtlasConfig{Width: w, Height: h})
	if err != nil {
		t.Fatalf("NewGlyphAtlas: %v", err)
	}
	return a
}

func key(r rune) glyph.Key {
	return glyph.Key{Font: 1, Rune: r, Size: 16, AA: glyph.AAGrayscale}
}

func TestAtlasHitIsIdempotent(t *testing.T) {
	r := &fakeRasterizer{}
	u := &fakeUploader{}
	a := newTestAtlas(t, r, u, 256, 256)

	first, err := a.GetOrInsert(key('A'))
	if err != nil {
		t.Fatalf("GetOrInsert: %v", err)
	}
	if !first.Occupied || !first.Region.IsValid() {
		t.Fatalf("miss entry = %+v, want occupied with valid region", first)
	}
	if u.uploads != 1 {
		t.Fatalf("uploads after miss = %d, want 1", u.uploads)
	}

	// Repeated lookups return the identical entry with zero GPU work.
	for i := 0; i < 10; i++ {
		got, err := a.GetOrInsert(key('A'))
		if err != nil {
			t.Fatalf("hit #%d: %v", i, err)
		}
		if got != first {
			t.Fatalf("hit #%d = %+v, want %+v", i, got, first)
		}
	}
	if u.uploads != 1 {
		t.Fatalf("uploads after hits = %d, want 1", u.uploads)
	}
	if r.calls != 1 {
		t.Fatalf("rasterizer calls = %d, want 1", r.calls)
	}

	stats := a.Stats()
	if stats.Hits != 10 || stats.Misses != 1 {
		t.Fatalf("stats = %+v, want 10 hits 1 miss", stats)
	}
}

func TestAtlasDistinctKeysDistinctRegions(t *testing.T) {
	r := &fakeRasterizer{}
	u := &fakeUploader{}
	a := newTestAtlas(t, r, u, 512, 512)

	for c := 'A'; c <= 'Z'; c++ {
		if _, err := a.GetOrInsert(key(c)); err != nil {
			t.Fatalf("GetOrInsert(%c): %v", c, err)
		}
	}

	// Packed regions never overlap within a generation.
	for i := 0; i < len(u.regions); i++ {
		for j := i + 1; j < len(u.regions); j++ {
			if u.regions[i].Overlaps(u.regions[j]) {
				t.Fatalf("regions overlap: %s and %s", u.regions[i], u.regions[j])
			}
		}
	}
}

func TestAtlasSentinelSingleUpload(t *testing.T) {
	r := &fakeRasterizer{missing: map[rune]bool{'': true, '': true, '': true}}
	u := &fakeUploader{}
	a := newTestAtlas(t, r, u, 256, 256)

	var entries []AtlasEntry
	for _, c := range []rune{'', '', ''} {
		e, err := a.GetOrInsert(key(c))
		if err != nil {
			t.Fatalf("GetOrInsert(%q): %v", c, err)
		}
		entries = append(entries, e)
	}

	// N distinct unrenderable glyphs share one replacement upload.
	if u.uploads != 1 {
		t.Fatalf("uploads = %d, want 1", u.uploads)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Region != entries[0].Region {
			t.Fatalf("sentinel regions differ: %+v vs %+v", entries[i], entries[0])
		}
	}

	// A second round is all hits.
	for _, c := range []rune{'', '', ''} {
		if _, err := a.GetOrInsert(key(c)); err != nil {
			t.Fatalf("hit(%q): %v", c, err)
		}
	}
	if u.uploads != 1 {
		t.Fatalf("uploads after hits = %d, want 1", u.uploads)
	}
	if got := a.Stats().Unrenderable; got != 3 {
		t.Fatalf("Unrenderable = %d, want 3", got)
	}
}

func TestAtlasOversizedGlyphUsesSentinel(t *testing.T) {
	r := &fakeRasterizer{big: map[rune]bool{'W': true}}
	u := &fakeUploader{}
	a := newTestAtlas(t, r, u, 256, 256)

	e, err := a.GetOrInsert(key('W'))
	if err != nil {
		t.Fatalf("GetOrInsert: %v", err)
	}
	if !e.Occupied {
		t.Fatal("oversized glyph produced unoccupied entry")
	}
	// No reset was attempted: an oversized glyph can never fit.
	if got := a.Stats().Resets; got != 0 {
		t.Fatalf("Resets = %d, want 0", got)
	}
}

func TestAtlasResetOnFull(t *testing.T) {
	r := &fakeRasterizer{}
	u := &fakeUploader{}
	// Small atlas: 16-pixel-tall glyphs exhaust 64x64 quickly.
	a := newTestAtlas(t, r, u, MinAtlasSize, MinAtlasSize)

	gen0 := a.Generation()
	inserted := 0
	for c := rune(0x4E00); ; c++ {
		if _, err := a.GetOrInsert(glyph.Key{Font: 1, Rune: c, Size: 60, AA: glyph.AAGrayscale}); err != nil {
			t.Fatalf("GetOrInsert(%#x): %v", c, err)
		}
		inserted++
		if a.Generation() != gen0 {
			break
		}
		if inserted > 10000 {
			t.Fatal("atlas never filled")
		}
	}

	stats := a.Stats()
	if stats.Resets != 1 {
		t.Fatalf("Resets = %d, want 1", stats.Resets)
	}
	if u.clears != 1 {
		t.Fatalf("uploader clears = %d, want 1", u.clears)
	}
	if a.Generation() != gen0+1 {
		t.Fatalf("generation = %d, want %d", a.Generation(), gen0+1)
	}
	// The entry that triggered the reset survived it.
	if stats.Entries != 1 {
		t.Fatalf("entries after reset = %d, want 1", stats.Entries)
	}
}

func TestAtlasResetDropsEntries(t *testing.T) {
	r := &fakeRasterizer{}
	u := &fakeUploader{}
	a := newTestAtlas(t, r, u, 256, 256)

	if _, err := a.GetOrInsert(key('A')); err != nil {
		t.Fatalf("GetOrInsert: %v", err)
	}
	if err := a.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	// Previously cached keys are fresh misses under the new generation.
	e, err := a.GetOrInsert(key('A'))
	if err != nil {
		t.Fatalf("GetOrInsert after reset: %v", err)
	}
	if e.Generation != 1 {
		t.Fatalf("entry generation = %d, want 1", e.Generation)
	}
	if got := a.Stats().Misses; got != 2 {
		t.Fatalf("misses = %d, want 2", got)
	}
	if u.uploads != 2 {
		t.Fatalf("uploads = %d, want 2", u.uploads)
	}
}

func TestAtlasWhitespaceNoUpload(t *testing.T) {
	r := &fakeRasterizer{}
	u := &fakeUploader{}
	a := newTestAtlas(t, r, u, 256, 256)

	e, err := a.GetOrInsert(key(' '))
	if err != nil {
		t.Fatalf("GetOrInsert: %v", err)
	}
	if e.Region.IsValid() {
		t.Fatalf("whitespace got region %s", e.Region)
	}
	if !e.Occupied {
		t.Fatal("whitespace entry not cached")
	}
	if u.uploads != 0 {
		t.Fatalf("uploads = %d, want 0", u.uploads)
	}

	// Cached: no second rasterization.
	if _, err := a.GetOrInsert(key(' ')); err != nil {
		t.Fatalf("hit: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("rasterizer calls = %d, want 1", r.calls)
	}
}

func TestAtlasUploadFailure(t *testing.T) {
	r := &fakeRasterizer{}
	u := &fakeUploader{err: errors.New("device lost")}
	a := newTestAtlas(t, r, u, 256, 256)

	if _, err := a.GetOrInsert(key('A')); err == nil {
		t.Fatal("GetOrInsert with failing uploader succeeded")
	}
}

func TestAtlasClosed(t *testing.T) {
	r := &fakeRasterizer{}
	u := &fakeUploader{}
	a := newTestAtlas(t, r, u, 256, 256)

	a.Close()
	if _, err := a.GetOrInsert(key('A')); !errors.Is(err, ErrAtlasClosed) {
		t.Fatalf("GetOrInsert after Close = %v, want ErrAtlasClosed", err)
	}
	if err := a.Reset(); !errors.Is(err, ErrAtlasClosed) {
		t.Fatalf("Reset after Close = %v, want ErrAtlasClosed", err)
	}
}

func TestAtlasPrewarm(t *testing.T) {
	r := &fakeRasterizer{}
	u := &fakeUploader{}
	a := newTestAtlas(t, r, u, 512, 512)

	keys := make([]glyph.Key, 0, 95)
	for c := rune(0x20); c < 0x7F; c++ {
		keys = append(keys, key(c))
	}
	a.Prewarm(keys)

	stats := a.Stats()
	if stats.Entries != len(keys) {
		t.Fatalf("entries = %d, want %d", stats.Entries, len(keys))
	}
	// Every later lookup of a prewarmed key is a pure hit.
	before := u.uploads
	for _, k := range keys {
		if _, err := a.GetOrInsert(k); err != nil {
			t.Fatalf("hit %s: %v", k, err)
		}
	}
	if u.uploads != before {
		t.Fatalf("uploads grew from %d to %d on hits", before, u.uploads)
	}
}

func TestShadingForKey(t *testing.T) {
	tests := []struct {
		name string
		key  glyph.Key
		want ShadingKind
	}{
		{"grayscale", glyph.Key{Rune: 'a', Size: 12, AA: glyph.AAGrayscale}, ShadingTextGrayscale},
		{"subpixel", glyph.Key{Rune: 'a', Size: 12, AA: glyph.AASubpixel}, ShadingTextClearType},
		{"builtin wins over AA", glyph.Key{Rune: 0x2500, Size: 12, AA: glyph.AASubpixel}, ShadingTextBuiltinGlyph},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := shadingForKey(tt.key); got != tt.want {
				t.Errorf("shadingForKey = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestShelfAllocator(t *testing.T) {
	t.Run("fills rows left to right", func(t *testing.T) {
		a := newShelfAllocator(100, 100)
		r1 := a.allocate(30, 10)
		r2 := a.allocate(30, 10)
		if !r1.IsValid() || !r2.IsValid() {
			t.Fatalf("allocations failed: %s %s", r1, r2)
		}
		if r1.Y != r2.Y {
			t.Errorf("same-height rects split shelves: %s %s", r1, r2)
		}
		if r2.X <= r1.X {
			t.Errorf("second rect not to the right: %s %s", r1, r2)
		}
	})

	t.Run("opens new shelf when width runs out", func(t *testing.T) {
		a := newShelfAllocator(64, 100)
		r1 := a.allocate(60, 10)
		r2 := a.allocate(60, 10)
		if r2.Y <= r1.Y {
			t.Errorf("expected new shelf below: %s %s", r1, r2)
		}
	})

	t.Run("rejects oversized", func(t *testing.T) {
		a := newShelfAllocator(64, 64)
		if r := a.allocate(100, 10); r.IsValid() {
			t.Errorf("oversized width allocated: %s", r)
		}
		if r := a.allocate(10, 100); r.IsValid() {
			t.Errorf("oversized height allocated: %s", r)
		}
		if r := a.allocate(0, 10); r.IsValid() {
			t.Errorf("zero width allocated: %s", r)
		}
	})

	t.Run("reset reclaims everything", func(t *testing.T) {
		a := newShelfAllocator(64, 64)
		for a.allocate(20, 20).IsValid() {
		}
		a.reset()
		if r := a.allocate(60, 60); !r.IsValid() {
			t.Error("allocation failed after reset")
		}
	})

	t.Run("utilization", func(t *testing.T) {
		a := newShelfAllocator(100, 100)
		a.allocate(50, 50)
		if got := a.utilization(); got != 0.25 {
			t.Errorf("utilization = %v, want 0.25", got)
		}
	})
}

func TestAtlasRegionOverlaps(t *testing.T) {
	base := AtlasRegion{X: 10, Y: 10, Width: 10, Height: 10}
	tests := []struct {
		other AtlasRegion
		want  bool
	}{
		{AtlasRegion{X: 15, Y: 15, Width: 10, Height: 10}, true},
		{AtlasRegion{X: 20, Y: 10, Width: 5, Height: 5}, false}, // edge-adjacent
		{AtlasRegion{X: 0, Y: 0, Width: 10, Height: 10}, false},
		{AtlasRegion{X: 12, Y: 12, Width: 2, Height: 2}, true}, // contained
	}
	for i, tt := range tests {
		t.Run(fmt.Sprintf("case%d", i), func(t *testing.T) {
			if got := base.Overlaps(tt.other); got != tt.want {
				t.Errorf("Overlaps(%s) = %v, want %v", tt.other, got, tt.want)
			}
			if got := tt.other.Overlaps(base); got != tt.want {
				t.Errorf("reverse Overlaps = %v, want %v", got, tt.want)
			}
		})
	}
}
