package termgpu

import (
	"golang.org/x/text/width"

	"github.com/Oichkatzelesfrettschen/terminal-sub003/cache"
	"github.com/Oichkatzelesfrettschen/terminal-sub003/glyph"
)

// cellClass is a rune's precomputed rendering classification.
type cellClass struct {
	// wide reports whether the rune occupies two grid cells.
	wide bool
	// builtin reports whether the renderer draws the rune from its own
	// box-drawing tables instead of the font.
	builtin bool
	// blank reports whether the rune produces no glyph at all.
	blank bool
}

// classifier caches per-rune cell classifications. Classification is
// pure, so a shared cache across renderers would be safe, but each
// renderer keeps its own to avoid cross-instance contention.
type classifier struct {
	cache *cache.Sharded[rune, cellClass]
}

func newClassifier() *classifier {
	return &classifier{
		cache: cache.NewSharded[rune, cellClass](cache.DefaultCapacity, cache.RuneHasher),
	}
}

// classify returns the rendering classification for r, consulting the
// cache first.
func (c *classifier) classify(r rune) cellClass {
	return c.cache.GetOrCreate(r, func() cellClass {
		return classifyRune(r)
	})
}

func classifyRune(r rune) cellClass {
	if r == 0 || r == ' ' || r == ' ' {
		return cellClass{blank: true}
	}
	if glyph.IsBuiltin(r) {
		// Box drawing and block elements scale to the exact cell size,
		// so they never count as wide even in ambiguous-width locales.
		return cellClass{builtin: true}
	}
	switch width.LookupRune(r).Kind() {
	case width.EastAsianWide, width.EastAsianFullwidth:
		return cellClass{wide: true}
	}
	return cellClass{}
}
