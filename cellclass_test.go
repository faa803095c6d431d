package termgpu

import "testing"

func TestClassifyRune(t *testing.T) {
	tests := []struct {
		name string
		r    rune
		want cellClass
	}{
		{"nul", 0, cellClass{blank: true}},
		{"space", ' ', cellClass{blank: true}},
		{"nbsp", ' ', cellClass{blank: true}},
		{"ascii letter", 'a', cellClass{}},
		{"box drawing", '─', cellClass{builtin: true}},
		{"block element", '▀', cellClass{builtin: true}},
		{"cjk ideograph", '漢', cellClass{wide: true}},
		{"fullwidth latin", 'Ａ', cellClass{wide: true}},
		{"halfwidth katakana", 'ｱ', cellClass{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyRune(tt.r); got != tt.want {
				t.Errorf("classifyRune(%q) = %+v, want %+v", tt.r, got, tt.want)
			}
		})
	}
}

func TestClassifierCaches(t *testing.T) {
	c := newClassifier()

	first := c.classify('漢')
	second := c.classify('漢')
	if first != second {
		t.Fatalf("cached classification differs: %+v vs %+v", first, second)
	}

	stats := c.cache.Stats()
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
}
