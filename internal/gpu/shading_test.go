package gpu

import "testing"

func TestShadingKindValid(t *testing.T) {
	for k := ShadingKind(0); k < shadingKindCount; k++ {
		if !k.Valid() {
			t.Errorf("%s.Valid() = false", k)
		}
	}
	if ShadingKind(shadingKindCount).Valid() {
		t.Error("out-of-range kind reported valid")
	}
}

func TestShadingKindStringsUnique(t *testing.T) {
	seen := map[string]ShadingKind{}
	for k := ShadingKind(0); k < shadingKindCount; k++ {
		s := k.String()
		if prev, dup := seen[s]; dup {
			t.Errorf("kinds %d and %d share name %q", prev, k, s)
		}
		seen[s] = k
	}
}

func TestPipelineClassFor(t *testing.T) {
	tests := []struct {
		kind ShadingKind
		want pipelineClass
	}{
		{ShadingBackground, pipelineBackground},
		{ShadingFilledRect, pipelineBackground},
		{ShadingTextGrayscale, pipelineTextGrayscale},
		{ShadingTextBuiltinGlyph, pipelineTextGrayscale},
		{ShadingSolidLine, pipelineTextGrayscale},
		{ShadingTextClearType, pipelineTextClearType},
		{ShadingDottedLine, pipelineLine},
		{ShadingDashedLine, pipelineLine},
		{ShadingCurlyLine, pipelineLine},
		{ShadingCursor, pipelineCursor},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := pipelineClassFor(tt.kind); got != tt.want {
				t.Errorf("pipelineClassFor(%s) = %s, want %s", tt.kind, got, tt.want)
			}
		})
	}

	// The mapping is total over the closed set.
	for k := ShadingKind(0); k < shadingKindCount; k++ {
		c := pipelineClassFor(k)
		if c >= pipelineClassCount {
			t.Errorf("pipelineClassFor(%s) = %d, out of range", k, c)
		}
	}
}

func TestPipelineClassForPanicsOnUnknown(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("no panic for undefined shading kind")
		}
	}()
	pipelineClassFor(ShadingKind(200))
}
