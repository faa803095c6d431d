package termgpu

import (
	"errors"
	"testing"
)

func TestPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload RenderPayload
		wantErr bool
	}{
		{
			name: "valid",
			payload: RenderPayload{
				Columns: 4, Rows: 3,
				Cells: make([]Cell, 12),
			},
		},
		{
			name:    "zero columns",
			payload: RenderPayload{Columns: 0, Rows: 3},
			wantErr: true,
		},
		{
			name:    "negative rows",
			payload: RenderPayload{Columns: 4, Rows: -1},
			wantErr: true,
		},
		{
			name: "cell count mismatch",
			payload: RenderPayload{
				Columns: 4, Rows: 3,
				Cells: make([]Cell, 11),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidPayload) {
					t.Fatalf("Validate() = %v, want ErrInvalidPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestColorConstructors(t *testing.T) {
	if got := RGB(0x12, 0x34, 0x56); got != 0xFF563412 {
		t.Errorf("RGB = %#08x, want 0xFF563412", uint32(got))
	}
	if got := RGBA(0x12, 0x34, 0x56, 0x78); got != 0x78563412 {
		t.Errorf("RGBA = %#08x, want 0x78563412", uint32(got))
	}
}
