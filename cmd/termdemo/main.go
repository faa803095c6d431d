//go:build !nogpu

// Command termdemo renders a synthetic terminal grid offscreen and
// prints renderer diagnostics. It exercises the full pipeline without a
// window: device bootstrap, atlas warmup, population, and submission.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	termgpu "github.com/Oichkatzelesfrettschen/terminal-sub003"
	"github.com/Oichkatzelesfrettschen/terminal-sub003/backend/wgpu"
)

const (
	demoCellWidth  = 9
	demoCellHeight = 20
)

func main() {
	var (
		fontPath = flag.String("font", "", "path to a TTF/OTF font (required)")
		columns  = flag.Int("columns", 80, "grid columns")
		rows     = flag.Int("rows", 24, "grid rows")
		frames   = flag.Int("frames", 60, "frames to render")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *fontPath == "" {
		log.Fatal("termdemo: -font is required")
	}
	fontData, err := os.ReadFile(*fontPath)
	if err != nil {
		log.Fatalf("termdemo: read font: %v", err)
	}

	if *verbose {
		l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		termgpu.SetLogger(l)
		wgpu.SetLogger(l)
	}

	dev, err := wgpu.Open(wgpu.DeviceOptions{})
	if err != nil {
		log.Fatalf("termdemo: open device: %v", err)
	}
	defer func() { _ = dev.Close() }()
	info := dev.Info()
	log.Printf("termdemo: %s", info.String())

	renderer, err := termgpu.New(
		termgpu.WithDeviceProvider(dev),
		termgpu.WithFontData(fontData),
		termgpu.WithTargetFormat(gputypes.TextureFormatRGBA8Unorm),
		termgpu.WithCellSize(demoCellWidth, demoCellHeight),
	)
	if err != nil {
		log.Fatalf("termdemo: create renderer: %v", err)
	}
	defer renderer.ReleaseResources()
	renderer.Prewarm()

	payload := demoPayload(*columns, *rows)
	target, cleanup, err := offscreenTarget(dev, payload)
	if err != nil {
		log.Fatalf("termdemo: create target: %v", err)
	}
	defer cleanup()

	for i := 0; i < *frames; i++ {
		payload.Cursor.Column = i % *columns
		if err := renderer.Render(target, payload); err != nil {
			log.Fatalf("termdemo: frame %d: %v", i, err)
		}
	}

	d := renderer.Diagnostics()
	log.Printf("termdemo: %d frames, %d draw calls last frame, %d instances",
		d.FramesCompleted, d.LastDrawCalls, d.LastInstances)
	log.Printf("termdemo: atlas hits=%d misses=%d uploads=%d resets=%d",
		d.Atlas.Hits, d.Atlas.Misses, d.Atlas.Uploads, d.Atlas.Resets)
}

// demoPayload fills a grid with shell-ish sample text, a selection and
// a visible block cursor.
func demoPayload(columns, rows int) *termgpu.RenderPayload {
	p := &termgpu.RenderPayload{
		Columns:    columns,
		Rows:       rows,
		Cells:      make([]termgpu.Cell, columns*rows),
		Background: termgpu.RGB(0x1E, 0x1E, 0x2E),
		Cursor: termgpu.CursorState{
			Row:     rows - 1,
			Shape:   termgpu.CursorShapeBlock,
			Color:   termgpu.RGB(0xF5, 0xE0, 0xDC),
			Visible: true,
		},
		Selections: []termgpu.Selection{
			{Row: 2, StartCol: 0, EndCol: columns / 2, Color: termgpu.RGBA(0x58, 0x5B, 0x70, 0x80)},
		},
	}

	lines := []string{
		"$ termdemo --columns 80 --rows 24",
		"rendering cell grid " + string(rune('0'+rows%10)) + " rows",
		"box drawing: ┌─┬─┐ │ ├─┼─┤ └─┴─┘",
		"wide: 漢字テスト",
		"styles follow",
	}
	fg := termgpu.RGB(0xCD, 0xD6, 0xF4)
	for row, line := range lines {
		if row >= rows {
			break
		}
		col := 0
		for _, r := range line {
			if col >= columns {
				break
			}
			p.Cells[row*columns+col] = termgpu.Cell{Rune: r, Foreground: fg}
			col++
			if r > 0x2FFF { // crude wide check for demo text
				col++
			}
		}
	}
	if rows > 5 {
		styled := []struct {
			text  string
			flags termgpu.CellFlags
		}{
			{"bold", termgpu.FlagBold},
			{"underline", termgpu.FlagUnderline},
			{"curly", termgpu.FlagCurlyUnderline},
			{"strike", termgpu.FlagStrikethrough},
		}
		col := 0
		for _, s := range styled {
			for _, r := range s.text {
				if col >= columns {
					break
				}
				p.Cells[5*columns+col] = termgpu.Cell{Rune: r, Foreground: fg, Flags: s.flags}
				col++
			}
			col += 2
		}
	}
	return p
}

// offscreenTarget creates an RGBA8 render-attachment texture sized for
// the payload's grid.
func offscreenTarget(dev *wgpu.Device, p *termgpu.RenderPayload) (termgpu.RenderTarget, func(), error) {
	device, ok := dev.HalDevice().(hal.Device)
	if !ok {
		return termgpu.RenderTarget{}, nil, wgpu.ErrClosed
	}

	width := p.Columns * demoCellWidth
	height := p.Rows * demoCellHeight
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: "termdemo_target",
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return termgpu.RenderTarget{}, nil, err
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "termdemo_target_view",
		Format:        gputypes.TextureFormatRGBA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return termgpu.RenderTarget{}, nil, err
	}

	cleanup := func() {
		device.DestroyTextureView(view)
		device.DestroyTexture(tex)
	}
	return termgpu.RenderTarget{View: view, Width: width, Height: height}, cleanup, nil
}
