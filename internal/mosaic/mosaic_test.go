package mosaic

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
)

func filled(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func gradient(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x * 7), G: uint8(y * 11), B: uint8((x + y) * 3), A: 255})
		}
	}
	return img
}

func TestRenderOutsideTimeWindow(t *testing.T) {
	n := Node{BBox: []float64{0, 0, 10, 10}, BlockSize: 4, TimeOffset: 1, Duration: 2, VideoWidth: 10, VideoHeight: 10}

	for _, ts := range []float64{0, 0.999, 3, 10} {
		img := gradient(10, 10)
		before := append([]uint8{}, img.Pix...)
		if n.Render(img, ts) {
			t.Errorf("t=%v: expected no-op", ts)
		}
		if !bytes.Equal(before, img.Pix) {
			t.Errorf("t=%v: surface was modified", ts)
		}
	}

	img := gradient(10, 10)
	if !n.Render(img, 1) {
		t.Errorf("expected render at window start")
	}
}

func TestRenderNoOpCases(t *testing.T) {
	tests := []struct {
		name string
		node Node
	}{
		{"short bbox", Node{BBox: []float64{0, 0, 5}, Duration: 1, VideoWidth: 10, VideoHeight: 10}},
		{"empty bbox", Node{BBox: []float64{}, Duration: 1, VideoWidth: 10, VideoHeight: 10}},
		{"outside surface", Node{BBox: []float64{20, 20, 30, 30}, Duration: 1, VideoWidth: 10, VideoHeight: 10}},
		{"inverted bbox", Node{BBox: []float64{8, 8, 2, 2}, Duration: 1, VideoWidth: 10, VideoHeight: 10}},
		{"zero video size", Node{BBox: []float64{0, 0, 5, 5}, Duration: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := gradient(10, 10)
			before := append([]uint8{}, img.Pix...)
			if tt.node.Render(img, 0.5) {
				t.Errorf("expected no-op")
			}
			if !bytes.Equal(before, img.Pix) {
				t.Errorf("surface was modified")
			}
		})
	}
}

func TestRenderUniformRegionUnchanged(t *testing.T) {
	c := color.RGBA{R: 200, G: 100, B: 50, A: 255}
	img := filled(16, 16, c)
	before := append([]uint8{}, img.Pix...)

	n := Node{BBox: []float64{0, 0, 16, 16}, BlockSize: 4, Duration: 1, VideoWidth: 16, VideoHeight: 16}
	if !n.Render(img, 0) {
		t.Fatal("expected render")
	}
	if !bytes.Equal(before, img.Pix) {
		t.Errorf("uniform region changed")
	}
}

func TestRenderPartialEdgeBlocks(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	reds := [2][3]uint8{{0, 10, 100}, {20, 30, 101}}
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			img.SetRGBA(x, y, color.RGBA{R: reds[y][x], A: 255})
		}
	}

	n := Node{BBox: []float64{0, 0, 3, 2}, BlockSize: 2, Duration: 1, VideoWidth: 3, VideoHeight: 2}
	n.Render(img, 0)

	want := [2][3]uint8{{15, 15, 101}, {15, 15, 101}}
	for y := 0; y < 2; y++ {
		for x := 0; x < 3; x++ {
			if got := img.RGBAAt(x, y); got.R != want[y][x] || got.A != 255 {
				t.Errorf("pixel (%d,%d) = %+v, want R=%d", x, y, got, want[y][x])
			}
		}
	}
}

func TestRenderCoversWholeRegion(t *testing.T) {
	img := gradient(23, 17)
	n := Node{BBox: []float64{0, 0, 23, 17}, BlockSize: 5, Duration: 1, VideoWidth: 23, VideoHeight: 17}
	n.Render(img, 0)

	// every pixel must equal the top-left pixel of its block
	for y := 0; y < 17; y++ {
		for x := 0; x < 23; x++ {
			anchor := img.RGBAAt(x/5*5, y/5*5)
			if got := img.RGBAAt(x, y); got != anchor {
				t.Fatalf("pixel (%d,%d) = %+v, block color %+v", x, y, got, anchor)
			}
		}
	}
}

func TestRenderLeavesOutsidePixels(t *testing.T) {
	img := gradient(20, 20)
	before := gradient(20, 20)

	n := Node{BBox: []float64{5, 5, 10, 10}, BlockSize: 2, Duration: 1, VideoWidth: 20, VideoHeight: 20}
	n.Render(img, 0)

	for y := 0; y < 20; y++ {
		for x := 0; x < 20; x++ {
			if image.Pt(x, y).In(image.Rect(5, 5, 10, 10)) {
				continue
			}
			if img.RGBAAt(x, y) != before.RGBAAt(x, y) {
				t.Fatalf("pixel (%d,%d) outside the region changed", x, y)
			}
		}
	}
}

func TestRenderMinimumBlockSize(t *testing.T) {
	for _, bs := range []int{0, 1, -3} {
		img := gradient(4, 4)
		n := Node{BBox: []float64{0, 0, 4, 4}, BlockSize: bs, Duration: 1, VideoWidth: 4, VideoHeight: 4}
		n.Render(img, 0)

		if img.RGBAAt(0, 0) != img.RGBAAt(1, 1) {
			t.Errorf("block size %d: expected 2x2 blocks", bs)
		}
		if img.RGBAAt(1, 1) == img.RGBAAt(2, 2) {
			t.Errorf("block size %d: blocks larger than 2", bs)
		}
	}
}

func TestRegionScaling(t *testing.T) {
	n := Node{BBox: []float64{10, 10, 31, 31}, VideoWidth: 100, VideoHeight: 100}
	if got, want := n.Region(50, 50), image.Rect(5, 5, 16, 16); got != want {
		t.Errorf("Region = %v, want %v", got, want)
	}

	n = Node{BBox: []float64{-10, -10, 500, 500}, VideoWidth: 100, VideoHeight: 100}
	if got, want := n.Region(50, 40), image.Rect(0, 0, 50, 40); got != want {
		t.Errorf("clamped Region = %v, want %v", got, want)
	}
}

func TestRenderOffsetSurface(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 14, 14))
	img.SetRGBA(10, 10, color.RGBA{R: 40, A: 255})
	img.SetRGBA(11, 10, color.RGBA{R: 80, A: 255})

	n := Node{BBox: []float64{0, 0, 2, 2}, BlockSize: 2, Duration: 1, VideoWidth: 4, VideoHeight: 4}
	if !n.Render(img, 0) {
		t.Fatal("expected render")
	}
	if got := img.RGBAAt(11, 11); got.R != 30 || got.A != 128 {
		t.Errorf("unexpected block color %+v", got)
	}
	if got := img.RGBAAt(12, 12); got.A != 0 {
		t.Errorf("pixel outside region changed: %+v", got)
	}
}

func TestLayerFromViolations(t *testing.T) {
	vs := []models.Violation{
		{StartTime: 1, EndTime: 3, Frames: []models.ViolationFrame{{Detections: []models.Detection{{BBox: []float64{0, 0, 4, 4}}}}}},
		{StartTime: 2, EndTime: 4, Frames: []models.ViolationFrame{{Detections: []models.Detection{{BBox: []float64{}}}}}},
		{StartTime: 5, EndTime: 6},
	}

	layer := NewLayer(vs, 2, 8, 8)
	if len(layer.Nodes) != 1 {
		t.Fatalf("expected 1 node, got %d", len(layer.Nodes))
	}
	if n := layer.Nodes[0]; n.TimeOffset != 1 || n.Duration != 2 || n.BlockSize != 2 {
		t.Errorf("unexpected node: %+v", n)
	}

	img := gradient(8, 8)
	if got := layer.Render(img, 2); got != 1 {
		t.Errorf("expected 1 region at t=2, got %d", got)
	}
	if got := layer.Render(img, 3); got != 0 {
		t.Errorf("expected no region at t=3, got %d", got)
	}
}
