package mosaic

import (
	"image"
	"math"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/samber/lo"
)

const (
	MinBlockSize     = 2
	DefaultBlockSize = 10
)

// Node pixelates one bounding box while the playback time is inside
// [TimeOffset, TimeOffset+Duration).
type Node struct {
	// BBox is [x1, y1, x2, y2] in source video pixels.
	BBox        []float64
	BlockSize   int
	TimeOffset  float64
	Duration    float64
	VideoWidth  int
	VideoHeight int
}

// Active reports whether t falls inside the node's time window.
func (n Node) Active(t float64) bool {
	return t >= n.TimeOffset && t < n.TimeOffset+n.Duration
}

// Region maps the bbox onto a surface of the given size. The lower bound is
// floored and the upper bound ceiled, then both are clamped to the surface.
func (n Node) Region(width, height int) image.Rectangle {
	if len(n.BBox) < 4 || n.VideoWidth <= 0 || n.VideoHeight <= 0 {
		return image.Rectangle{}
	}

	scaleX := float64(width) / float64(n.VideoWidth)
	scaleY := float64(height) / float64(n.VideoHeight)

	x1 := max(0, int(math.Floor(n.BBox[0]*scaleX)))
	y1 := max(0, int(math.Floor(n.BBox[1]*scaleY)))
	x2 := min(width, int(math.Ceil(n.BBox[2]*scaleX)))
	y2 := min(height, int(math.Ceil(n.BBox[3]*scaleY)))

	if x2-x1 <= 0 || y2-y1 <= 0 {
		return image.Rectangle{}
	}
	return image.Rect(x1, y1, x2, y2)
}

// Render pixelates the node's region of dst in place at time t and reports
// whether anything was written. Each block is replaced by the rounded mean of
// its own pixels, so partial edge blocks average over their real pixel count.
func (n Node) Render(dst *image.RGBA, t float64) bool {
	if dst == nil || !n.Active(t) {
		return false
	}

	b := dst.Bounds()
	r := n.Region(b.Dx(), b.Dy())
	if r.Empty() {
		return false
	}
	r = r.Add(b.Min)

	w, h := r.Dx(), r.Dy()
	bs := max(MinBlockSize, n.BlockSize)

	// Снимок региона
	data := make([]uint8, w*h*4)
	for y := 0; y < h; y++ {
		off := dst.PixOffset(r.Min.X, r.Min.Y+y)
		copy(data[y*w*4:(y+1)*w*4], dst.Pix[off:off+w*4])
	}

	for by := 0; by < h; by += bs {
		for bx := 0; bx < w; bx += bs {
			pixelateBlock(data, w, bx, by, min(bs, w-bx), min(bs, h-by))
		}
	}

	for y := 0; y < h; y++ {
		off := dst.PixOffset(r.Min.X, r.Min.Y+y)
		copy(dst.Pix[off:off+w*4], data[y*w*4:(y+1)*w*4])
	}
	return true
}

func pixelateBlock(data []uint8, stride, bx, by, bw, bh int) {
	var sum [4]int
	for dy := 0; dy < bh; dy++ {
		row := ((by+dy)*stride + bx) * 4
		for i := row; i < row+bw*4; i += 4 {
			sum[0] += int(data[i])
			sum[1] += int(data[i+1])
			sum[2] += int(data[i+2])
			sum[3] += int(data[i+3])
		}
	}

	count := bw * bh
	var avg [4]uint8
	for c := range sum {
		avg[c] = roundDiv(sum[c], count)
	}

	for dy := 0; dy < bh; dy++ {
		row := ((by+dy)*stride + bx) * 4
		for i := row; i < row+bw*4; i += 4 {
			data[i], data[i+1], data[i+2], data[i+3] = avg[0], avg[1], avg[2], avg[3]
		}
	}
}

// roundDiv returns sum/count rounded half up, as Math.round does for
// non-negative values.
func roundDiv(sum, count int) uint8 {
	return uint8((2*sum + count) / (2 * count))
}

// Layer is the set of mosaic nodes for one detection result.
type Layer struct {
	Nodes []Node
}

// NewLayer builds one node per detection of each violation's first frame,
// covering the violation's whole interval.
func NewLayer(violations []models.Violation, blockSize, videoWidth, videoHeight int) *Layer {
	nodes := lo.FlatMap(violations, func(v models.Violation, _ int) []Node {
		if len(v.Frames) == 0 {
			return nil
		}
		dets := lo.Filter(v.Frames[0].Detections, func(d models.Detection, _ int) bool {
			return len(d.BBox) >= 4
		})
		return lo.Map(dets, func(d models.Detection, _ int) Node {
			return Node{
				BBox:        append([]float64{}, d.BBox...),
				BlockSize:   blockSize,
				TimeOffset:  v.StartTime,
				Duration:    v.EndTime - v.StartTime,
				VideoWidth:  videoWidth,
				VideoHeight: videoHeight,
			}
		})
	})
	return &Layer{Nodes: nodes}
}

// Render applies every active node to dst and returns how many regions were
// pixelated.
func (l *Layer) Render(dst *image.RGBA, t float64) int {
	if l == nil {
		return 0
	}
	applied := 0
	for _, n := range l.Nodes {
		if n.Render(dst, t) {
			applied++
		}
	}
	return applied
}
