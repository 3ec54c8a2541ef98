package violation

import (
	"fmt"
	"math"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/samber/lo"
)

const (
	DefaultFPS   = 30
	DefaultLabel = "nsfw"

	// PlaceholderConfidence is attached to every parsed detection. The backend's
	// segment format carries no per-segment confidence.
	PlaceholderConfidence = 0.9
)

// Parse converts a raw backend result into violations, one per segment, in
// input order. Missing fields fall back to defaults; Parse never fails.
func Parse(raw *models.RawResult) []models.Violation {
	if raw == nil || len(raw.Segments) == 0 {
		return []models.Violation{}
	}

	fps := raw.FPS
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		fps = DefaultFPS
	}

	return lo.Map(raw.Segments, func(seg models.Segment, _ int) models.Violation {
		label := seg.Label
		if label == "" {
			label = DefaultLabel
		}
		bbox := seg.BBox
		if bbox == nil {
			bbox = []float64{}
		}

		start := float64(seg.FrameStart) / fps
		return models.Violation{
			StartTime: start,
			EndTime:   float64(seg.FrameEnd) / fps,
			Type:      label,
			Frames: []models.ViolationFrame{{
				Time:       start,
				FrameIndex: seg.FrameStart,
				Detections: []models.Detection{{
					Class:      label,
					Confidence: PlaceholderConfidence,
					BBox:       bbox,
				}},
			}},
		}
	})
}

// Clone deep-copies violations so readers never share slices with the writer.
func Clone(vs []models.Violation) []models.Violation {
	if vs == nil {
		return []models.Violation{}
	}
	return lo.Map(vs, func(v models.Violation, _ int) models.Violation {
		v.Frames = lo.Map(v.Frames, func(f models.ViolationFrame, _ int) models.ViolationFrame {
			f.Detections = lo.Map(f.Detections, func(d models.Detection, _ int) models.Detection {
				d.BBox = append([]float64{}, d.BBox...)
				return d
			})
			return f
		})
		return v
	})
}

// FormatTime renders seconds as m:ss.cc.
func FormatTime(seconds float64) string {
	m := int(math.Floor(seconds / 60))
	s := int(math.Floor(math.Mod(seconds, 60)))
	cs := int(math.Floor(math.Mod(seconds, 1) * 100))
	return fmt.Sprintf("%d:%02d.%02d", m, s, cs)
}

// Summary is the one-line label used for timeline tooltips.
func Summary(v models.Violation) string {
	return fmt.Sprintf("%s: %.1fs - %.1fs", v.Type, v.StartTime, v.EndTime)
}

// Confidence returns the first detection's confidence, or 0 when there is none.
func Confidence(v models.Violation) float64 {
	if len(v.Frames) == 0 || len(v.Frames[0].Detections) == 0 {
		return 0
	}
	return v.Frames[0].Detections[0].Confidence
}
