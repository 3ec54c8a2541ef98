package timeline

import (
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/detection"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/violation"
	"github.com/samber/lo"
)

const (
	// BasePixelsPerSecond is the timeline scale at zoom 1.
	BasePixelsPerSecond = 50
	MinMarkerWidth      = 2
)

type Marker struct {
	Left  float64 `json:"left"`
	Width float64 `json:"width"`
	Type  string  `json:"type"`
	Title string  `json:"title"`
}

func PixelsPerSecond(zoom float64) float64 {
	return BasePixelsPerSecond * zoom
}

// Project maps each violation to a horizontal pixel span. Overlapping
// violations produce overlapping markers.
func Project(violations []models.Violation, pixelsPerSecond float64) []Marker {
	return lo.Map(violations, func(v models.Violation, _ int) Marker {
		return Marker{
			Left:  v.StartTime * pixelsPerSecond,
			Width: max(MinMarkerWidth, (v.EndTime-v.StartTime)*pixelsPerSecond),
			Type:  v.Type,
			Title: violation.Summary(v),
		}
	})
}

// Markers returns nothing unless the snapshot holds a completed result.
func Markers(snap detection.Snapshot, zoom float64) []Marker {
	if snap.Status != models.StatusDone || len(snap.Violations) == 0 {
		return nil
	}
	return Project(snap.Violations, PixelsPerSecond(zoom))
}
