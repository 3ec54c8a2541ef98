// Package redact applies the mosaic layer of a finished detection to a
// sequence of extracted video frames.
package redact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/mosaic"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/s3"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

const (
	// DefaultFrameRate matches the rate frames are extracted at.
	DefaultFrameRate = 3
	DefaultQuality   = 85
)

var ErrNoFrames = errors.New("no frames found")

type FrameSource interface {
	ListFrames(ctx context.Context, prefix string) ([]string, error)
	GetFrame(ctx context.Context, key string) ([]byte, error)
}

type FrameSink interface {
	PutFrame(ctx context.Context, key string, data []byte) error
}

type FrameRecorder interface {
	RecordFrame(regions int)
}

// Manifest is what `detect --out` writes: the violations plus the size of the
// source video their bboxes refer to.
type Manifest struct {
	VideoWidth  int                `json:"videoWidth,omitempty"`
	VideoHeight int                `json:"videoHeight,omitempty"`
	Violations  []models.Violation `json:"violations"`
}

// ParseManifest accepts a Manifest object or a bare violations array.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &m.Violations); err != nil {
			return m, err
		}
		return m, nil
	}
	if err := json.Unmarshal(trimmed, &m); err != nil {
		return m, err
	}
	return m, nil
}

type Job struct {
	Source     FrameSource
	Sink       FrameSink
	Recorder   FrameRecorder
	Violations []models.Violation
	BlockSize  int
	FrameRate  float64
	// Source video size the bboxes are expressed in. Zero falls back to the
	// size of the first frame.
	VideoWidth, VideoHeight int
	// Canvas size frames are scaled to before pixelation.
	Width, Height int
	Quality       int
}

type Result struct {
	Frames  int `json:"frames"`
	Regions int `json:"regions"`
}

// Run processes every frame under prefix in the order the source lists them.
// Frame i is rendered at i/FrameRate seconds.
func (j *Job) Run(ctx context.Context, prefix string) (Result, error) {
	var res Result

	keys, err := j.Source.ListFrames(ctx, prefix)
	if err != nil {
		return res, fmt.Errorf("list frames: %w", err)
	}
	if len(keys) == 0 {
		return res, fmt.Errorf("%w under %q", ErrNoFrames, prefix)
	}

	rate := j.FrameRate
	if rate <= 0 {
		rate = DefaultFrameRate
	}

	var layer *mosaic.Layer
	for i, key := range keys {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		data, err := j.Source.GetFrame(ctx, key)
		if err != nil {
			return res, err
		}
		src, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return res, fmt.Errorf("decode %s: %w", key, err)
		}

		if layer == nil {
			layer = j.layer(src)
		}

		canvas := j.scale(src)
		regions := layer.Render(canvas, float64(i)/rate)

		out, err := j.encode(canvas)
		if err != nil {
			return res, fmt.Errorf("encode %s: %w", key, err)
		}
		if err := j.Sink.PutFrame(ctx, s3.OutputKey(prefix, key), out); err != nil {
			return res, err
		}

		if j.Recorder != nil {
			j.Recorder.RecordFrame(regions)
		}
		res.Frames++
		res.Regions += regions
		log.Debug().Str("frame", key).Int("regions", regions).Msg("frame redacted")
	}

	log.Info().Str("prefix", prefix).Int("frames", res.Frames).Int("regions", res.Regions).Msg("redaction finished")
	return res, nil
}

// layer builds the mosaic layer in source video space, or in the space of
// the first frame when the video size is unknown.
func (j *Job) layer(first image.Image) *mosaic.Layer {
	vw, vh := j.VideoWidth, j.VideoHeight
	if vw <= 0 || vh <= 0 {
		vw, vh = first.Bounds().Dx(), first.Bounds().Dy()
	}
	return mosaic.NewLayer(j.Violations, j.BlockSize, vw, vh)
}

func (j *Job) scale(src image.Image) *image.RGBA {
	w, h := j.Width, j.Height
	if w <= 0 || h <= 0 {
		w, h = src.Bounds().Dx(), src.Bounds().Dy()
	}
	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	if src.Bounds().Size() == canvas.Bounds().Size() {
		draw.Draw(canvas, canvas.Bounds(), src, src.Bounds().Min, draw.Src)
		return canvas
	}
	draw.CatmullRom.Scale(canvas, canvas.Bounds(), src, src.Bounds(), draw.Src, nil)
	return canvas
}

func (j *Job) encode(img image.Image) ([]byte, error) {
	q := j.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: q}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
