package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/detection"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/kafka"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
)

type fakeDetector struct {
	mu       sync.Mutex
	started  []string
	cleared  int
	startErr error
}

func (f *fakeDetector) Start(_ context.Context, req detection.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, req.TaskID+"|"+req.VideoPath+"|"+req.Detector)
	return f.startErr
}

func (f *fakeDetector) ClearDetections() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}

type chanSource chan kafka.Command

func (c chanSource) Commands() <-chan kafka.Command { return c }

func TestHandle(t *testing.T) {
	d := &fakeDetector{startErr: errors.New("submission rejected")}
	r := New(d, nil)
	ctx := context.Background()

	if err := r.Handle(ctx, models.DetectionCommand{Action: models.CommandStart, VideoPath: "a.mp4", TaskID: "t1", Detector: "yolo"}); err != nil {
		t.Errorf("start: unexpected error: %v", err)
	}
	if err := r.Handle(ctx, models.DetectionCommand{Action: models.CommandStart}); err == nil {
		t.Error("expected error for missing video path")
	}
	if err := r.Handle(ctx, models.DetectionCommand{Action: models.CommandClear}); err != nil {
		t.Errorf("clear: unexpected error: %v", err)
	}
	if err := r.Handle(ctx, models.DetectionCommand{Action: "pause"}); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("expected ErrUnknownCommand, got %v", err)
	}

	if len(d.started) != 1 || d.started[0] != "t1|a.mp4|yolo" {
		t.Errorf("unexpected starts: %v", d.started)
	}
	if d.cleared != 1 {
		t.Errorf("expected one clear, got %d", d.cleared)
	}
}

func TestListenAndRunStopsWhenStreamCloses(t *testing.T) {
	d := &fakeDetector{}
	src := make(chanSource, 2)
	src <- kafka.Command{DetectionCommand: models.DetectionCommand{Action: models.CommandStart, VideoPath: "a.mp4"}}
	src <- kafka.Command{DetectionCommand: models.DetectionCommand{Action: models.CommandClear}}
	close(src)

	done := make(chan struct{})
	go func() {
		New(d, src).ListenAndRun(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop after the stream closed")
	}

	if len(d.started) != 1 || d.cleared != 1 {
		t.Errorf("unexpected calls: started=%v cleared=%d", d.started, d.cleared)
	}
}
