package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/detection"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/kafka"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/rs/zerolog/log"
)

var ErrUnknownCommand = errors.New("unknown command")

// Detector is the part of the detection controller the runner drives.
type Detector interface {
	Start(ctx context.Context, req detection.Request) error
	ClearDetections()
}

type CommandSource interface {
	Commands() <-chan kafka.Command
}

// Runner applies detection commands arriving from Kafka to the controller.
type Runner struct {
	detector Detector
	source   CommandSource
}

func New(detector Detector, source CommandSource) *Runner {
	return &Runner{
		detector: detector,
		source:   source,
	}
}

func (r *Runner) ListenAndRun(ctx context.Context) {
	log.Info().Msg("Runner: listening for Kafka commands")
	commands := r.source.Commands()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Runner: shutting down")
			return
		case cmd, ok := <-commands:
			if !ok {
				log.Info().Msg("Runner: command stream closed")
				return
			}
			log.Debug().Str("action", string(cmd.Action)).Str("video_path", cmd.VideoPath).Msg("Runner: received command")

			if err := r.Handle(ctx, cmd.DetectionCommand); err != nil {
				log.Error().Err(err).Msg("Runner: error processing command")
			}

			// Ошибки детекции уже в состоянии контроллера, повтор только по новой команде
			cmd.Ack()
		}
	}
}

// Handle applies one command. Detection failures are recorded by the
// controller and are not returned.
func (r *Runner) Handle(ctx context.Context, cmd models.DetectionCommand) error {
	switch cmd.Action {
	case models.CommandStart:
		if cmd.VideoPath == "" {
			return fmt.Errorf("start command without video_path")
		}
		err := r.detector.Start(ctx, detection.Request{
			TaskID:    cmd.TaskID,
			VideoPath: cmd.VideoPath,
			Detector:  cmd.Detector,
		})
		if err != nil {
			log.Warn().Err(err).Str("video_path", cmd.VideoPath).Msg("Runner: detection did not start")
		}
		return nil
	case models.CommandClear:
		r.detector.ClearDetections()
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
	}
}
