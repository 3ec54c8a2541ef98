package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/detection"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/redact"
	detectionsvc "github.com/Capitan-Parrot/distributed-video-system/redactor/internal/services/detection"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/timeline"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/violation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	uploadFlag   bool
	outFlag      string
	zoomFlag     float64
	taskIDFlag   string
	detectorFlag string
)

var detectCmd = &cobra.Command{
	Use:   "detect <video>",
	Short: "Run one detection and print the violations",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

func init() {
	detectCmd.Flags().BoolVar(&uploadFlag, "upload", false, "Upload the local file to the backend before detection")
	detectCmd.Flags().StringVarP(&outFlag, "out", "o", "", "Write the violations as JSON to this file")
	detectCmd.Flags().Float64Var(&zoomFlag, "zoom", 1, "Timeline zoom used for the printed markers")
	detectCmd.Flags().StringVar(&taskIDFlag, "task-id", "", "Task id to submit (default: generated)")
	detectCmd.Flags().StringVar(&detectorFlag, "detector", "", "Detector to run (default from config)")
}

func runDetect(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	videoPath := args[0]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend := detectionsvc.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	controller := detection.New(backend,
		detection.WithDetector(cfg.Detection.Detector),
		detection.WithPollInterval(cfg.Detection.PollInterval),
		detection.WithObserver(progressPrinter{}),
	)
	defer controller.Close()

	req := detection.Request{TaskID: taskIDFlag, VideoPath: videoPath, Detector: detectorFlag}
	if uploadFlag {
		f, err := os.Open(videoPath)
		if err != nil {
			return fmt.Errorf("open video: %w", err)
		}
		err = controller.StartFromFile(ctx, filepath.Base(videoPath), f, req)
		f.Close()
		if err != nil {
			return err
		}
	} else if err := controller.Start(ctx, req); err != nil {
		return err
	}

	snap, err := controller.Wait(ctx)
	if err != nil {
		return err
	}
	if snap.Status == models.StatusError {
		return fmt.Errorf("detection failed: %s", snap.Error)
	}

	printViolations(snap)

	if outFlag != "" {
		data, err := json.MarshalIndent(redact.Manifest{
			VideoWidth:  snap.VideoWidth,
			VideoHeight: snap.VideoHeight,
			Violations:  snap.Violations,
		}, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(outFlag, data, 0o644); err != nil {
			return fmt.Errorf("write violations: %w", err)
		}
		log.Info().Str("path", outFlag).Msg("violations saved")
	}
	return nil
}

type progressPrinter struct{}

func (progressPrinter) Observe(ev models.StatusEvent) {
	log.Info().Str("status", string(ev.Status)).Int("progress", ev.Progress).Str("task_id", ev.TaskID).Msg("detection")
}

func printViolations(snap detection.Snapshot) {
	fmt.Printf("Found %d violation(s)\n", len(snap.Violations))
	for i, v := range snap.Violations {
		fmt.Printf("%3d. %-12s %s - %s  (%.0f%%)\n",
			i+1, v.Type, violation.FormatTime(v.StartTime), violation.FormatTime(v.EndTime), violation.Confidence(v)*100)
	}

	markers := timeline.Markers(snap, zoomFlag)
	if len(markers) == 0 {
		return
	}
	fmt.Printf("\nTimeline at %.0f px/s\n", timeline.PixelsPerSecond(zoomFlag))
	for _, m := range markers {
		fmt.Printf("  left=%7.1f width=%6.1f  %s\n", m.Left, m.Width, m.Title)
	}
}
