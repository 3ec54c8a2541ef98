package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/metrics"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/redact"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/s3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	violationsFlag  string
	prefixFlag      string
	frameRateFlag   float64
	blockSizeFlag   int
	videoWidthFlag  int
	videoHeightFlag int
)

var redactCmd = &cobra.Command{
	Use:   "redact",
	Short: "Pixelate violations in frames stored in MinIO",
	RunE:  runRedact,
}

func init() {
	redactCmd.Flags().StringVar(&violationsFlag, "violations", "", "JSON file written by detect --out, or a bare violations array")
	redactCmd.Flags().StringVar(&prefixFlag, "prefix", "", "Folder of the frames inside the frames bucket")
	redactCmd.Flags().Float64Var(&frameRateFlag, "fps", redact.DefaultFrameRate, "Rate the frames were extracted at")
	redactCmd.Flags().IntVar(&blockSizeFlag, "block-size", 0, "Mosaic block size in pixels (default from config)")
	redactCmd.Flags().IntVar(&videoWidthFlag, "video-width", 0, "Source video width the bboxes refer to (default from the violations file, then the frame size)")
	redactCmd.Flags().IntVar(&videoHeightFlag, "video-height", 0, "Source video height the bboxes refer to")
	redactCmd.MarkFlagRequired("violations")
	redactCmd.MarkFlagRequired("prefix")
}

func runRedact(cmd *cobra.Command, args []string) error {
	cfg := appConfig

	data, err := os.ReadFile(violationsFlag)
	if err != nil {
		return fmt.Errorf("read violations: %w", err)
	}
	manifest, err := redact.ParseManifest(data)
	if err != nil {
		return fmt.Errorf("parse violations: %w", err)
	}
	if videoWidthFlag > 0 && videoHeightFlag > 0 {
		manifest.VideoWidth, manifest.VideoHeight = videoWidthFlag, videoHeightFlag
	}

	if cfg.Minio.Endpoint == "" {
		return fmt.Errorf("minio endpoint is not configured")
	}
	store, err := s3.NewMinioClient(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.FramesBucket, cfg.Minio.OutputBucket)
	if err != nil {
		return err
	}

	blockSize := blockSizeFlag
	if blockSize <= 0 {
		blockSize = cfg.Mosaic.BlockSize
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	job := &redact.Job{
		Source:     store,
		Sink:       store,
		Recorder:   m,
		Violations: manifest.Violations,
		BlockSize:  blockSize,
		FrameRate:  frameRateFlag,

		VideoWidth:  manifest.VideoWidth,
		VideoHeight: manifest.VideoHeight,
		Width:       cfg.Mosaic.CanvasWidth,
		Height:      cfg.Mosaic.CanvasHeight,
	}

	res, err := job.Run(ctx, prefixFlag)
	if err != nil {
		return err
	}

	log.Info().
		Uint64("mosaic_frames_total", m.MosaicFrames.Load()).
		Uint64("mosaic_regions_total", m.MosaicRegions.Load()).
		Str("bucket", cfg.Minio.OutputBucket).
		Msg("Redaction complete")
	fmt.Printf("Redacted %d frame(s), %d region(s) pixelated\n", res.Frames, res.Regions)
	return nil
}
