package main

import (
	"os"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/config"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/logging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configFlag   string
	logLevelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "redactor",
	Short: "Detect and pixelate sensitive regions in videos",
	Long: `Redactor submits videos to the detection backend, tracks the detection
task until it finishes and turns the result into violations, timeline markers
and mosaic regions.

Examples:
  redactor serve --config config/local.yaml
  redactor detect /videos/clip.mp4
  redactor detect --upload ./clip.mp4 --out violations.json
  redactor redact --violations violations.json --prefix 3f2a9c`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configFlag)
		if err != nil {
			return err
		}
		if logLevelFlag != "" {
			cfg.Log.Level = logLevelFlag
		}
		logging.Init(cfg.Log.Level)
		appConfig = cfg
		return nil
	},
}

var appConfig *config.Config

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", os.Getenv("CONFIG_PATH"), "Path to the YAML config (default config/local.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd, detectCmd, redactCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("redactor failed")
		os.Exit(1)
	}
}
