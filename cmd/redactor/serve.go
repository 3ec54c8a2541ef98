package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/api"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/database"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/detection"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/kafka"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/metrics"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/runner"
	detectionsvc "github.com/Capitan-Parrot/distributed-video-system/redactor/internal/services/detection"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the Kafka command runner",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := appConfig
	log.Info().Msg("Main: init...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	opts := []detection.Option{
		detection.WithDetector(cfg.Detection.Detector),
		detection.WithPollInterval(cfg.Detection.PollInterval),
		detection.WithObserver(m),
	}

	// Журнал задач в Postgres
	var journal *database.Database
	if cfg.Postgres.DSN != "" {
		db, err := database.New(cfg.Postgres.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Init(); err != nil {
			return err
		}
		opts = append(opts, detection.WithObserver(db))
		journal = db
	}

	var consumer *kafka.Consumer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.StatusTopic)
		if err != nil {
			return err
		}
		defer producer.Close()
		opts = append(opts, detection.WithObserver(producer))

		consumer, err = kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.CommandTopic)
		if err != nil {
			return err
		}
		defer consumer.Close()
	}

	backend := detectionsvc.NewClient(cfg.Backend.URL, cfg.Backend.Timeout)
	controller := detection.New(backend, opts...)
	defer controller.Close()

	// Команды из Kafka
	if consumer != nil {
		consumer.StartListening(ctx)
		go runner.New(controller, consumer).ListenAndRun(ctx)
	}

	handlers := api.NewHandlers(controller, m.Handler())
	if journal != nil {
		handlers.WithJournal(journal)
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("Starting redactor API server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info().Msg("Main: shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
