package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"voice-notes-go/internal/config"
	"voice-notes-go/internal/extractor"
	"voice-notes-go/internal/logger"
	"voice-notes-go/internal/metadata"
	"voice-notes-go/internal/pipeline"
	"voice-notes-go/internal/processor"
	"voice-notes-go/internal/storage"
	"voice-notes-go/internal/store"
	"voice-notes-go/internal/store/postgres"
	"voice-notes-go/internal/store/sqlite"
	"voice-notes-go/internal/transcoder"
	"voice-notes-go/internal/transcription"
	httptransport "voice-notes-go/internal/transport/http"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var configPath string
	cmd := &cobra.Command{
		Use:           "voice-notes-api",
		Short:         "Voice notes HTTP API and pipeline worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	dataDir, err := filepath.Abs(cfg.Paths.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}

	log := logger.New()
	log.WithField("service", "voice-notes-go").Info("starting service")

	// queue state is in memory, so a second process would race on the same notes
	lock := flock.New(cfg.Paths.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another voice-notes instance is already running")
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.WithError(err).Warn("failed to release lock")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	log.WithField("driver", cfg.Store.Driver).Info("notes store ready")

	if cfg.HasSeedSettings() {
		if err := db.SaveSettings(ctx, cfg.Settings()); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
		log.Info("provider settings seeded from config")
	}

	prober := metadata.NewProber(cfg.Media.FFprobe)
	ffmpeg := transcoder.New(transcoder.Options{
		Binary:     cfg.Media.FFmpeg,
		Bitrate:    cfg.Media.Bitrate,
		Channels:   cfg.Media.Channels,
		SampleRate: cfg.Media.SampleRate,
	}, prober.Duration)

	queue := pipeline.New(pipeline.Deps{
		Transcoder:  ffmpeg,
		Transcriber: transcription.NewClient(),
		Summarizer:  extractor.NewClient(),
		Settings:    db,
		Notes:       db,
		Categories:  db,
		Storage:     storage.NewLocal(dataDir),
	}, pipeline.Options{
		StepRetryDelay:     cfg.StepRetryDelay(),
		PipelineRetryDelay: cfg.PipelineRetryDelay(),
		HistoryLimit:       cfg.Pipeline.HistoryLimit,
		Logger:             log,
	})

	intake := processor.NewIntake(dataDir, int64(cfg.Server.MaxUploadMB)<<20, prober, db, queue, log)
	handler := httptransport.NewHandler(intake, queue, db, log)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httptransport.Routes(handler),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSeconds) * time.Second,
	}

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		_ = queue.Run(ctx)
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.WithField("addr", srv.Addr).Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown requested")
	case err := <-serveErr:
		if err != nil {
			stop()
			<-workerDone
			return fmt.Errorf("server terminated: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	<-workerDone
	log.Info("service stopped")
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return postgres.Open(ctx, cfg.Store.DSN)
	default:
		return sqlite.Open(ctx, cfg.Store.DSN)
	}
}
