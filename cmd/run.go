package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dderg/invidious-downloader-sub001/internal/archive"
	"github.com/dderg/invidious-downloader-sub001/internal/companion"
	"github.com/dderg/invidious-downloader-sub001/internal/download"
	"github.com/dderg/invidious-downloader-sub001/internal/fetch"
	"github.com/dderg/invidious-downloader-sub001/internal/media"
	"github.com/dderg/invidious-downloader-sub001/internal/queue"
	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the queue engine daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := utils.GetLogger("main")
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			store, err := queue.NewFileStore(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("error opening queue store: %v", err)
			}
			quality, err := media.ParsePreference(cfg.Download.Quality)
			if err != nil {
				return err
			}
			client := utils.NewArchiveHTTPClient(utils.HTTPClientConfig{})
			orch := download.NewOrchestrator(client)
			provider := companion.NewClient(cfg.Companion.BaseURL, cfg.Companion.Timeout())
			engine := queue.NewEngine(queue.EngineConfig{
				OutputDir:       cfg.OutputDir,
				MaxConcurrent:   cfg.Download.MaxConcurrent,
				PollInterval:    time.Duration(cfg.Retry.PollIntervalSeconds) * time.Second,
				BaseRetryDelay:  time.Duration(cfg.Retry.BaseDelayMinutes) * time.Minute,
				MaxAttempts:     cfg.Retry.MaxAttempts,
				Quality:         quality,
				RateLimit:       cfg.Download.RateLimitBytesPerSec,
				Throttle:        throttleFromConfig(),
				TempMaxAge:      time.Duration(cfg.Cleanup.TempMaxAgeHours) * time.Hour,
				CleanupSchedule: cfg.Cleanup.Schedule,
			}, store, provider, orch)

			if cfg.Archive.Enabled {
				uploader, err := archive.NewUploader(ctx, cfg.Archive.Bucket, cfg.Archive.Prefix)
				if err != nil {
					return fmt.Errorf("error initializing archive uploader: %v", err)
				}
				engine.SetArchiver(uploader)
			}

			log.Info().Str("outputDir", cfg.OutputDir).Str("companion", cfg.Companion.BaseURL).Msg("Starting acquisition engine")
			return engine.Run(ctx)
		},
	}
}

func throttleFromConfig() *fetch.ThrottleConfig {
	if cfg.Download.Throttle.MinSpeedBytesPerSec <= 0 {
		return nil
	}
	return &fetch.ThrottleConfig{
		Window:   time.Duration(cfg.Download.Throttle.WindowSeconds) * time.Second,
		MinSpeed: cfg.Download.Throttle.MinSpeedBytesPerSec,
	}
}
