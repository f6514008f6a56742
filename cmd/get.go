package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dderg/invidious-downloader-sub001/internal/companion"
	"github.com/dderg/invidious-downloader-sub001/internal/download"
	"github.com/dderg/invidious-downloader-sub001/internal/media"
	"github.com/dderg/invidious-downloader-sub001/internal/output"
	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

func newGetCmd() *cobra.Command {
	var quality string
	var noResume bool
	cmd := &cobra.Command{
		Use:   "get [VIDEO_ID]",
		Short: "Download a single video immediately, bypassing the queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID := args[0]
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pref, err := media.ParsePreference(quality)
			if err != nil {
				return err
			}
			output.PrintPending(fmt.Sprintf("%s Fetching video info for %s", output.StyleSymbols["pending"], videoID))
			provider := companion.NewClient(cfg.Companion.BaseURL, cfg.Companion.Timeout())
			info, err := provider.GetVideoInfo(ctx, videoID)
			if err != nil {
				return fmt.Errorf("error fetching video info: %v", err)
			}
			output.PrintInfo(info.Title)
			streams := media.SelectStreams(info.Tracks, pref)
			if streams.Video == nil || streams.Audio == nil {
				if streams.Combined == nil {
					return fmt.Errorf("no suitable streams found for %s", videoID)
				}
				streams = &media.SelectedStreams{Combined: streams.Combined}
			}
			if streams.Video != nil && streams.Audio != nil {
				output.PrintDetail(fmt.Sprintf("  video itag %s (%dp) %s audio itag %s",
					streams.Video.Itag, streams.Video.Height, output.StyleSymbols["arrow"], streams.Audio.Itag))
			} else {
				output.PrintDetail(fmt.Sprintf("  combined itag %s (%s)", streams.Combined.Itag, streams.Combined.Container()))
			}

			client := utils.NewArchiveHTTPClient(utils.HTTPClientConfig{})
			orch := download.NewOrchestrator(client)
			display := output.NewDisplay(orch)
			display.Start()
			outcome, err := orch.DownloadVideo(ctx, &download.Task{
				VideoID:   videoID,
				Title:     info.Title,
				Streams:   streams,
				OutputDir: cfg.OutputDir,
				RateLimit: cfg.Download.RateLimitBytesPerSec,
				Resume:    !noResume,
				Throttle:  throttleFromConfig(),
			})
			display.Stop()
			if err != nil {
				output.PrintError(fmt.Sprintf("Download failed: %v", err))
				os.Exit(1)
			}
			output.PrintSuccess(fmt.Sprintf("%s Saved %s (%s)", output.StyleSymbols["pass"],
				outcome.FilePath, utils.FormatBytes(uint64(outcome.FileSize))))
			return nil
		},
	}
	cmd.Flags().StringVarP(&quality, "quality", "q", "best", "Quality preference (best, 1080p, 720p, ...)")
	cmd.Flags().BoolVar(&noResume, "no-resume", false, "Ignore existing partial files")
	return cmd
}
