package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dderg/invidious-downloader-sub001/internal/output"
	"github.com/dderg/invidious-downloader-sub001/internal/queue"
)

func newQueueCmd() *cobra.Command {
	var userID string
	var priority int
	cmd := &cobra.Command{
		Use:   "queue [VIDEO_ID...]",
		Short: "Add videos to the persisted download queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := queue.NewFileStore(cfg.DataDir)
			if err != nil {
				return fmt.Errorf("error opening queue store: %v", err)
			}
			engine := queue.NewEngine(queue.EngineConfig{OutputDir: cfg.OutputDir}, store, nil, nil)
			for _, videoID := range args {
				result, err := engine.QueueDownload(videoID, userID, priority)
				if err != nil {
					output.PrintError(fmt.Sprintf("%s: %v", videoID, err))
					continue
				}
				switch result {
				case queue.AlreadyDownloaded:
					output.PrintWarning(fmt.Sprintf("%s already downloaded", videoID))
				case queue.AlreadyQueued:
					output.PrintWarning(fmt.Sprintf("%s already queued", videoID))
				default:
					output.PrintSuccess(fmt.Sprintf("%s queued", videoID))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "User the request is attributed to")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Queue priority (higher runs first)")
	return cmd
}
