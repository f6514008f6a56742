package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dderg/invidious-downloader-sub001/internal/config"
	"github.com/dderg/invidious-downloader-sub001/internal/utils"
)

var (
	cfgPath string
	debug   bool
	cfg     *config.Config
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "archivedl",
	Short:   "Acquisition engine for the video archive: queued, resumable stream downloads",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("error loading configuration: %v", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Path to YAML config file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newQueueCmd())
}
