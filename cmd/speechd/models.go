package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/config"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/models"
)

var modelsDir string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage whisper models",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the downloadable models",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		for _, m := range models.Catalog {
			fmt.Printf("  %-10s ~%5d MB  %s\n", m.Name, m.SizeMB, m.Use)
		}
	},
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download [model...]",
	Short: "Download whisper models (default: all listed models)",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Models will be downloaded to: %s\n\n", modelsDir)
		d := models.NewDownloader(modelsDir, os.Stdout)
		if err := d.DownloadAll(cmd.Context(), args); err != nil {
			return err
		}
		fmt.Println("\nDone.")
		return nil
	},
}

func init() {
	modelsDownloadCmd.Flags().StringVar(&modelsDir, "dir", config.DefaultModelsDir(), "directory to store models in")
	modelsCmd.AddCommand(modelsListCmd, modelsDownloadCmd)
	rootCmd.AddCommand(modelsCmd)
}
