package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sortscan/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "sortscan",
	Short: "Parcel scan-and-sort for DSP route assignment",
	Long:  "Scans parcels against DSP route boundaries, scores assignment confidence, and keeps every operator's view of the scanned set in sync.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&offlineFlag, "offline", false, "run without a shared store connection")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
