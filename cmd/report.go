package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Load and validate the daily report",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, "offline")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := loadReport(ctx, env); err != nil {
			return err
		}

		report := env.Engine.Report()
		fmt.Printf("%d parcels loaded, %d rows skipped\n", len(report.Parcels), report.Skipped)
		return nil
	},
}

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Show loaded route boundaries per DSP",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "offline")
		if err != nil {
			return err
		}
		defer env.Close()

		counts := map[string]int{}
		for _, p := range env.Index.Routes() {
			counts[p.DSP]++
		}
		for dsp, n := range counts {
			fmt.Printf("%s: %d routes\n", dsp, n)
		}
		fmt.Printf("total: %d\n", env.Index.Count())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(routesCmd)
}
