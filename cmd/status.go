package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync status, scan counts per DSP, and pending local work",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, "status")
		if err != nil {
			return err
		}
		defer env.Close()

		fmt.Printf("day:    %s\n", env.Sync.Day())
		fmt.Printf("status: %s\n", env.Sync.Status())
		fmt.Printf("records: %d\n", env.Sync.Count())

		summary := env.Sync.Summary()
		dsps := make([]string, 0, len(summary))
		for dsp := range summary {
			dsps = append(dsps, dsp)
		}
		sort.Strings(dsps)
		for _, dsp := range dsps {
			fmt.Printf("  %s: %d\n", dsp, summary[dsp])
		}

		assignments, increments, err := env.Sync.PendingCounts(ctx)
		if err != nil {
			return err
		}
		if assignments > 0 || increments > 0 {
			fmt.Printf("pending: %d assignments, %d history increments (run 'sortscan flush')\n",
				assignments, increments)
		}
		return nil
	},
}

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Replay locally buffered records to the shared store",
	Long:  "Pushes assignments and history increments that were recorded during an outage. Replay only happens through this command, never automatically on reconnect.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		recs, err := env.Sync.Flush(ctx)
		if err != nil {
			return err
		}
		incs, err := env.Ledger.FlushPending(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("flushed %d assignments, %d history increments\n", recs, incs)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(flushCmd)
}
