package main

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every scanned record for today, for all operators",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !clearYes {
			return eris.New("clear removes today's records for every operator; pass --yes to confirm")
		}

		ctx := cmd.Context()
		env, err := initApp(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Sync.ClearAll(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d records for %s\n", n, env.Sync.Day())
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete TRACKING_ID",
	Short: "Remove one scanned record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		id := strings.ToUpper(strings.TrimSpace(args[0]))
		if err := env.Sync.Delete(ctx, id); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", id)
		return nil
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "confirm removal")
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(deleteCmd)
}
