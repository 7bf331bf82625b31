package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/sortscan/internal/model"
)

var scanCmd = &cobra.Command{
	Use:   "scan TRACKING_ID...",
	Short: "Scan one or more parcels and assign them to DSP routes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := loadReport(ctx, env); err != nil {
			return err
		}

		for _, id := range args {
			rec, err := env.Engine.Scan(ctx, id)
			if err != nil {
				var rej *model.Rejection
				if errors.As(err, &rej) {
					fmt.Printf("REJECTED  %s: %s\n", rej.TrackingID, rej.Message)
					continue
				}
				return err
			}
			printAssignment(rec)
		}

		return nil
	},
}

func printAssignment(rec *model.AssignmentRecord) {
	marker := " "
	if rec.HasWarning {
		marker = "!"
	}
	fmt.Printf("%s %s  ->  %s route %d (%s)  confidence %d/%s\n",
		marker, rec.TrackingID, rec.DSP, rec.RouteNumber, rec.RouteName,
		rec.ConfidenceScore, rec.ConfidenceLevel)
	for _, reason := range rec.Reasons {
		fmt.Printf("    %s\n", reason)
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
