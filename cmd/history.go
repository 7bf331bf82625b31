package main

import (
	"fmt"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sortscan/internal/model"
)

var historyCmd = &cobra.Command{
	Use:   "history LAT LON",
	Short: "Show accumulated mismatch history for a coordinate's grid cell",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lat, err := parseCoord(args[0], "latitude", 90)
		if err != nil {
			return err
		}
		lon, err := parseCoord(args[1], "longitude", 180)
		if err != nil {
			return err
		}

		env, err := initApp(ctx, "status")
		if err != nil {
			return err
		}
		defer env.Close()

		key := model.GridKey(lat, lon)
		rec := env.Ledger.Lookup(ctx, lat, lon)
		if rec == nil {
			fmt.Printf("grid %s: no recorded mismatches\n", key)
			return nil
		}

		fmt.Printf("grid:       %s\n", rec.GridKey)
		fmt.Printf("mismatches: %d\n", rec.OccurrenceCount)
		fmt.Printf("expected:   %s\n", rec.ExpectedDSP)
		fmt.Printf("actual:     %s\n", rec.ActualDSP)
		fmt.Printf("last seen:  %s (%s)\n", rec.LastSeen.Format("2006-01-02 15:04:05"), rec.TrackingID)
		if rec.City != "" || rec.Postal != "" {
			fmt.Printf("zone:       %s %s\n", rec.City, rec.Postal)
		}
		return nil
	},
}

func parseCoord(raw, name string, bound float64) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Errorf("history: %s %q is not a number", name, raw)
	}
	if v < -bound || v > bound {
		return 0, eris.Errorf("history: %s %v out of range [-%v, %v]", name, v, bound, bound)
	}
	return v, nil
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
