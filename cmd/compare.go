package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sortscan/internal/compare"
	"github.com/sells-group/sortscan/internal/ingest"
	"github.com/sells-group/sortscan/internal/model"
)

var compareOut string

var compareCmd = &cobra.Command{
	Use:   "compare FILE",
	Short: "Cross-check scanned assignments against the system-of-record export",
	Long:  "Reads a CSV or XLSX export, compares each row against today's scanned set, and records confirmed mismatches into the mismatch history.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initApp(ctx, "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		var rows []model.ComparisonRow
		if strings.EqualFold(filepath.Ext(args[0]), ".xlsx") {
			rows, err = ingest.ParseComparisonXLSX(args[0])
		} else {
			var f *os.File
			f, err = os.Open(args[0])
			if err != nil {
				return eris.Wrap(err, "open comparison file")
			}
			defer f.Close()
			rows, err = ingest.ParseComparisonCSV(ctx, f)
		}
		if err != nil {
			return err
		}

		scanned := make(map[string]model.AssignmentRecord)
		for _, rec := range env.Sync.Snapshot() {
			scanned[rec.TrackingID] = rec
		}

		results, sum, err := compare.Run(ctx, rows, scanned, env.Ledger.Observe)
		if err != nil {
			return err
		}

		for _, res := range results {
			if res.Outcome == compare.OutcomeMatch {
				continue
			}
			fmt.Printf("%-12s %s  scanned=%s system=%s\n",
				res.Outcome, res.TrackingID, res.ScannedDSP, orDash(res.SystemDSP))
		}
		fmt.Printf("\n%d rows: %d match, %d mismatch (%d unrecognized), %d not scanned\n",
			len(rows), sum.Matches, sum.Mismatches, sum.Unrecognized, sum.NotScanned)

		if compareOut != "" {
			f, err := os.Create(compareOut)
			if err != nil {
				return eris.Wrap(err, "create comparison output")
			}
			defer f.Close()
			if err := compare.WriteComparisonCSV(f, results); err != nil {
				return err
			}
			fmt.Printf("written to %s\n", compareOut)
		}

		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	compareCmd.Flags().StringVar(&compareOut, "out", "", "write full comparison results to a CSV file")
	rootCmd.AddCommand(compareCmd)
}
