package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sortscan/internal/compare"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export today's scanned assignments to CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initApp(cmd.Context(), "scan")
		if err != nil {
			return err
		}
		defer env.Close()

		records := env.Sync.Snapshot()

		w := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrap(err, "create export file")
			}
			defer f.Close()
			w = f
		}

		if err := compare.WriteAssignmentsCSV(w, records); err != nil {
			return err
		}
		if exportOut != "" {
			fmt.Printf("%d records written to %s\n", len(records), exportOut)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "", "output file (default stdout)")
	rootCmd.AddCommand(exportCmd)
}
