package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/sortscan/internal/model"
)

var batchCmd = &cobra.Command{
	Use:   "batch FILE",
	Short: "Scan a file of tracking IDs, one per line",
	Args:  cobra.ExactArgs(1),
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

		ids, err := readIDFile(args[0])
		if err != nil {
			return err
		}

		res, err := env.Engine.ScanBatch(ctx, ids)
		if err != nil {
			return err
		}

		for _, rec := range res.Published {
			printAssignment(&rec)
		}
		for _, rej := range res.Rejected {
			fmt.Printf("REJECTED  %s: %s\n", rej.TrackingID, rej.Message)
		}

		fmt.Printf("\n%d scanned: %d assigned (%d flagged), %d duplicate, %d rejected\n",
			res.Total(), len(res.Published), len(res.Flagged), len(res.Duplicates), len(res.Rejected))

		byCode := map[model.RejectCode]int{}
		for _, rej := range res.Rejected {
			byCode[rej.Code]++
		}
		for code, n := range byCode {
			fmt.Printf("  %s: %d\n", code, n)
		}

		return nil
	},
}

func readIDFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "open batch file")
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "read batch file")
	}
	return ids, nil
}

func init() {
	rootCmd.AddCommand(batchCmd)
}
