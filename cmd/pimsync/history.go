package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var historyLimit int

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded resource import runs",
		Example: `  pimsync history
  pimsync history --limit 5`,
		RunE: historyRun,
	}

	cmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of runs to show")

	return cmd
}

func historyRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("run history is not available (check server.db_path)")
	}

	runs, err := globalStore.ListImportRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No import runs recorded.")
		return nil
	}

	fmt.Printf("%-36s %-10s %8s %9s %-16s %s\n", "Run", "Status", "Records", "Batches", "Started", "File")
	fmt.Println(strings.Repeat("-", 100))
	for _, run := range runs {
		batches := fmt.Sprintf("%d/%d", run.BatchesCompleted, run.Batches)
		fmt.Printf("%-36s %-10s %8d %9s %-16s %s\n",
			run.ID,
			run.Status,
			run.Records,
			batches,
			run.StartTime.Local().Format("2006-01-02 15:04"),
			run.FileName,
		)
		if run.ErrorMessage != "" {
			fmt.Printf("  error: %s\n", run.ErrorMessage)
		}
		if !run.EndTime.IsZero() && !quiet {
			fmt.Printf("  took %s\n", run.EndTime.Sub(run.StartTime).Round(time.Second))
		}
	}

	return nil
}
