package main

import (
	"fmt"
	"time"

	"github.com/BadgerOps/pimsync/internal/importer"
	"github.com/spf13/cobra"
)

var importFile string

func newImportResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-resources",
		Short: "Import a resource manifest into the commerce platform",
		Long: `Fetch a resource manifest from the configured source, convert its entries
into import records, and upload them to the remote importer in batches of at
most 1000. Each batch is polled until the importer reports completion before
the next one is sent.

Names ending in .zip, .zst or .xz are unpacked before decoding.`,
		Example: `  pimsync import-resources --file Resources.xml
  pimsync import-resources --file Resources_20260301.zip --log-level debug`,
		RunE: importResourcesRun,
	}

	cmd.Flags().StringVar(&importFile, "file", "", "manifest file name in the source (required)")
	cmd.MarkFlagRequired("file")

	return cmd
}

func importResourcesRun(cmd *cobra.Command, args []string) error {
	if globalGateway == nil || globalSource == nil {
		return fmt.Errorf("components not initialized")
	}

	if !quiet {
		fmt.Printf("Importing resources from %s...\n\n", importFile)
	}

	report, err := newRunner().ImportResources(cmd.Context(), importFile)
	if report != nil && !quiet {
		printImportReport(report)
	}
	if err != nil {
		return fmt.Errorf("resource import failed: %w", err)
	}
	return nil
}

func printImportReport(report *importer.Report) {
	fmt.Printf("Import results:\n")
	if report.RunID != "" {
		fmt.Printf("  Run: %s\n", report.RunID)
	}
	switch {
	case report.Disabled:
		fmt.Println("  Endpoint disabled, nothing was sent")
		return
	case report.Skipped:
		fmt.Println("  Manifest contains no resources")
		return
	}

	completed, rejected, failed := report.Counts()
	fmt.Printf("  Records: %d\n", report.Records)
	fmt.Printf("  Batches completed: %d\n", completed)
	fmt.Printf("  Batches rejected: %d\n", rejected)
	fmt.Printf("  Batches failed: %d\n", failed)
	fmt.Printf("  Duration: %s\n", report.EndTime.Sub(report.StartTime).Round(time.Second))

	if rejected+failed > 0 {
		fmt.Println("  Problems:")
		for _, b := range report.Batches {
			if b.Outcome != importer.OutcomeCompleted {
				fmt.Printf("    - batch %d (%d records) %s: %s\n", b.Index, b.Size, b.Outcome, b.Message)
			}
		}
	}
}
