package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"index-checker/feature/indexcheck"

	"github.com/spf13/cobra"
)

var repairFlags struct {
	models    []string
	companies []int64
	dryRun    bool
	confirm   bool
	reindex   bool
	delete    bool
}

// repairCmd represents the repair command
var repairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Reindex missing or stale documents and delete orphans",
	Long: `Runs a check and plans repairs from it: records missing from the index or
indexed with stale values are reindexed, documents without a record are
deleted. Nothing is written unless --dry-run=false and --confirm are given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		result, err := a.service.Repair(ctx, indexcheck.RepairRequest{
			RunRequest: indexcheck.RunRequest{
				Models:    repairFlags.models,
				Companies: repairFlags.companies,
			},
			DryRun:  repairFlags.dryRun,
			Reindex: repairFlags.reindex,
			Delete:  repairFlags.delete,
			Confirm: repairFlags.confirm,
		})
		if result != nil {
			printReport(result.Report)
			summary := result.Plan.Summary
			fmt.Println("\n--- Repair Plan ---")
			fmt.Printf("Reindex:   %d\n", summary.ReindexActions)
			fmt.Printf("Delete:    %d\n", summary.DeleteActions)
			fmt.Printf("Truncated: %d\n", summary.Truncated)
			if result.DryRun {
				fmt.Println("Dry run, nothing written. Use --dry-run=false --confirm to apply.")
			} else {
				fmt.Printf("Executed:  %d\n", result.Executed)
			}
		}
		return err
	},
}

func init() {
	f := repairCmd.Flags()
	f.StringSliceVar(&repairFlags.models, "models", nil, "Models to repair (default: every configured model)")
	f.Int64SliceVar(&repairFlags.companies, "companies", nil, "Company ids to repair (default: every company)")
	f.BoolVar(&repairFlags.dryRun, "dry-run", true, "Plan only")
	f.BoolVar(&repairFlags.confirm, "confirm", false, "Confirm the changes")
	f.BoolVar(&repairFlags.reindex, "reindex", false, "Only reindex missing and stale documents")
	f.BoolVar(&repairFlags.delete, "delete", false, "Only delete orphan documents")
	RootCmd.AddCommand(repairCmd)
}
