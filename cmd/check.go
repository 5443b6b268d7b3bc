package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"index-checker/core/reconcile"
	"index-checker/feature/indexcheck"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var checkFlags struct {
	models            []string
	companies         []int64
	output            string
	concurrency       int
	failOnDiscrepancy bool
}

// checkCmd represents the check command
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Compare the database with the search index",
	Long: `Runs one reconciliation over the configured models and companies, prints
a summary per model and saves the full report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		report, err := a.service.Run(ctx, indexcheck.RunRequest{
			Models:      checkFlags.models,
			Companies:   checkFlags.companies,
			Output:      checkFlags.output,
			Concurrency: checkFlags.concurrency,
		})
		if err != nil {
			return err
		}

		printReport(report)
		if report.Interrupted {
			return fmt.Errorf("check interrupted after %d units, report %s is partial", report.Summary.Units, report.Name())
		}
		if checkFlags.failOnDiscrepancy && (report.Summary.Failed > 0 || report.Summary.Counts.Discrepancies() > 0) {
			return fmt.Errorf("index is inconsistent: %d discrepancies, %d failed units",
				report.Summary.Counts.Discrepancies(), report.Summary.Failed)
		}
		a.logger.Info("Check complete", zap.String("report", report.Name()))
		return nil
	},
}

func init() {
	f := checkCmd.Flags()
	f.StringSliceVar(&checkFlags.models, "models", nil, "Models to check (default: every configured model)")
	f.Int64SliceVar(&checkFlags.companies, "companies", nil, "Company ids to check (default: every company)")
	f.StringVar(&checkFlags.output, "output", "", "Buckets to report: exact, not-exact, only-authoritative, only-index or all")
	f.IntVar(&checkFlags.concurrency, "concurrency", 0, "Units compared at once (default: check.concurrency)")
	f.BoolVar(&checkFlags.failOnDiscrepancy, "fail-on-discrepancy", false, "Exit with an error when anything is inconsistent")
	RootCmd.AddCommand(checkCmd)
}

// modelTotals aggregates the comparisons of one model.
type modelTotals struct {
	units  int
	failed int
	counts reconcile.Counts
}

func printReport(report *indexcheck.Report) {
	totals := make(map[string]*modelTotals)
	for _, c := range report.Comparisons {
		t, ok := totals[c.Model]
		if !ok {
			t = &modelTotals{}
			totals[c.Model] = t
		}
		t.units++
		if c.Failed() {
			t.failed++
			continue
		}
		t.counts.Exact += c.Counts.Exact
		t.counts.NotExact += c.Counts.NotExact
		t.counts.OnlyAuthoritative += c.Counts.OnlyAuthoritative
		t.counts.OnlyIndex += c.Counts.OnlyIndex
	}
	models := make([]string, 0, len(totals))
	for m := range totals {
		models = append(models, m)
	}
	sort.Strings(models)

	fmt.Println("\n--- Index Check ---")
	fmt.Printf("Report:   %s\n", report.Name())
	fmt.Printf("Output:   %s\n", report.Output)
	fmt.Printf("Duration: %s\n", report.FinishedAt.Sub(report.StartedAt).Round(1e6))
	if report.Interrupted {
		fmt.Println("Status:   interrupted, partial results")
	}
	fmt.Println("-------------------")
	fmt.Printf("%-60s %6s %8s %9s %10s %10s %7s\n", "MODEL", "UNITS", "EXACT", "NOT EXACT", "ONLY DB", "ONLY INDEX", "FAILED")
	for _, m := range models {
		t := totals[m]
		fmt.Printf("%-60s %6d %8d %9d %10d %10d %7d\n", m, t.units,
			t.counts.Exact, t.counts.NotExact, t.counts.OnlyAuthoritative, t.counts.OnlyIndex, t.failed)
	}
	fmt.Println("-------------------")
	s := report.Summary
	fmt.Printf("Units: %d  Consistent: %d  Failed: %d  Discrepancies: %d\n",
		s.Units, s.Consistent, s.Failed, s.Counts.Discrepancies())
	for kind, n := range s.Errors {
		fmt.Printf("  %s: %d\n", kind, n)
	}
	for _, e := range report.ModelErrors {
		fmt.Printf("Skipped %s: %s\n", e.Model, e.Error)
	}
}
