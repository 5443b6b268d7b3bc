package cmd

import (
	"errors"
	"fmt"
	"strings"

	"index-checker/core/reconcile"

	"github.com/spf13/cobra"
)

var modelsFlags struct {
	terms []string
}

// modelsCmd represents the models command
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the checked models and inspect the index",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.logger.Sync()
		ctx := cmd.Context()

		models, failed, err := a.service.Models(ctx, nil)
		if err != nil {
			return err
		}

		fmt.Println("\n--- Models ---")
		for _, m := range models {
			caps := m.Capabilities()
			var traits []string
			for _, t := range []struct {
				name string
				on   bool
			}{
				{"company", caps.CompanyScoped},
				{"group", caps.GroupScoped},
				{"resource", caps.ResourceIdentity},
				{"audited", caps.Audited},
				{"workflow", caps.Workflow},
			} {
				if t.on {
					traits = append(traits, t.name)
				}
			}
			fmt.Printf("%-60s table=%s pk=%s attrs=%d [%s]\n",
				m.Name(), m.Table(), m.PrimaryKey(), len(m.Attributes()), strings.Join(traits, ","))
		}
		for _, e := range failed {
			fmt.Printf("%-60s ERROR %s\n", e.Model, e.Error)
		}

		status, err := a.service.IndexStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Println("\n--- Index ---")
		fmt.Printf("Index:     %s (%s reader)\n", status.Index, status.Reader)
		fmt.Printf("Reachable: %v\n", status.Reachable)
		if status.Documents != reconcile.DocumentCountUnknown {
			fmt.Printf("Documents: %d\n", status.Documents)
		}
		if status.Error != "" {
			fmt.Printf("Error:     %s\n", status.Error)
		}

		for _, field := range modelsFlags.terms {
			values, err := a.service.TermValues(ctx, field)
			if errors.Is(err, errors.ErrUnsupported) {
				return fmt.Errorf("listing %s needs index.reader=direct: %w", field, err)
			}
			if err != nil {
				return err
			}
			fmt.Printf("\n%s (%d values)\n", field, len(values))
			for _, v := range values {
				fmt.Printf("  %s\n", v)
			}
		}
		return nil
	},
}

func init() {
	modelsCmd.Flags().StringSliceVar(&modelsFlags.terms, "terms", nil, "Index fields whose distinct values are listed")
	RootCmd.AddCommand(modelsCmd)
}
