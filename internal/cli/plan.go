package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var planOutFile string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the changes needed to reach the declared state",
	Long: `Compares the declared resources against recorded state and prints
the changes an apply would perform. Planning never mutates anything.`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planOutFile, "out", "o", "", "Write the plan as JSON to a file")
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}

	currentState, err := rt.backend.Read(ctx)
	if err != nil {
		return err
	}

	plan, err := rt.engine.Plan(ctx, rt.cfg.Declaration(), currentState)
	if err != nil {
		return err
	}

	if plan.Empty() {
		fmt.Println("No changes. Infrastructure matches the declaration.")
		return nil
	}

	fmt.Println("Shiplift will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if planOutFile != "" {
		data, err := json.MarshalIndent(plan, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		if err := os.WriteFile(planOutFile, data, 0o644); err != nil {
			return fmt.Errorf("failed to write plan file: %w", err)
		}
		fmt.Printf("\nPlan written to %s\n", planOutFile)
	}
	return nil
}
