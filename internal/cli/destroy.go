package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shiplift-io/shiplift/internal/engine"
	"github.com/shiplift-io/shiplift/internal/ir"
)

var destroyAutoApprove bool

var destroyCmd = &cobra.Command{
	Use:   "destroy",
	Short: "Destroy all managed resources",
	Long: `Tears down every resource recorded in state, dependents first. State
is updated as each resource is removed, so an interrupted destroy can
be resumed.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}

	return destroyState(ctx, rt, destroyAutoApprove)
}

func destroyState(ctx context.Context, rt *runtimeComponents, autoApprove bool) error {
	if err := rt.backend.Lock(ctx); err != nil {
		return err
	}
	defer rt.backend.Unlock(ctx)

	currentState, err := rt.backend.Read(ctx)
	if err != nil {
		return err
	}

	plan, err := rt.engine.PlanDestroy(ctx, currentState)
	if err != nil {
		return err
	}

	if plan.Empty() {
		fmt.Println("Nothing to destroy. State is empty.")
		return nil
	}

	fmt.Println("Shiplift will destroy the following resources:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !autoApprove {
		fmt.Print("\nDo you really want to destroy all resources? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resources...\n", len(plan.Changes))

	newState, applyErr := rt.engine.Apply(ctx, plan, currentState, &engine.ApplyOptions{
		OnEvent: printApplyEvent,
	})
	if newState != nil {
		if applyErr == nil {
			newState.Outputs = ir.OutputSet{}
		}
		if writeErr := rt.backend.Write(ctx, newState); writeErr != nil {
			if applyErr != nil {
				return fmt.Errorf("%w (also failed to persist state: %v)", applyErr, writeErr)
			}
			return writeErr
		}
	}
	if applyErr != nil {
		return applyErr
	}

	fmt.Printf("\nDestroy complete! Resources: %d destroyed.\n", plan.Summary.Delete)
	return nil
}
