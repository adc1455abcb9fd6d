package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shiplift-io/shiplift/internal/engine"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/internal/outputs"
)

var applyAutoApprove bool

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply the declared state",
	Long: `Acquires the environment's state lock, plans, executes the plan, and
records the result. Changes that complete before a failure stay
recorded, so re-running apply resumes instead of starting over.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of the plan")
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}

	_, err = applyDeclaration(ctx, rt, applyAutoApprove)
	return err
}

// applyDeclaration runs the lock/plan/apply/persist cycle and returns
// the resulting state. Shared by apply and ship.
func applyDeclaration(ctx context.Context, rt *runtimeComponents, autoApprove bool) (*ir.State, error) {
	if err := rt.backend.Lock(ctx); err != nil {
		return nil, err
	}
	defer rt.backend.Unlock(ctx)

	currentState, err := rt.backend.Read(ctx)
	if err != nil {
		return nil, err
	}

	plan, err := rt.engine.Plan(ctx, rt.cfg.Declaration(), currentState)
	if err != nil {
		return nil, err
	}

	if plan.Empty() {
		fmt.Println("No changes. Infrastructure matches the declaration.")
		return currentState, nil
	}

	fmt.Println("Shiplift will perform the following actions:")
	renderPlanChanges(plan)
	renderPlanSummary(plan)

	if !autoApprove {
		fmt.Print("\nDo you want to perform these actions? (y/n): ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "yes" {
			fmt.Println("Apply cancelled.")
			return currentState, nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", len(plan.Changes))

	newState, applyErr := rt.engine.Apply(ctx, plan, currentState, &engine.ApplyOptions{
		OnEvent: printApplyEvent,
	})

	// The state reflects every change that landed, including on partial
	// failure; persist it before reporting the error.
	if newState != nil {
		if applyErr == nil {
			published, pubErr := outputs.Publish(plan.Outputs, newState)
			if pubErr != nil {
				_ = rt.backend.Write(ctx, newState)
				return newState, pubErr
			}
			newState.Outputs = published
		}
		if writeErr := rt.backend.Write(ctx, newState); writeErr != nil {
			if applyErr != nil {
				return newState, fmt.Errorf("%w (also failed to persist state: %v)", applyErr, writeErr)
			}
			return newState, writeErr
		}
	}
	if applyErr != nil {
		return newState, applyErr
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		plan.Summary.Create, plan.Summary.Update+plan.Summary.Replace, plan.Summary.Delete)

	if len(newState.Outputs) > 0 {
		fmt.Println("\nOutputs:")
		for _, name := range outputs.Names(newState.Outputs) {
			fmt.Printf("  %s = %s\n", name, newState.Outputs[name])
		}
	}
	return newState, nil
}

func printApplyEvent(ev engine.ApplyEvent) {
	switch ev.Phase {
	case "start":
		fmt.Printf("%s: %s...\n", ev.Address, ev.Action)
	case "done":
		fmt.Printf("%s: %s complete\n", ev.Address, ev.Action)
	case "error":
		fmt.Printf("%s: %s failed: %v\n", ev.Address, ev.Action, ev.Err)
	}
}
