package cli

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/shiplift-io/shiplift/internal/ir"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
)

func actionSymbol(action ir.Action) string {
	switch action {
	case ir.ActionCreate:
		return "+"
	case ir.ActionDelete:
		return "-"
	case ir.ActionReplace:
		return "-/+"
	case ir.ActionNoOp:
		return " "
	default:
		return "~"
	}
}

func actionColor(action ir.Action) string {
	switch action {
	case ir.ActionCreate:
		return colorGreen
	case ir.ActionDelete:
		return colorRed
	case ir.ActionUpdate, ir.ActionReplace:
		return colorYellow
	default:
		return colorReset
	}
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(plan *ir.Plan) {
	for _, change := range plan.Changes {
		color := actionColor(change.Action)

		var resourceType, resourceName string
		if change.Desired != nil {
			resourceType = change.Desired.Type
			resourceName = change.Desired.Name
		} else if change.Prior != nil {
			resourceType = change.Prior.Type
			resourceName = change.Prior.Name
		}

		fmt.Printf("\n%s  # %s will be %s%s\n", color, change.Address, change.Action, colorReset)
		fmt.Printf("%s  %s resource \"%s\" \"%s\" {%s\n", color, actionSymbol(change.Action), resourceType, resourceName, colorReset)
		renderPropertyDiff(change)
		fmt.Printf("%s    }%s\n", color, colorReset)
	}
}

// renderPropertyDiff prints structured property diffs.
func renderPropertyDiff(change *ir.Change) {
	for key, diff := range change.Diff {
		switch diff.Action {
		case "create":
			fmt.Printf("%s      + %s = %v%s\n", colorGreen, key, formatValue(diff.After), colorReset)
		case "delete":
			fmt.Printf("%s      - %s = %v%s\n", colorRed, key, formatValue(diff.Before), colorReset)
		case "update":
			fmt.Printf("%s      ~ %s = %v -> %v%s\n", colorYellow, key, formatValue(diff.Before), formatValue(diff.After), colorReset)
		default:
			fmt.Printf("        %s = %v\n", key, formatValue(diff.After))
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(plan *ir.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", plan.Summary.Create)
	fmt.Printf("  Update:  %d\n", plan.Summary.Update)
	fmt.Printf("  Replace: %d\n", plan.Summary.Replace)
	fmt.Printf("  Delete:  %d\n", plan.Summary.Delete)
	fmt.Printf("  NoOp:    %d\n", plan.Summary.NoOp)
}
