// Package engine reconciles a declaration with applied state: a pure
// planning pass diffs the two into an ordered change plan, and an apply
// pass executes the plan against providers with idempotent retry.
package engine

import (
	"context"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/internal/logging"
	"github.com/shiplift-io/shiplift/internal/provider"
	pkgprovider "github.com/shiplift-io/shiplift/pkg/provider"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Engine orchestrates the resource lifecycle for one environment.
type Engine struct {
	registry *provider.Registry
}

func New(registry *provider.Registry) *Engine {
	return &Engine{registry: registry}
}

// Plan computes the changes needed to reconcile decl with state. It is
// a pure read: nothing is mutated until Apply is invoked with the
// resulting plan. Re-planning after a complete apply yields an empty
// plan.
func (e *Engine) Plan(ctx context.Context, decl *ir.Declaration, state *ir.State) (*ir.Plan, error) {
	if err := decl.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigValidation, "invalid declaration")
	}
	logging.Debug("creating plan",
		"environment", decl.Environment,
		"declared", len(decl.Resources),
		"in_state", len(state.Resources))

	for _, res := range decl.Resources {
		if err := e.registry.Load(ctx, res.Provider); err != nil {
			return nil, err
		}
	}
	for _, res := range state.Resources {
		if err := e.registry.Load(ctx, res.Provider); err != nil {
			return nil, err
		}
	}

	dag, err := BuildDAG(decl.Resources)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeConfigValidation, "invalid resource graph")
	}

	declared := make(map[string]*ir.Resource, len(decl.Resources))
	for _, res := range decl.Resources {
		declared[res.Address()] = res
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Environment: decl.Environment,
			StateSerial: state.Serial,
		},
		Summary: &ir.PlanSummary{},
		Outputs: decl.Outputs,
	}

	for _, addr := range dag.CreationOrder() {
		res := declared[addr]

		prov, err := e.registry.Get(res.Provider)
		if err != nil {
			return nil, err
		}

		// References to not-yet-created resources stay symbolic here;
		// planning must not depend on apply-time values.
		desiredJSON, err := json.Marshal(resolveProperties(res, state))
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode desired properties").
				WithResource(addr).WithOperation("plan")
		}

		var prior *ir.ResourceState
		var priorJSON, priorInputsJSON []byte
		if p, ok := state.Lookup(addr); ok {
			prior = p
			priorJSON, _ = json.Marshal(p.Outputs)
			priorInputsJSON, _ = json.Marshal(p.Inputs)
		}

		resp, err := prov.Plan(ctx, &pkgprovider.PlanRequest{
			Type:            res.Type,
			Name:            res.Name,
			DesiredJSON:     desiredJSON,
			PriorJSON:       priorJSON,
			PriorInputsJSON: priorInputsJSON,
		})
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.CodeProviderAPI, "plan failed").
				WithResource(addr).WithOperation("plan")
		}

		switch resp.Action {
		case ir.ActionNoOp:
			plan.Summary.NoOp++
			continue
		case ir.ActionCreate:
			plan.Summary.Create++
		case ir.ActionUpdate:
			plan.Summary.Update++
		case ir.ActionReplace:
			plan.Summary.Replace++
		case ir.ActionDelete:
			plan.Summary.Delete++
		default:
			return nil, apperrors.Newf(apperrors.CodeInternal, "provider returned unknown action %q", resp.Action).
				WithResource(addr).WithOperation("plan")
		}

		change := &ir.Change{
			Address: addr,
			Action:  resp.Action,
			Desired: res,
			Prior:   prior,
		}
		if prior != nil {
			change.Diff = diffProperties(prior.Inputs, res.Properties)
		} else {
			change.Diff = createDiff(res.Properties)
		}
		plan.Changes = append(plan.Changes, change)
	}

	// Resources present in state but absent from the declaration are
	// destroyed, in reverse dependency order.
	removals := e.planRemovals(state, declared)
	plan.Changes = append(plan.Changes, removals...)
	plan.Summary.Delete += len(removals)

	return plan, nil
}

// PlanDestroy produces a plan that tears down everything in state.
func (e *Engine) PlanDestroy(ctx context.Context, state *ir.State) (*ir.Plan, error) {
	for _, res := range state.Resources {
		if err := e.registry.Load(ctx, res.Provider); err != nil {
			return nil, err
		}
	}

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp:   time.Now().UTC().Format(time.RFC3339),
			Environment: state.Environment,
			StateSerial: state.Serial,
		},
		Summary: &ir.PlanSummary{},
	}
	plan.Changes = e.planRemovals(state, nil)
	plan.Summary.Delete = len(plan.Changes)
	return plan, nil
}

func (e *Engine) planRemovals(state *ir.State, declared map[string]*ir.Resource) []*ir.Change {
	var changes []*ir.Change
	// State order is creation order; destroy walks it backwards so
	// dependents go before their dependencies.
	for i := len(state.Resources) - 1; i >= 0; i-- {
		res := state.Resources[i]
		if _, ok := declared[res.Address()]; ok {
			continue
		}
		changes = append(changes, &ir.Change{
			Address: res.Address(),
			Action:  ir.ActionDelete,
			Prior:   res,
			Diff:    deleteDiff(res.Inputs),
		})
	}
	return changes
}

func diffProperties(prior, desired map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff)

	keys := make(map[string]bool)
	for k := range prior {
		keys[k] = true
	}
	for k := range desired {
		keys[k] = true
	}

	for k := range keys {
		before, inPrior := prior[k]
		after, inDesired := desired[k]
		switch {
		case !inPrior:
			diff[k] = &ir.PropertyDiff{After: after, Action: "create"}
		case !inDesired:
			diff[k] = &ir.PropertyDiff{Before: before, Action: "delete"}
		case fmt.Sprintf("%v", before) != fmt.Sprintf("%v", after):
			diff[k] = &ir.PropertyDiff{Before: before, After: after, Action: "update"}
		}
	}
	return diff
}

func createDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff, len(props))
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{After: v, Action: "create"}
	}
	return diff
}

func deleteDiff(props map[string]any) map[string]*ir.PropertyDiff {
	diff := make(map[string]*ir.PropertyDiff, len(props))
	for k, v := range props {
		diff[k] = &ir.PropertyDiff{Before: v, Action: "delete"}
	}
	return diff
}
