package engine

import (
	"context"

	"github.com/google/uuid"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/internal/logging"
	pkgprovider "github.com/shiplift-io/shiplift/pkg/provider"
)

// ApplyEvent reports per-resource progress during an apply.
type ApplyEvent struct {
	Address string
	Action  ir.Action
	// Phase is "start", "done", or "error".
	Phase string
	Err   error
}

// ApplyOptions tunes a single apply run.
type ApplyOptions struct {
	// Retry overrides the default retry policy for transient errors.
	Retry *RetryPolicy
	// OnEvent, when set, receives progress events as changes execute.
	OnEvent func(ApplyEvent)
}

// Apply executes the plan's changes in order, mutating state as each
// change lands. Changes that complete stay recorded even when a later
// change fails, so a re-run converges instead of starting over. The
// returned state is always meaningful; callers must persist it whether
// or not err is nil.
func (e *Engine) Apply(ctx context.Context, plan *ir.Plan, state *ir.State, opts *ApplyOptions) (*ir.State, error) {
	if opts == nil {
		opts = &ApplyOptions{}
	}
	policy := opts.Retry
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	emit := opts.OnEvent
	if emit == nil {
		emit = func(ApplyEvent) {}
	}

	if state.Lineage == "" {
		state.Lineage = uuid.NewString()
	}
	if plan.Empty() {
		return state, nil
	}

	for _, change := range plan.Changes {
		emit(ApplyEvent{Address: change.Address, Action: change.Action, Phase: "start"})

		if err := e.applyChange(ctx, change, state, policy); err != nil {
			emit(ApplyEvent{Address: change.Address, Action: change.Action, Phase: "error", Err: err})
			state.Serial++
			return state, err
		}
		emit(ApplyEvent{Address: change.Address, Action: change.Action, Phase: "done"})
	}

	state.Serial++
	return state, nil
}

func (e *Engine) applyChange(ctx context.Context, change *ir.Change, state *ir.State, policy *RetryPolicy) error {
	opCtx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	switch change.Action {
	case ir.ActionDelete:
		return e.deleteResource(opCtx, change, state, policy)
	case ir.ActionReplace:
		if err := e.deleteResource(opCtx, change, state, policy); err != nil {
			return err
		}
		return e.createOrUpdate(opCtx, change, state, policy)
	case ir.ActionCreate, ir.ActionUpdate:
		return e.createOrUpdate(opCtx, change, state, policy)
	case ir.ActionNoOp:
		return nil
	default:
		return apperrors.Newf(apperrors.CodeInternal, "unknown change action %q", change.Action).
			WithResource(change.Address).WithOperation("apply")
	}
}

func (e *Engine) createOrUpdate(ctx context.Context, change *ir.Change, state *ir.State, policy *RetryPolicy) error {
	res := change.Desired
	addr := change.Address

	prov, err := e.registry.Get(res.Provider)
	if err != nil {
		return err
	}

	// References resolve now, against the state accumulated by earlier
	// changes in this same run.
	resolved := resolveProperties(res, state)
	if unresolved := extractRefs(resolved); len(unresolved) > 0 {
		return apperrors.Newf(apperrors.CodeProviderRejected,
			"unresolved reference %s: target has no such attribute in state", unresolved[0]).
			WithResource(addr).WithOperation("apply")
	}

	desiredJSON, err := json.Marshal(resolved)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeInternal, "failed to encode resolved properties").
			WithResource(addr).WithOperation("apply")
	}
	// Only an in-place update carries the prior attributes: a replace
	// already deleted the old resource, so its provider must create a
	// fresh one rather than patch the terminated prior.
	var priorJSON []byte
	if change.Action == ir.ActionUpdate && change.Prior != nil {
		priorJSON, _ = json.Marshal(change.Prior.Outputs)
	}

	var resp *pkgprovider.ApplyResponse
	err = RetryWithBackoff(ctx, policy, func() error {
		var applyErr error
		resp, applyErr = prov.Apply(ctx, &pkgprovider.ApplyRequest{
			Type:        res.Type,
			Name:        res.Name,
			DesiredJSON: desiredJSON,
			PriorJSON:   priorJSON,
		})
		return applyErr
	}, IsTransientError)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeProviderAPI, "apply failed").
			WithResource(addr).WithOperation("apply")
	}

	logging.Debug("resource applied", "address", addr, "action", change.Action)

	state.Upsert(&ir.ResourceState{
		Type:         res.Type,
		Name:         res.Name,
		Provider:     res.Provider,
		Inputs:       resolved,
		Outputs:      resp.Outputs,
		Dependencies: dependenciesOf(res),
	})
	return nil
}

func (e *Engine) deleteResource(ctx context.Context, change *ir.Change, state *ir.State, policy *RetryPolicy) error {
	prior := change.Prior
	if prior == nil {
		return nil
	}
	addr := change.Address

	prov, err := e.registry.Get(prior.Provider)
	if err != nil {
		return err
	}

	priorJSON, _ := json.Marshal(prior.Outputs)
	err = RetryWithBackoff(ctx, policy, func() error {
		return prov.Delete(ctx, &pkgprovider.DeleteRequest{
			Type:      prior.Type,
			Name:      prior.Name,
			PriorJSON: priorJSON,
		})
	}, IsTransientError)
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeProviderAPI, "delete failed").
			WithResource(addr).WithOperation("delete")
	}

	logging.Debug("resource deleted", "address", addr)
	state.Remove(addr)
	return nil
}

// dependenciesOf records the addresses a resource binds to, so destroys
// from state alone can still order correctly.
func dependenciesOf(res *ir.Resource) []string {
	seen := make(map[string]bool)
	var deps []string
	add := func(addr string) {
		if addr != "" && !seen[addr] {
			seen[addr] = true
			deps = append(deps, addr)
		}
	}
	for _, dep := range res.DependsOn {
		add(dep)
	}
	for _, ref := range extractRefs(res.Properties) {
		addr, _ := splitRef(ref)
		add(addr)
	}
	return deps
}
