package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/internal/provider"
)

func localDeclaration() *ir.Declaration {
	return &ir.Declaration{
		Environment: "staging",
		Resources: []*ir.Resource{
			{
				Type:     "local:compute.Instance",
				Name:     "web",
				Provider: "local",
				Properties: map[string]any{
					"image": "nginx:latest",
				},
			},
		},
		Outputs: []*ir.OutputSpec{
			{Name: "ec2_public_ip", Resource: "local:compute.Instance.web", Attribute: "public_ip"},
		},
	}
}

func TestEngine_Plan_Create(t *testing.T) {
	eng := New(provider.NewRegistry(nil))
	ctx := context.Background()

	decl := localDeclaration()
	state := ir.NewState("staging")

	plan, err := eng.Plan(ctx, decl, state)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, ir.ActionCreate, plan.Changes[0].Action)
	assert.Equal(t, "local:compute.Instance.web", plan.Changes[0].Address)
	assert.Equal(t, 1, plan.Summary.Create)

	// CREATE diffs show every declared property as new.
	assert.Contains(t, plan.Changes[0].Diff, "image")
	assert.Equal(t, "create", plan.Changes[0].Diff["image"].Action)
}

func TestEngine_Plan_IsPure(t *testing.T) {
	eng := New(provider.NewRegistry(nil))
	ctx := context.Background()

	state := ir.NewState("staging")

	// Planning twice must not record anything or change the answer.
	for i := 0; i < 2; i++ {
		plan, err := eng.Plan(ctx, localDeclaration(), state)
		require.NoError(t, err)
		assert.Len(t, plan.Changes, 1)
	}
	assert.Empty(t, state.Resources)
	assert.Equal(t, 0, state.Serial)
}

func TestEngine_ApplyThenPlan_Empty(t *testing.T) {
	eng := New(provider.NewRegistry(nil))
	ctx := context.Background()

	decl := localDeclaration()
	state := ir.NewState("staging")

	plan, err := eng.Plan(ctx, decl, state)
	require.NoError(t, err)

	newState, err := eng.Apply(ctx, plan, state, nil)
	require.NoError(t, err)
	require.Len(t, newState.Resources, 1)
	assert.Equal(t, 1, newState.Serial)
	assert.NotEmpty(t, newState.Lineage)

	// Second plan against the applied state is empty: apply is idempotent.
	replan, err := eng.Plan(ctx, decl, newState)
	require.NoError(t, err)
	assert.True(t, replan.Empty())
	assert.Equal(t, 1, replan.Summary.NoOp)
}

func TestEngine_Plan_DeleteRemovedResource(t *testing.T) {
	eng := New(provider.NewRegistry(nil))
	ctx := context.Background()

	decl := localDeclaration()
	state := ir.NewState("staging")

	plan, err := eng.Plan(ctx, decl, state)
	require.NoError(t, err)
	state, err = eng.Apply(ctx, plan, state, nil)
	require.NoError(t, err)

	// Drop the resource from the declaration; the plan must delete it.
	decl.Resources = nil
	decl.Outputs = nil

	plan, err = eng.Plan(ctx, decl, state)
	require.NoError(t, err)
	require.Len(t, plan.Changes, 1)
	assert.Equal(t, ir.ActionDelete, plan.Changes[0].Action)
	assert.Equal(t, 1, plan.Summary.Delete)

	state, err = eng.Apply(ctx, plan, state, nil)
	require.NoError(t, err)
	assert.Empty(t, state.Resources)
}

func TestEngine_PlanDestroy(t *testing.T) {
	eng := New(provider.NewRegistry(nil))
	ctx := context.Background()

	decl := &ir.Declaration{
		Environment: "staging",
		Resources: []*ir.Resource{
			{Type: "local:compute.Instance", Name: "web", Provider: "local",
				Properties: map[string]any{
					"group": "ref://local:net.Group/web/id",
				}},
			{Type: "local:net.Group", Name: "web", Provider: "local",
				Properties: map[string]any{"port": "22"}},
		},
	}
	state := ir.NewState("staging")

	plan, err := eng.Plan(ctx, decl, state)
	require.NoError(t, err)
	state, err = eng.Apply(ctx, plan, state, nil)
	require.NoError(t, err)
	require.Len(t, state.Resources, 2)

	destroy, err := eng.PlanDestroy(ctx, state)
	require.NoError(t, err)
	require.Len(t, destroy.Changes, 2)
	// Dependent first: the instance references the group.
	assert.Equal(t, "local:compute.Instance.web", destroy.Changes[0].Address)
	assert.Equal(t, "local:net.Group.web", destroy.Changes[1].Address)

	state, err = eng.Apply(ctx, destroy, state, nil)
	require.NoError(t, err)
	assert.Empty(t, state.Resources)
}

func TestEngine_Plan_InvalidDeclaration(t *testing.T) {
	eng := New(provider.NewRegistry(nil))

	decl := localDeclaration()
	decl.Environment = ""

	_, err := eng.Plan(context.Background(), decl, ir.NewState("staging"))
	assert.Error(t, err)
}

func TestEngine_Apply_ResolvesReferences(t *testing.T) {
	eng := New(provider.NewRegistry(nil))
	ctx := context.Background()

	decl := &ir.Declaration{
		Environment: "staging",
		Resources: []*ir.Resource{
			{Type: "local:compute.Instance", Name: "web", Provider: "local",
				Properties: map[string]any{
					"group": "ref://local:net.Group/web/id",
				}},
			{Type: "local:net.Group", Name: "web", Provider: "local",
				Properties: map[string]any{"port": "22"}},
		},
	}
	state := ir.NewState("staging")

	plan, err := eng.Plan(ctx, decl, state)
	require.NoError(t, err)
	state, err = eng.Apply(ctx, plan, state, nil)
	require.NoError(t, err)

	// The instance's group reference resolved to the group's assigned id.
	instance, ok := state.Lookup("local:compute.Instance.web")
	require.True(t, ok)
	assert.Equal(t, "local-web", instance.Inputs["group"])
	assert.Equal(t, []string{"local:net.Group.web"}, instance.Dependencies)
}
