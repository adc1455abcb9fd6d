package outputs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
)

func appliedState() *ir.State {
	s := ir.NewState("staging")
	s.Upsert(&ir.ResourceState{
		Type: "aws:ec2.Instance", Name: "web", Provider: "aws",
		Outputs: map[string]any{
			"id":        "i-0abc123",
			"public_ip": "203.0.113.7",
			"empty":     "",
		},
	})
	return s
}

func TestPublish(t *testing.T) {
	specs := []*ir.OutputSpec{
		{Name: "ec2_public_ip", Resource: "aws:ec2.Instance.web", Attribute: "public_ip"},
		{Name: "instance_id", Resource: "aws:ec2.Instance.web", Attribute: "id"},
	}

	set, err := Publish(specs, appliedState())
	require.NoError(t, err)
	assert.Equal(t, ir.OutputSet{
		"ec2_public_ip": "203.0.113.7",
		"instance_id":   "i-0abc123",
	}, set)
}

func TestPublish_MissingResource(t *testing.T) {
	specs := []*ir.OutputSpec{
		{Name: "ec2_public_ip", Resource: "aws:ec2.Instance.gone", Attribute: "public_ip"},
	}

	_, err := Publish(specs, appliedState())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMissingOutput, apperrors.CodeOf(err))
}

func TestPublish_MissingAttribute(t *testing.T) {
	specs := []*ir.OutputSpec{
		{Name: "ec2_public_ip", Resource: "aws:ec2.Instance.web", Attribute: "nonexistent"},
	}

	_, err := Publish(specs, appliedState())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMissingOutput, apperrors.CodeOf(err))
}

func TestPublish_EmptyValue(t *testing.T) {
	specs := []*ir.OutputSpec{
		{Name: "nothing", Resource: "aws:ec2.Instance.web", Attribute: "empty"},
	}

	_, err := Publish(specs, appliedState())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeMissingOutput, apperrors.CodeOf(err))
}

func TestPublish_AllOrNothing(t *testing.T) {
	specs := []*ir.OutputSpec{
		{Name: "instance_id", Resource: "aws:ec2.Instance.web", Attribute: "id"},
		{Name: "broken", Resource: "aws:ec2.Instance.web", Attribute: "nonexistent"},
	}

	set, err := Publish(specs, appliedState())
	require.Error(t, err)
	assert.Nil(t, set)
}

func TestNames_Sorted(t *testing.T) {
	set := ir.OutputSet{"zeta": "1", "alpha": "2", "mid": "3"}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, Names(set))
}
