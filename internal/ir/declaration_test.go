package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDeclaration() *Declaration {
	return &Declaration{
		Environment: "staging",
		Region:      "us-east-1",
		Resources: []*Resource{
			{
				Type:     "aws:ec2.KeyPair",
				Name:     "deploy",
				Provider: "aws",
				Properties: map[string]any{
					"key_name": "testkey",
				},
			},
			{
				Type:     "aws:ec2.Instance",
				Name:     "web",
				Provider: "aws",
				Properties: map[string]any{
					"ami":           "ami-0953476d60561c955",
					"instance_type": "t2.micro",
				},
			},
		},
		Outputs: []*OutputSpec{
			{Name: "ec2_public_ip", Resource: "aws:ec2.Instance.web", Attribute: "public_ip"},
		},
	}
}

func TestDeclaration_Validate(t *testing.T) {
	require.NoError(t, validDeclaration().Validate())
}

func TestDeclaration_Validate_NoEnvironment(t *testing.T) {
	d := validDeclaration()
	d.Environment = ""
	assert.ErrorContains(t, d.Validate(), "environment")
}

func TestDeclaration_Validate_DuplicateAddress(t *testing.T) {
	d := validDeclaration()
	d.Resources = append(d.Resources, &Resource{
		Type:     "aws:ec2.Instance",
		Name:     "web",
		Provider: "aws",
	})
	assert.ErrorContains(t, d.Validate(), "duplicate")
}

func TestDeclaration_Validate_OutputUnknownResource(t *testing.T) {
	d := validDeclaration()
	d.Outputs = append(d.Outputs, &OutputSpec{
		Name:      "bogus",
		Resource:  "aws:ec2.Instance.missing",
		Attribute: "id",
	})
	assert.ErrorContains(t, d.Validate(), "unknown resource")
}

func TestDeclaration_Validate_MissingProvider(t *testing.T) {
	d := validDeclaration()
	d.Resources[0].Provider = ""
	assert.ErrorContains(t, d.Validate(), "provider")
}

func TestResource_Address(t *testing.T) {
	r := &Resource{Type: "aws:ec2.Instance", Name: "web"}
	assert.Equal(t, "aws:ec2.Instance.web", r.Address())
}

func TestState_UpsertLookupRemove(t *testing.T) {
	s := NewState("staging")

	res := &ResourceState{Type: "aws:ec2.Instance", Name: "web", Provider: "aws"}
	s.Upsert(res)
	got, ok := s.Lookup("aws:ec2.Instance.web")
	require.True(t, ok)
	assert.Equal(t, res, got)

	// Upsert replaces in place, preserving position.
	updated := &ResourceState{Type: "aws:ec2.Instance", Name: "web", Provider: "aws",
		Outputs: map[string]any{"id": "i-123"}}
	s.Upsert(updated)
	require.Len(t, s.Resources, 1)
	got, _ = s.Lookup("aws:ec2.Instance.web")
	assert.Equal(t, "i-123", got.Outputs["id"])

	s.Remove("aws:ec2.Instance.web")
	_, ok = s.Lookup("aws:ec2.Instance.web")
	assert.False(t, ok)
}
