// Package aws adapts the reconciler's provider contract onto the AWS
// EC2 API. It manages the three resource kinds a deployment environment
// needs: a key pair, a security group, and a single instance.
package aws

import (
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/smithy-go"
	jsoniter "github.com/json-iterator/go"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/pkg/provider"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	TypeInstance      = "aws:ec2.Instance"
	TypeSecurityGroup = "aws:ec2.SecurityGroup"
	TypeKeyPair       = "aws:ec2.KeyPair"
)

// EC2API is the subset of the EC2 client the provider uses. Tests
// substitute a fake.
type EC2API interface {
	RunInstances(ctx context.Context, params *ec2.RunInstancesInput, optFns ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	CreateTags(ctx context.Context, params *ec2.CreateTagsInput, optFns ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error)
	CreateSecurityGroup(ctx context.Context, params *ec2.CreateSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
	AuthorizeSecurityGroupIngress(ctx context.Context, params *ec2.AuthorizeSecurityGroupIngressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error)
	AuthorizeSecurityGroupEgress(ctx context.Context, params *ec2.AuthorizeSecurityGroupEgressInput, optFns ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupEgressOutput, error)
	ImportKeyPair(ctx context.Context, params *ec2.ImportKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.ImportKeyPairOutput, error)
	CreateKeyPair(ctx context.Context, params *ec2.CreateKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.CreateKeyPairOutput, error)
	DeleteKeyPair(ctx context.Context, params *ec2.DeleteKeyPairInput, optFns ...func(*ec2.Options)) (*ec2.DeleteKeyPairOutput, error)
	DescribeKeyPairs(ctx context.Context, params *ec2.DescribeKeyPairsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeKeyPairsOutput, error)
}

type Provider struct {
	region string
	ec2    EC2API
}

func New() *Provider {
	return &Provider{}
}

// NewWithClient builds a provider around an injected EC2 API, used in tests.
func NewWithClient(api EC2API) *Provider {
	return &Provider{ec2: api, region: "us-east-1"}
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	if p.ec2 != nil {
		return nil
	}

	region := settings["region"]
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if profile := settings["profile"]; profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load AWS config: %w", err)
	}

	p.region = region
	p.ec2 = ec2.NewFromConfig(cfg)
	return nil
}

func (p *Provider) Plan(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	switch req.Type {
	case TypeInstance:
		return p.planInstance(ctx, req)
	case TypeSecurityGroup:
		return p.planSecurityGroup(ctx, req)
	case TypeKeyPair:
		return p.planKeyPair(ctx, req)
	}
	return nil, apperrors.Newf(apperrors.CodeProviderRejected, "unknown resource type %s", req.Type).
		WithResource(fmt.Sprintf("%s.%s", req.Type, req.Name)).WithOperation("plan")
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	switch req.Type {
	case TypeInstance:
		return p.applyInstance(ctx, req)
	case TypeSecurityGroup:
		return p.applySecurityGroup(ctx, req)
	case TypeKeyPair:
		return p.applyKeyPair(ctx, req)
	}
	return nil, apperrors.Newf(apperrors.CodeProviderRejected, "unknown resource type %s", req.Type).
		WithResource(fmt.Sprintf("%s.%s", req.Type, req.Name)).WithOperation("apply")
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	switch req.Type {
	case TypeInstance:
		return p.deleteInstance(ctx, req)
	case TypeSecurityGroup:
		return p.deleteSecurityGroup(ctx, req)
	case TypeKeyPair:
		return p.deleteKeyPair(ctx, req)
	}
	return apperrors.Newf(apperrors.CodeProviderRejected, "unknown resource type %s", req.Type).
		WithResource(fmt.Sprintf("%s.%s", req.Type, req.Name)).WithOperation("delete")
}

// naivePlan is the fallback diff when the provider cannot describe the
// remote resource: byte-compare desired against prior inputs.
func naivePlan(desired, prior []byte) *provider.PlanResponse {
	if prior == nil {
		return &provider.PlanResponse{Action: ir.ActionCreate}
	}
	if string(desired) != string(prior) {
		return &provider.PlanResponse{Action: ir.ActionReplace}
	}
	return &provider.PlanResponse{Action: ir.ActionNoOp}
}

// classify wraps an EC2 API error, mapping parameter validation failures
// to PROVIDER_REJECTED so the engine knows not to retry them.
func classify(err error, addr, op string) error {
	if err == nil {
		return nil
	}
	var ae smithy.APIError
	if apperrors.As(err, &ae) && rejectedCode(ae.ErrorCode()) {
		return apperrors.Wrap(err, apperrors.CodeProviderRejected, ae.ErrorCode()).
			WithResource(addr).WithOperation(op)
	}
	return apperrors.Wrap(err, apperrors.CodeProviderAPI, "EC2 API call failed").
		WithResource(addr).WithOperation(op)
}

// rejectedCode reports whether an EC2 error code indicates the request
// itself was invalid, as opposed to a transient API condition.
func rejectedCode(code string) bool {
	prefixes := []string{"Invalid", "Malformed", "Missing", "ValidationError", "Unsupported"}
	for _, prefix := range prefixes {
		if strings.HasPrefix(code, prefix) {
			return true
		}
	}
	return false
}

// notFound reports whether err is one of the EC2 "does not exist" codes.
func notFound(err error) bool {
	var ae smithy.APIError
	if apperrors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "InvalidInstanceID.NotFound", "InvalidGroup.NotFound", "InvalidKeyPair.NotFound":
			return true
		}
	}
	return false
}
