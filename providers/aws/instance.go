package aws

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/pkg/provider"
)

const instanceRunningWait = 5 * time.Minute

// InstanceConfig is the desired configuration for a compute instance.
type InstanceConfig struct {
	AMI              string            `json:"ami"`
	InstanceType     string            `json:"instance_type"`
	KeyName          string            `json:"key_name"`
	SecurityGroupIDs []string          `json:"security_group_ids"`
	Tags             map[string]string `json:"tags"`
}

// InstanceState is what the provider records after an apply.
type InstanceState struct {
	ID        string            `json:"id"`
	PublicIP  string            `json:"public_ip"`
	PrivateIP string            `json:"private_ip"`
	AMI       string            `json:"ami"`
	Type      string            `json:"instance_type"`
	Tags      map[string]string `json:"tags"`
}

func (p *Provider) planInstance(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	addr := TypeInstance + "." + req.Name

	if req.PriorJSON == nil {
		return &provider.PlanResponse{Action: ir.ActionCreate}, nil
	}

	var prior InstanceState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStateParse, "failed to decode prior instance state").
			WithResource(addr).WithOperation("plan")
	}
	var desired InstanceConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderRejected, "failed to decode desired instance config").
			WithResource(addr).WithOperation("plan")
	}

	inst, err := p.describeInstance(ctx, prior.ID)
	if err != nil {
		if notFound(err) {
			return &provider.PlanResponse{Action: ir.ActionCreate}, nil
		}
		return nil, classify(err, addr, "plan")
	}
	if inst == nil || inst.State.Name == types.InstanceStateNameTerminated {
		return &provider.PlanResponse{Action: ir.ActionCreate}, nil
	}

	// AMI and instance class are immutable on a live instance.
	if aws.ToString(inst.ImageId) != desired.AMI {
		return &provider.PlanResponse{Action: ir.ActionReplace, ChangedAttributes: []string{"ami"}}, nil
	}
	if string(inst.InstanceType) != desired.InstanceType {
		return &provider.PlanResponse{Action: ir.ActionReplace, ChangedAttributes: []string{"instance_type"}}, nil
	}
	if aws.ToString(inst.KeyName) != desired.KeyName {
		return &provider.PlanResponse{Action: ir.ActionReplace, ChangedAttributes: []string{"key_name"}}, nil
	}

	// Tags reconcile in place.
	if !tagsEqual(desired.Tags, instanceTags(inst)) {
		return &provider.PlanResponse{Action: ir.ActionUpdate, ChangedAttributes: []string{"tags"}}, nil
	}

	return &provider.PlanResponse{Action: ir.ActionNoOp}, nil
}

func (p *Provider) applyInstance(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	addr := TypeInstance + "." + req.Name

	var desired InstanceConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderRejected, "failed to decode desired instance config").
			WithResource(addr).WithOperation("apply")
	}

	// In-place update: only tags are mutable, everything else planned as REPLACE.
	if req.PriorJSON != nil {
		var prior InstanceState
		if err := json.Unmarshal(req.PriorJSON, &prior); err == nil && prior.ID != "" {
			if err := p.writeTags(ctx, prior.ID, desired.Tags); err != nil {
				return nil, classify(err, addr, "apply")
			}
			prior.Tags = desired.Tags
			return &provider.ApplyResponse{Outputs: instanceOutputs(&prior)}, nil
		}
	}

	runInput := &ec2.RunInstancesInput{
		ImageId:      aws.String(desired.AMI),
		InstanceType: types.InstanceType(desired.InstanceType),
		MinCount:     aws.Int32(1),
		MaxCount:     aws.Int32(1),
	}
	if desired.KeyName != "" {
		runInput.KeyName = aws.String(desired.KeyName)
	}
	if len(desired.SecurityGroupIDs) > 0 {
		runInput.SecurityGroupIds = desired.SecurityGroupIDs
	}
	if len(desired.Tags) > 0 {
		runInput.TagSpecifications = []types.TagSpecification{{
			ResourceType: types.ResourceTypeInstance,
			Tags:         toEC2Tags(desired.Tags),
		}}
	}

	resp, err := p.ec2.RunInstances(ctx, runInput)
	if err != nil {
		return nil, classify(err, addr, "apply")
	}
	if len(resp.Instances) == 0 {
		return nil, apperrors.New(apperrors.CodeProviderAPI, "RunInstances returned no instances").
			WithResource(addr).WithOperation("apply")
	}
	id := aws.ToString(resp.Instances[0].InstanceId)

	// The public address is only assigned once the instance is running,
	// so wait before reading attributes back.
	waiter := ec2.NewInstanceRunningWaiter(p.ec2)
	out, err := waiter.WaitForOutput(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	}, instanceRunningWait)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderAPI, "instance never reached running state").
			WithResource(addr).WithOperation("apply")
	}
	if len(out.Reservations) == 0 || len(out.Reservations[0].Instances) == 0 {
		return nil, apperrors.New(apperrors.CodeProviderAPI, "instance missing from waiter output").
			WithResource(addr).WithOperation("apply")
	}
	inst := out.Reservations[0].Instances[0]

	state := InstanceState{
		ID:        id,
		PublicIP:  aws.ToString(inst.PublicIpAddress),
		PrivateIP: aws.ToString(inst.PrivateIpAddress),
		AMI:       desired.AMI,
		Type:      desired.InstanceType,
		Tags:      desired.Tags,
	}
	return &provider.ApplyResponse{Outputs: instanceOutputs(&state)}, nil
}

func (p *Provider) deleteInstance(ctx context.Context, req *provider.DeleteRequest) error {
	addr := TypeInstance + "." + req.Name

	var prior InstanceState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil || prior.ID == "" {
		return nil
	}

	_, err := p.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: []string{prior.ID},
	})
	if err != nil {
		if notFound(err) {
			return nil
		}
		return classify(err, addr, "delete")
	}
	return nil
}

func (p *Provider) describeInstance(ctx context.Context, id string) (*types.Instance, error) {
	resp, err := p.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{id},
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Reservations) == 0 || len(resp.Reservations[0].Instances) == 0 {
		return nil, nil
	}
	return &resp.Reservations[0].Instances[0], nil
}

func (p *Provider) writeTags(ctx context.Context, id string, tags map[string]string) error {
	if len(tags) == 0 {
		return nil
	}
	_, err := p.ec2.CreateTags(ctx, &ec2.CreateTagsInput{
		Resources: []string{id},
		Tags:      toEC2Tags(tags),
	})
	return err
}

func instanceOutputs(state *InstanceState) map[string]any {
	return map[string]any{
		"id":            state.ID,
		"public_ip":     state.PublicIP,
		"private_ip":    state.PrivateIP,
		"ami":           state.AMI,
		"instance_type": state.Type,
		"tags":          state.Tags,
	}
}

func instanceTags(inst *types.Instance) map[string]string {
	tags := make(map[string]string, len(inst.Tags))
	for _, t := range inst.Tags {
		tags[aws.ToString(t.Key)] = aws.ToString(t.Value)
	}
	return tags
}

func toEC2Tags(tags map[string]string) []types.Tag {
	out := make([]types.Tag, 0, len(tags))
	for k, v := range tags {
		out = append(out, types.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out
}

func tagsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}
