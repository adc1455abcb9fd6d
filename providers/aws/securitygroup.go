package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/pkg/provider"
)

// RuleConfig is one ingress or egress entry on a security group.
type RuleConfig struct {
	Protocol   string   `json:"protocol"` // "tcp", "udp", "-1" for all
	FromPort   int32    `json:"from_port"`
	ToPort     int32    `json:"to_port"`
	CidrBlocks []string `json:"cidr_blocks"`
}

// SecurityGroupConfig is the desired configuration for a security group.
type SecurityGroupConfig struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	VpcID       string            `json:"vpc_id"`
	Ingress     []RuleConfig      `json:"ingress"`
	Egress      []RuleConfig      `json:"egress"`
	Tags        map[string]string `json:"tags"`
}

type SecurityGroupState struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (p *Provider) planSecurityGroup(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	addr := TypeSecurityGroup + "." + req.Name

	if req.PriorJSON == nil {
		return &provider.PlanResponse{Action: ir.ActionCreate}, nil
	}

	var prior SecurityGroupState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStateParse, "failed to decode prior security group state").
			WithResource(addr).WithOperation("plan")
	}

	_, err := p.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		GroupIds: []string{prior.ID},
	})
	if err != nil {
		if notFound(err) {
			return &provider.PlanResponse{Action: ir.ActionCreate}, nil
		}
		return nil, classify(err, addr, "plan")
	}

	// Rule sets are treated as immutable: any change replaces the group.
	return naivePlan(req.DesiredJSON, req.PriorInputsJSON), nil
}

func (p *Provider) applySecurityGroup(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	addr := TypeSecurityGroup + "." + req.Name

	var desired SecurityGroupConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderRejected, "failed to decode desired security group config").
			WithResource(addr).WithOperation("apply")
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}
	if desired.Description == "" {
		desired.Description = "managed by shiplift"
	}

	input := &ec2.CreateSecurityGroupInput{
		GroupName:   aws.String(desired.Name),
		Description: aws.String(desired.Description),
	}
	if desired.VpcID != "" {
		input.VpcId = aws.String(desired.VpcID)
	}
	if len(desired.Tags) > 0 {
		input.TagSpecifications = []types.TagSpecification{{
			ResourceType: types.ResourceTypeSecurityGroup,
			Tags:         toEC2Tags(desired.Tags),
		}}
	}

	resp, err := p.ec2.CreateSecurityGroup(ctx, input)
	if err != nil {
		return nil, classify(err, addr, "apply")
	}
	groupID := aws.ToString(resp.GroupId)

	if len(desired.Ingress) > 0 {
		_, err = p.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: toIPPermissions(desired.Ingress),
		})
		if err != nil {
			return nil, classify(err, addr, "apply")
		}
	}
	if len(desired.Egress) > 0 {
		_, err = p.ec2.AuthorizeSecurityGroupEgress(ctx, &ec2.AuthorizeSecurityGroupEgressInput{
			GroupId:       aws.String(groupID),
			IpPermissions: toIPPermissions(desired.Egress),
		})
		if err != nil {
			return nil, classify(err, addr, "apply")
		}
	}

	return &provider.ApplyResponse{Outputs: map[string]any{
		"id":   groupID,
		"name": desired.Name,
	}}, nil
}

func (p *Provider) deleteSecurityGroup(ctx context.Context, req *provider.DeleteRequest) error {
	addr := TypeSecurityGroup + "." + req.Name

	var prior SecurityGroupState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil || prior.ID == "" {
		return nil
	}

	_, err := p.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
		GroupId: aws.String(prior.ID),
	})
	if err != nil {
		if notFound(err) {
			return nil
		}
		return classify(err, addr, "delete")
	}
	return nil
}

func toIPPermissions(rules []RuleConfig) []types.IpPermission {
	perms := make([]types.IpPermission, 0, len(rules))
	for _, rule := range rules {
		perm := types.IpPermission{
			IpProtocol: aws.String(rule.Protocol),
		}
		if rule.Protocol != "-1" {
			perm.FromPort = aws.Int32(rule.FromPort)
			perm.ToPort = aws.Int32(rule.ToPort)
		}
		for _, cidr := range rule.CidrBlocks {
			perm.IpRanges = append(perm.IpRanges, types.IpRange{CidrIp: aws.String(cidr)})
		}
		perms = append(perms, perm)
	}
	return perms
}
