package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/pkg/provider"
)

// KeyPairConfig references an SSH key pair. When PublicKey is set the
// key material is imported; otherwise a new pair is created and AWS
// holds the private key.
type KeyPairConfig struct {
	Name      string `json:"name"`
	PublicKey string `json:"public_key"`
}

type KeyPairState struct {
	KeyName   string `json:"key_name"`
	KeyPairID string `json:"key_pair_id"`
}

func (p *Provider) planKeyPair(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	addr := TypeKeyPair + "." + req.Name

	if req.PriorJSON == nil {
		return &provider.PlanResponse{Action: ir.ActionCreate}, nil
	}

	var prior KeyPairState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStateParse, "failed to decode prior key pair state").
			WithResource(addr).WithOperation("plan")
	}

	_, err := p.ec2.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		KeyNames: []string{prior.KeyName},
	})
	if err != nil {
		if notFound(err) {
			return &provider.PlanResponse{Action: ir.ActionCreate}, nil
		}
		return nil, classify(err, addr, "plan")
	}

	return naivePlan(req.DesiredJSON, req.PriorInputsJSON), nil
}

func (p *Provider) applyKeyPair(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	addr := TypeKeyPair + "." + req.Name

	var desired KeyPairConfig
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeProviderRejected, "failed to decode desired key pair config").
			WithResource(addr).WithOperation("apply")
	}
	if desired.Name == "" {
		desired.Name = req.Name
	}

	var keyName, keyPairID string
	if desired.PublicKey != "" {
		resp, err := p.ec2.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
			KeyName:           aws.String(desired.Name),
			PublicKeyMaterial: []byte(desired.PublicKey),
		})
		if err != nil {
			return nil, classify(err, addr, "apply")
		}
		keyName = aws.ToString(resp.KeyName)
		keyPairID = aws.ToString(resp.KeyPairId)
	} else {
		resp, err := p.ec2.CreateKeyPair(ctx, &ec2.CreateKeyPairInput{
			KeyName: aws.String(desired.Name),
		})
		if err != nil {
			return nil, classify(err, addr, "apply")
		}
		keyName = aws.ToString(resp.KeyName)
		keyPairID = aws.ToString(resp.KeyPairId)
	}

	return &provider.ApplyResponse{Outputs: map[string]any{
		"key_name":    keyName,
		"key_pair_id": keyPairID,
	}}, nil
}

func (p *Provider) deleteKeyPair(ctx context.Context, req *provider.DeleteRequest) error {
	addr := TypeKeyPair + "." + req.Name

	var prior KeyPairState
	if err := json.Unmarshal(req.PriorJSON, &prior); err != nil || prior.KeyName == "" {
		return nil
	}

	_, err := p.ec2.DeleteKeyPair(ctx, &ec2.DeleteKeyPairInput{
		KeyName: aws.String(prior.KeyName),
	})
	if err != nil {
		if notFound(err) {
			return nil
		}
		return classify(err, addr, "delete")
	}
	return nil
}
