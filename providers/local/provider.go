// Package local is an in-memory provider used for dry runs and tests.
// Resources exist only for the lifetime of the process; instances report
// the loopback address so readiness checks can run against a local
// listener.
package local

import (
	"context"
	"fmt"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/pkg/provider"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type Provider struct {
	mu      sync.Mutex
	applied map[string][]byte // address -> last applied desired config
}

func New() *Provider {
	return &Provider{applied: make(map[string][]byte)}
}

func (p *Provider) Configure(ctx context.Context, settings map[string]string) error {
	return nil
}

func (p *Provider) Plan(ctx context.Context, req *provider.PlanRequest) (*provider.PlanResponse, error) {
	if req.PriorJSON == nil {
		return &provider.PlanResponse{Action: ir.ActionCreate}, nil
	}
	if string(req.DesiredJSON) == string(req.PriorInputsJSON) {
		return &provider.PlanResponse{Action: ir.ActionNoOp}, nil
	}
	return &provider.PlanResponse{Action: ir.ActionReplace}, nil
}

func (p *Provider) Apply(ctx context.Context, req *provider.ApplyRequest) (*provider.ApplyResponse, error) {
	var desired map[string]any
	if err := json.Unmarshal(req.DesiredJSON, &desired); err != nil {
		return nil, fmt.Errorf("failed to decode desired config: %w", err)
	}

	p.mu.Lock()
	p.applied[addrOf(req.Type, req.Name)] = req.DesiredJSON
	p.mu.Unlock()

	outputs := map[string]any{
		"id": fmt.Sprintf("local-%s", req.Name),
	}
	for k, v := range desired {
		outputs[k] = v
	}
	if req.Type == "local:compute.Instance" {
		if _, ok := outputs["public_ip"]; !ok {
			outputs["public_ip"] = "127.0.0.1"
		}
		if _, ok := outputs["private_ip"]; !ok {
			outputs["private_ip"] = "127.0.0.1"
		}
	}

	return &provider.ApplyResponse{Outputs: outputs}, nil
}

func (p *Provider) Delete(ctx context.Context, req *provider.DeleteRequest) error {
	p.mu.Lock()
	delete(p.applied, addrOf(req.Type, req.Name))
	p.mu.Unlock()
	return nil
}

// Applied reports whether the provider has applied the given resource
// in this process. Used by tests.
func (p *Provider) Applied(typ, name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.applied[addrOf(typ, name)]
	return ok
}

func addrOf(typ, name string) string {
	return fmt.Sprintf("%s.%s", typ, name)
}
