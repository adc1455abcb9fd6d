// Package provider defines the contract between the reconciliation
// engine and resource providers. Providers are in-process adapters over
// a cloud API; the engine never talks to a cloud directly.
package provider

import (
	"context"

	"github.com/shiplift-io/shiplift/internal/ir"
)

// Interface is implemented by every resource provider.
//
// Plan must be a pure read: it may describe remote resources but never
// mutate them. Apply and Delete carry the side effects.
type Interface interface {
	// Configure prepares the provider with backend settings (region,
	// credentials profile). Called once before any Plan/Apply.
	Configure(ctx context.Context, settings map[string]string) error

	// Plan decides what action reconciles the desired configuration
	// with prior state. Invalid desired parameters are reported as
	// PROVIDER_REJECTED errors.
	Plan(ctx context.Context, req *PlanRequest) (*PlanResponse, error)

	// Apply executes a create or update and returns the provider-assigned
	// attributes for the resource.
	Apply(ctx context.Context, req *ApplyRequest) (*ApplyResponse, error)

	// Delete removes the resource described by prior state. Deleting an
	// already-absent resource is not an error.
	Delete(ctx context.Context, req *DeleteRequest) error
}

// PlanRequest carries the desired configuration and prior state for one
// resource, both as JSON documents the provider decodes into its own
// typed configs.
type PlanRequest struct {
	Type        string
	Name        string
	DesiredJSON []byte
	// PriorJSON holds the provider-assigned attributes from the last
	// apply; nil when the resource has never been applied.
	PriorJSON []byte
	// PriorInputsJSON holds the configuration that produced PriorJSON,
	// for providers that diff declared inputs rather than describing
	// the remote resource.
	PriorInputsJSON []byte
}

type PlanResponse struct {
	Action ir.Action
	// ChangedAttributes names the attributes that drove a non-NOOP
	// decision, for plan rendering.
	ChangedAttributes []string
}

type ApplyRequest struct {
	Type        string
	Name        string
	DesiredJSON []byte
	PriorJSON   []byte
}

type ApplyResponse struct {
	// Outputs are the provider-assigned attributes recorded in state,
	// e.g. instance id and public IP.
	Outputs map[string]any
}

type DeleteRequest struct {
	Type      string
	Name      string
	PriorJSON []byte
}
