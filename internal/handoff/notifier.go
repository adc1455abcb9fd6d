// Package handoff delivers the deployment trigger to the provisioned
// host once readiness has passed. The reconciler's job ends when the
// host has been told what to run; application-level health is out of
// scope.
package handoff

import "context"

// Target identifies where and what to hand off.
type Target struct {
	// Host is the address the readiness gate already verified.
	Host string
	// Port is the SSH port, normally 22.
	Port int
	// User is the remote login user.
	User string
	// Image is the container image the host should run.
	Image string
	// ContainerName names the container so a re-deploy replaces it.
	ContainerName string
}

// Notifier triggers a deployment on a ready host.
type Notifier interface {
	Notify(ctx context.Context, target Target) error
}
