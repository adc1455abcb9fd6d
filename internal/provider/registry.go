package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/shiplift-io/shiplift/pkg/provider"
	"github.com/shiplift-io/shiplift/providers/aws"
	"github.com/shiplift-io/shiplift/providers/local"
)

// Registry manages the lifecycle of providers. Providers are built in;
// loading one twice is a no-op.
type Registry struct {
	mu        sync.RWMutex
	settings  map[string]string
	providers map[string]provider.Interface
}

// NewRegistry creates a registry. Settings (region, profile) are handed
// to every provider's Configure.
func NewRegistry(settings map[string]string) *Registry {
	return &Registry{
		settings:  settings,
		providers: make(map[string]provider.Interface),
	}
}

// Load initializes and registers a provider by name.
func (r *Registry) Load(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return nil
	}

	var p provider.Interface
	switch name {
	case "aws":
		p = aws.New()
	case "local":
		p = local.New()
	default:
		return fmt.Errorf("unknown provider: %s", name)
	}

	if err := p.Configure(ctx, r.settings); err != nil {
		return fmt.Errorf("failed to configure provider %s: %w", name, err)
	}

	r.providers[name] = p
	return nil
}

// Register installs a pre-built provider, replacing any existing entry.
// Used by tests to substitute fakes.
func (r *Registry) Register(name string, p provider.Interface) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
}

// Get returns a registered provider.
func (r *Registry) Get(name string) (provider.Interface, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider not loaded: %s", name)
	}
	return p, nil
}
