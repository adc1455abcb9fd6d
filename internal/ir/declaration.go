package ir

import "fmt"

// Declaration is the desired-state description for one environment.
// It is authored once per environment and treated as immutable for the
// duration of a plan/apply cycle.
type Declaration struct {
	Environment string         `mapstructure:"environment"`
	Region      string         `mapstructure:"region"`
	Resources   []*Resource    `mapstructure:"resources"`
	Outputs     []*OutputSpec  `mapstructure:"outputs"`
	Variables   map[string]any `mapstructure:"variables"`
}

// Resource describes a single managed resource.
type Resource struct {
	Type       string         `mapstructure:"type"` // e.g. "aws:ec2.Instance"
	Name       string         `mapstructure:"name"`
	Provider   string         `mapstructure:"provider"`
	DependsOn  []string       `mapstructure:"depends_on"`
	Properties map[string]any `mapstructure:"properties"`
}

// Address returns the canonical resource address (type.name).
func (r *Resource) Address() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

// OutputSpec declares a named output extracted from applied state.
// Downstream automation binds to Name; Resource/Attribute locate the value.
type OutputSpec struct {
	Name      string `mapstructure:"name"`
	Resource  string `mapstructure:"resource"` // resource address
	Attribute string `mapstructure:"attribute"`
}

// Validate checks structural invariants of a declaration before planning.
func (d *Declaration) Validate() error {
	if d.Environment == "" {
		return fmt.Errorf("declaration has no environment name")
	}
	seen := make(map[string]bool)
	for _, res := range d.Resources {
		if res.Name == "" {
			return fmt.Errorf("resource of type %s has no name", res.Type)
		}
		if res.Provider == "" {
			return fmt.Errorf("resource %s has no provider", res.Address())
		}
		addr := res.Address()
		if seen[addr] {
			return fmt.Errorf("duplicate resource address %s", addr)
		}
		seen[addr] = true
	}
	for _, out := range d.Outputs {
		if out.Name == "" {
			return fmt.Errorf("output with empty name")
		}
		if !seen[out.Resource] {
			return fmt.Errorf("output %s references unknown resource %s", out.Name, out.Resource)
		}
	}
	return nil
}
