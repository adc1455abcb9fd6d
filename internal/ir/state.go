package ir

import "fmt"

// State is the last-known-applied state of an environment as confirmed
// by the provider. It is created on first apply, mutated on every apply,
// and removed only by an explicit destroy.
type State struct {
	Version     int              `json:"version"`
	Serial      int              `json:"serial"`
	Lineage     string           `json:"lineage"`
	Environment string           `json:"environment"`
	Resources   []*ResourceState `json:"resources"`
	Outputs     OutputSet        `json:"outputs"`
}

// ResourceState records the provider-assigned attributes of one resource.
type ResourceState struct {
	Type         string         `json:"type"`
	Name         string         `json:"name"`
	Provider     string         `json:"provider"`
	Inputs       map[string]any `json:"inputs"`  // as declared
	Outputs      map[string]any `json:"outputs"` // as assigned by the provider
	Dependencies []string       `json:"dependencies,omitempty"`
}

// Address returns the canonical resource address (type.name).
func (r *ResourceState) Address() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}

// OutputSet maps declared output names to values derived from applied
// state. It is recomputed after every successful apply and callers bind
// by name, never by position.
type OutputSet map[string]string

// NewState returns an empty state for an environment.
func NewState(environment string) *State {
	return &State{
		Version:     1,
		Serial:      0,
		Environment: environment,
		Outputs:     OutputSet{},
	}
}

// Lookup returns the resource state at the given address, if present.
func (s *State) Lookup(addr string) (*ResourceState, bool) {
	for _, res := range s.Resources {
		if res.Address() == addr {
			return res, true
		}
	}
	return nil, false
}

// Upsert records a resource state, replacing any existing entry with
// the same address.
func (s *State) Upsert(res *ResourceState) {
	for i, existing := range s.Resources {
		if existing.Address() == res.Address() {
			s.Resources[i] = res
			return
		}
	}
	s.Resources = append(s.Resources, res)
}

// Remove drops the resource state at the given address.
func (s *State) Remove(addr string) {
	for i, res := range s.Resources {
		if res.Address() == addr {
			s.Resources = append(s.Resources[:i], s.Resources[i+1:]...)
			return
		}
	}
}
