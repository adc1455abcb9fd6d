// Package outputs resolves declared output values from applied state.
// Outputs are the contract a deployment exposes to later pipeline
// stages; an output the state cannot satisfy fails loudly rather than
// publishing an empty value.
package outputs

import (
	"fmt"
	"sort"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/ir"
)

// Publish resolves every declared output against state and returns the
// complete set. It fails with MISSING_OUTPUT when any declared output
// has no resource, no attribute, or an empty value: partial output sets
// are never returned.
func Publish(specs []*ir.OutputSpec, state *ir.State) (ir.OutputSet, error) {
	set := make(ir.OutputSet, len(specs))
	for _, spec := range specs {
		value, err := resolve(spec, state)
		if err != nil {
			return nil, err
		}
		set[spec.Name] = value
	}
	return set, nil
}

func resolve(spec *ir.OutputSpec, state *ir.State) (string, error) {
	res, ok := state.Lookup(spec.Resource)
	if !ok {
		return "", apperrors.Newf(apperrors.CodeMissingOutput,
			"output %q references resource %s which is not in state", spec.Name, spec.Resource).
			WithResource(spec.Resource).WithOperation("output")
	}

	raw, ok := res.Outputs[spec.Attribute]
	if !ok {
		return "", apperrors.Newf(apperrors.CodeMissingOutput,
			"output %q: resource %s has no attribute %q", spec.Name, spec.Resource, spec.Attribute).
			WithResource(spec.Resource).WithOperation("output")
	}

	value := fmt.Sprintf("%v", raw)
	if raw == nil || value == "" {
		return "", apperrors.Newf(apperrors.CodeMissingOutput,
			"output %q: attribute %q of %s is empty", spec.Name, spec.Attribute, spec.Resource).
			WithResource(spec.Resource).WithOperation("output")
	}
	return value, nil
}

// Names returns output names in stable sorted order, for rendering.
func Names(set ir.OutputSet) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
