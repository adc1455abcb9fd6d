package engine

import (
	"fmt"
	"strings"

	"github.com/shiplift-io/shiplift/internal/ir"
)

// refPrefix marks a property value that binds to another resource's
// attribute: ref://<type>/<name>/<attribute>. References order the apply
// (the referenced resource first) and are resolved against applied state
// just before the provider call.
const refPrefix = "ref://"

// DAG orders resources so that everything a resource references is
// applied before it (network rules before the instance that uses them).
type DAG struct {
	nodes    map[string]*dagNode
	order    []string
	revOrder []string
}

type dagNode struct {
	addr     string
	edges    []string // addresses this node depends on
	revEdges []string // addresses depending on this node
}

// BuildDAG constructs the dependency graph from a declaration's
// resources, honoring explicit DependsOn and implicit ref:// bindings.
func BuildDAG(resources []*ir.Resource) (*DAG, error) {
	dag := &DAG{nodes: make(map[string]*dagNode)}

	for _, res := range resources {
		dag.nodes[res.Address()] = &dagNode{addr: res.Address()}
	}

	for _, res := range resources {
		node := dag.nodes[res.Address()]
		for _, dep := range res.DependsOn {
			if _, ok := dag.nodes[dep]; !ok {
				return nil, fmt.Errorf("resource %s depends on unknown resource %s", res.Address(), dep)
			}
			node.edges = append(node.edges, dep)
		}
		for _, ref := range extractRefs(res.Properties) {
			depAddr, _ := splitRef(ref)
			if depAddr == "" {
				return nil, fmt.Errorf("resource %s has malformed reference %q", res.Address(), ref)
			}
			if _, ok := dag.nodes[depAddr]; ok {
				node.edges = append(node.edges, depAddr)
			}
		}
	}

	for addr, node := range dag.nodes {
		for _, dep := range node.edges {
			dag.nodes[dep].revEdges = append(dag.nodes[dep].revEdges, addr)
		}
	}

	order, err := dag.topoSort()
	if err != nil {
		return nil, err
	}
	dag.order = order
	dag.revOrder = reversed(order)
	return dag, nil
}

// CreationOrder returns addresses in dependency-respecting apply order.
func (d *DAG) CreationOrder() []string {
	return d.order
}

// DestructionOrder returns addresses in reverse dependency order.
func (d *DAG) DestructionOrder() []string {
	return d.revOrder
}

// Dependencies returns the direct dependencies of an address.
func (d *DAG) Dependencies(addr string) []string {
	if node, ok := d.nodes[addr]; ok {
		return node.edges
	}
	return nil
}

// topoSort is Kahn's algorithm; a leftover node means a cycle.
func (d *DAG) topoSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for addr, node := range d.nodes {
		inDegree[addr] = len(node.edges)
	}

	var queue []string
	for addr, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, addr)
		}
	}

	var sorted []string
	for len(queue) > 0 {
		addr := queue[0]
		queue = queue[1:]
		sorted = append(sorted, addr)

		for _, dependent := range d.nodes[addr].revEdges {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(d.nodes) {
		return nil, fmt.Errorf("dependency cycle detected in resource graph")
	}
	return sorted, nil
}

func reversed(order []string) []string {
	out := make([]string, len(order))
	for i, addr := range order {
		out[len(order)-1-i] = addr
	}
	return out
}

// extractRefs walks a property value collecting every ref:// string.
func extractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, refPrefix) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, item := range val {
			refs = append(refs, extractRefs(item)...)
		}
	case []any:
		for _, item := range val {
			refs = append(refs, extractRefs(item)...)
		}
	}
	return refs
}

// splitRef parses ref://aws:ec2.SecurityGroup/web/id into the address
// aws:ec2.SecurityGroup.web and the attribute id.
func splitRef(ref string) (addr, attribute string) {
	if !strings.HasPrefix(ref, refPrefix) {
		return "", ""
	}
	parts := strings.SplitN(ref[len(refPrefix):], "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", ""
	}
	return fmt.Sprintf("%s.%s", parts[0], parts[1]), parts[2]
}

// resolveProperties resolves a resource's properties against state,
// normalizing absent properties to an empty map.
func resolveProperties(res *ir.Resource, state *ir.State) map[string]any {
	if len(res.Properties) == 0 {
		return map[string]any{}
	}
	return resolveReferences(res.Properties, state).(map[string]any)
}

// resolveReferences substitutes ref:// values with attributes from
// applied state. Unresolvable references are left intact so the provider
// rejects them with context.
func resolveReferences(v any, state *ir.State) any {
	switch val := v.(type) {
	case string:
		if !strings.HasPrefix(val, refPrefix) {
			return val
		}
		addr, attribute := splitRef(val)
		if addr == "" {
			return val
		}
		res, ok := state.Lookup(addr)
		if !ok {
			return val
		}
		if out, ok := res.Outputs[attribute]; ok {
			return out
		}
		if in, ok := res.Inputs[attribute]; ok {
			return in
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = resolveReferences(item, state)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = resolveReferences(item, state)
		}
		return out
	default:
		return v
	}
}
