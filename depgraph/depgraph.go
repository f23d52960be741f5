// Package depgraph orders named nodes by their declared dependencies.
//
// Given a set of nodes and "requires" edges it computes, for every node, the
// transitive set of nodes it requires, the transitive set of nodes that
// require it, and an integer weight such that sorting ascending by weight
// places every node after its dependencies. Cycles never fail resolution;
// nodes inside a cycle receive best-effort weights that are stable across
// repeated calls with the same input.
package depgraph

import (
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// Edge is a single parsed dependency declaration.
type Edge struct {
	// Name is the target node name.
	Name string

	// Constraint is the optional version constraint from the declaration.
	// It is informational only; resolution does not evaluate it.
	Constraint string
}

// Node holds the derived ordering data for one resolved node.
type Node struct {
	// Requires is the transitive set of names this node depends on.
	// It may contain names that were not part of the resolved node set.
	Requires mapset.Set[string]

	// RequiredBy is the transitive set of resolved nodes depending on this one.
	RequiredBy mapset.Set[string]

	// Weight orders nodes so that dependencies sort before dependents.
	// Leaves have weight 0.
	Weight int
}

// ParseDependency parses a raw dependency string of the form
// "name" or "name (constraint)".
func ParseDependency(raw string) Edge {
	raw = strings.TrimSpace(raw)
	if i := strings.IndexByte(raw, '('); i >= 0 {
		name := strings.TrimSpace(raw[:i])
		constraint := strings.TrimSpace(raw[i+1:])
		constraint = strings.TrimSuffix(constraint, ")")
		return Edge{Name: name, Constraint: strings.TrimSpace(constraint)}
	}
	return Edge{Name: raw}
}

// visit states for the depth-first walk.
const (
	unvisited = iota
	visiting
	visited
)

// Resolve computes ordering data for the given nodes. The order slice fixes
// the iteration order (declaration order) and must list every key in nodes;
// it is what keeps weights deterministic when the graph contains cycles.
func Resolve(nodes map[string][]Edge, order []string) map[string]*Node {
	result := make(map[string]*Node, len(nodes))
	for _, name := range order {
		result[name] = &Node{
			Requires:   mapset.NewSet[string](),
			RequiredBy: mapset.NewSet[string](),
		}
	}

	state := make(map[string]int, len(nodes))

	var visit func(name string)
	visit = func(name string) {
		state[name] = visiting
		node := result[name]
		weight := 0
		for _, edge := range nodes[name] {
			node.Requires.Add(edge.Name)
			dep, known := result[edge.Name]
			if !known {
				// Unknown targets are recorded but never ordered.
				continue
			}
			if state[edge.Name] == visiting {
				// Cycle: break the edge here. The mutual order of
				// co-cyclic nodes is decided by declaration order.
				continue
			}
			if state[edge.Name] == unvisited {
				visit(edge.Name)
			}
			node.Requires = node.Requires.Union(dep.Requires)
			if dep.Weight+1 > weight {
				weight = dep.Weight + 1
			}
		}
		node.Weight = weight
		state[name] = visited
	}

	for _, name := range order {
		if state[name] == unvisited {
			visit(name)
		}
	}

	// Invert the requires sets for resolved targets.
	for _, name := range order {
		for req := range result[name].Requires.Iter() {
			if target, ok := result[req]; ok {
				target.RequiredBy.Add(name)
			}
		}
	}

	return result
}
