package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/reedwoodruff/molecule-schema-sub000/internal/digest"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/ir"
	"github.com/reedwoodruff/molecule-schema-sub000/internal/specialize"
)

// CycleWarning represents a cycle of required slots.
//
// Cycles are warnings, not errors, because they are legal: a cycle can be
// built in one blueprint by naming its members with temporary ids. A cycle
// can never be built one instance at a time, and its members can only be
// deleted together.
type CycleWarning struct {
	Path    []string `json:"path"`    // Operative names: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles finds operatives that require each other.
//
// The algorithm:
//  1. Build operative → operative edges for every admitted target of a slot
//     whose effective bound requires at least one edge
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// An acyclic schema returns an empty warning list.
func AnalyzeCycles(s *ir.Schema) []CycleWarning {
	graph := buildRequirementGraph(s)

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int { return strings.Compare(a.Path[0], b.Path[0]) })
	if warnings == nil {
		return []CycleWarning{}
	}
	return warnings
}

// requirementGraph maps operative name → operatives it requires, sorted.
type requirementGraph map[string][]string

func buildRequirementGraph(s *ir.Schema) requirementGraph {
	graph := make(requirementGraph)
	r := digest.NewResolver()
	ops := ir.SortedKeys(s.Operatives)
	for _, id := range ops {
		name := s.Operatives[id].Tag.Name
		graph[name] = []string{}
		slots, err := specialize.Slots(s, id)
		if err != nil {
			continue
		}
		seen := make(map[string]bool)
		for _, slotID := range ir.SortedKeys(slots) {
			c := slots[slotID]
			if c.Bound.Min() < 1 {
				continue
			}
			for _, cand := range ops {
				ok, err := c.Admits(s, r, cand)
				if err != nil || !ok {
					continue
				}
				target := s.Operatives[cand].Tag.Name
				if !seen[target] {
					seen[target] = true
					graph[name] = append(graph[name], target)
				}
			}
		}
		slices.Sort(graph[name])
	}
	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph requirementGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in name order so the result is deterministic.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph requirementGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	slices.Sort(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph requirementGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("operative %s requires an instance of itself", name),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("required slots form a cycle; build its members in one blueprint: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: start at the first (smallest) member, follow edges to other SCC
// members, and stop on returning to the start.
func reconstructCyclePath(scc []string, graph requirementGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && !visited[neighbor] {
				next = neighbor
				break
			}
		}
		if next == "" && slices.Contains(graph[current], start) {
			next = start
		}
		if next == "" {
			break
		}

		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}

	return path
}
