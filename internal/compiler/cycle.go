package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/cellgram/internal/ir"
)

// InheritanceWarning reports a cycle among inherit rules.
//
// Cycles are warnings, not errors: ancestor closure stops at the first
// repeated type, so a cyclic grammar still compiles. Every type on the cycle
// inherits the rules of every other.
type InheritanceWarning struct {
	Path    []string `json:"path"`    // e.g. ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeInheritance finds cycles in the child → parent graph of inherit
// rules.
//
// The algorithm:
//  1. Build the child → parents graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-loop
//
// Nodes and edges are visited in sorted order so the warnings are stable.
func AnalyzeInheritance(rules []*ir.Rule) []InheritanceWarning {
	graph := buildInheritanceGraph(rules)
	if len(graph) == 0 {
		return nil
	}

	var warnings []InheritanceWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, sccToWarning(scc, graph))
		}
	}
	return warnings
}

// inheritanceGraph maps child type → parent types, sorted and de-duplicated.
type inheritanceGraph map[string][]string

func buildInheritanceGraph(rules []*ir.Rule) inheritanceGraph {
	graph := make(inheritanceGraph)
	for _, r := range rules {
		if r.Kind != ir.RuleInherit || r.Child == "" {
			continue
		}
		graph[r.Child] = append(graph[r.Child], r.Parents...)
		for _, p := range r.Parents {
			if _, ok := graph[p]; !ok {
				graph[p] = nil
			}
		}
	}
	for node, edges := range graph {
		slices.Sort(edges)
		graph[node] = slices.Compact(edges)
	}
	return graph
}

func (g inheritanceGraph) nodes() []string {
	nodes := make([]string, 0, len(g))
	for n := range g {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	return nodes
}

func hasSelfLoop(node string, graph inheritanceGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC returns the strongly connected components of graph. Each SCC is
// sorted; single-node SCCs without self-loops are not cycles.
func tarjanSCC(graph inheritanceGraph) [][]string {
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

		// v is a root: pop its component.
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

	for _, node := range graph.nodes() {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToWarning(scc []string, graph inheritanceGraph) InheritanceWarning {
	if len(scc) == 1 {
		return InheritanceWarning{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("type %s inherits from itself", scc[0]),
			Level:   "warning",
		}
	}
	path := cyclePath(scc, graph)
	return InheritanceWarning{
		Path:    path,
		Message: fmt.Sprintf("inheritance cycle: %s", strings.Join(path, " -> ")),
		Level:   "warning",
	}
}

// cyclePath walks from the smallest member of the SCC along edges inside the
// SCC until it returns to the start.
func cyclePath(scc []string, graph inheritanceGraph) []string {
	start := scc[0]
	current := start
	path := []string{current}
	visited := map[string]bool{}

	for {
		visited[current] = true
		var next string
		for _, p := range graph[current] {
			if slices.Contains(scc, p) && (!visited[p] || p == start) {
				next = p
				break
			}
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
