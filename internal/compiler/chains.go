package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ajgabz/mpf/internal/ir"
)

// ChainWarning reports a group of blocks whose emitted events feed each
// other's progress events.
//
// Chains are warnings, not errors: a loop through a counter with a finite
// target terminates on its own. Loops that do not terminate are stopped at
// runtime by cycle detection.
type ChainWarning struct {
	Path    []string `json:"path"`    // e.g. ["counter1", "accrual2", "counter1"]
	Events  []string `json:"events"`  // event carried by each edge of Path
	Message string   `json:"message"` // human readable description
	Level   string   `json:"level"`   // "warning"
}

// AnalyzeChains performs static analysis of block-to-block event chains.
//
// It builds a graph with an edge A -> B whenever A can emit an event that
// drives B's progress (step or count events), finds strongly connected
// components with Tarjan's algorithm and reports every component with more
// than one block, or a single block feeding itself, as a warning.
//
// Warnings are ordered by their first block name so output is stable.
func AnalyzeChains(defs []ir.BlockDef) []ChainWarning {
	if len(defs) == 0 {
		return []ChainWarning{}
	}

	graph, labels := buildChainGraph(defs)
	sccs := tarjanSCC(graph)

	warnings := []ChainWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, sccToWarning(scc, graph, labels))
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Path[0] < warnings[j].Path[0]
	})
	return warnings
}

// chainGraph maps block name -> blocks its emissions can drive, sorted.
type chainGraph map[string][]string

// buildChainGraph constructs the emitter -> consumer graph together with
// the event that labels each edge.
func buildChainGraph(defs []ir.BlockDef) (chainGraph, map[[2]string]string) {
	consumers := make(map[string][]string)
	for _, d := range defs {
		for _, e := range d.ProgressEvents() {
			consumers[e] = append(consumers[e], d.Name)
		}
	}

	graph := make(chainGraph)
	labels := make(map[[2]string]string)
	for _, d := range defs {
		if graph[d.Name] == nil {
			graph[d.Name] = []string{}
		}
		targets := map[string]bool{}
		for _, e := range d.EmittedEvents() {
			for _, c := range consumers[e] {
				if !targets[c] {
					targets[c] = true
					labels[[2]string{d.Name, c}] = e
				}
			}
		}
		for c := range targets {
			graph[d.Name] = append(graph[d.Name], c)
		}
		sort.Strings(graph[d.Name])
	}
	return graph, labels
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph chainGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order for deterministic results.
func tarjanSCC(graph chainGraph) [][]string {
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
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

func sccToWarning(scc []string, graph chainGraph, labels map[[2]string]string) ChainWarning {
	sort.Strings(scc)
	var path []string
	if len(scc) == 1 {
		path = []string{scc[0], scc[0]}
	} else {
		path = reconstructCyclePath(scc, graph)
	}

	events := make([]string, 0, len(path)-1)
	for i := 0; i+1 < len(path); i++ {
		events = append(events, labels[[2]string{path[i], path[i+1]}])
	}

	var b strings.Builder
	b.WriteString(path[0])
	for i, e := range events {
		fmt.Fprintf(&b, " -(%s)-> %s", e, path[i+1])
	}
	msg := "potential event chain loop: " + b.String()
	if len(scc) == 1 {
		msg = "block feeds its own progress events: " + b.String()
	}

	return ChainWarning{Path: path, Events: events, Message: msg, Level: "warning"}
}

// reconstructCyclePath walks edges inside the SCC from its first member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph chainGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, node := range scc {
		members[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
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
