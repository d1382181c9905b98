package network

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/cpcflow/internal/graph"
)

// Cycle is a dependency cycle between declared instances.
type Cycle struct {
	Path    []string `json:"path"` // ["a", "b", "a"]
	Message string   `json:"message"`
}

// Cycles performs static cycle analysis on a definition. The graph rejects
// the first connection that closes a cycle; Cycles reports every cycle of
// the file at once.
//
// An edge runs from a source instance to a destination instance when an out
// port feeds an in or out port, the same rule the graph applies. Subnet
// ports never add edges. Each strongly connected component with more than
// one instance, and each self loop, is one cycle.
func Cycles(d *Definition) []Cycle {
	deps := buildDependencies(d)
	if len(deps) == 0 {
		return []Cycle{}
	}

	cycles := []Cycle{}
	for _, scc := range tarjanSCC(deps) {
		if len(scc) > 1 || hasSelfLoop(scc[0], deps) {
			cycles = append(cycles, sccToCycle(scc, deps))
		}
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i].Path[0] < cycles[j].Path[0] })
	return cycles
}

// dependencies maps an instance to the instances its outputs feed.
type dependencies map[string][]string

func buildDependencies(d *Definition) dependencies {
	deps := make(dependencies)
	for _, c := range d.Connections {
		if c.Src == "" {
			continue
		}
		src, err := graph.ParseEndpoint(c.Src)
		if err != nil {
			continue
		}
		dst, err := graph.ParseEndpoint(c.Dst)
		if err != nil {
			continue
		}
		if src.Dir != graph.DirOut || (dst.Dir != graph.DirIn && dst.Dir != graph.DirOut) {
			continue
		}
		if _, ok := deps[dst.Instance]; !ok {
			deps[dst.Instance] = nil
		}
		deps[src.Instance] = append(deps[src.Instance], dst.Instance)
	}
	return deps
}

func hasSelfLoop(node string, deps dependencies) bool {
	for _, next := range deps[node] {
		if next == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in name order so the result is deterministic.
func tarjanSCC(deps dependencies) [][]string {
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

		for _, w := range deps[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is the root of a component
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

	nodes := make([]string, 0, len(deps))
	for node := range deps {
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

func sccToCycle(scc []string, deps dependencies) Cycle {
	sort.Strings(scc)
	if len(scc) == 1 {
		return Cycle{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("instance %s feeds itself", scc[0]),
		}
	}
	path := cyclePath(scc, deps)
	return Cycle{
		Path:    path,
		Message: "dependency cycle: " + strings.Join(path, " -> "),
	}
}

// cyclePath walks edges inside the component from its first member until
// it returns to the start.
func cyclePath(scc []string, deps dependencies) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, w := range deps[current] {
			if members[w] && (!visited[w] || w == start) {
				next = w
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
