// Package graph is the workflow DAG: an arena of nodes plus an
// insertion-order index, with per-node branch-keyed adjacency lists.
package graph

import (
	"fmt"

	"github.com/lyzr/flowkernel/internal/kernelnode"
)

const DefaultBranch = "default"

// Node is one vertex: an id, its concrete behavior+config, and a
// branch-key-ordered adjacency list. next preserves edge insertion order
// within a key, and multiple edges sharing a key accumulate rather than
// overwrite — required so parallel fan-out is representable.
type Node struct {
	ID       string
	Instance kernelnode.Node
	next     map[string][]string // branch key -> ordered neighbor ids
	nextKeys []string            // branch keys in first-seen order
}

// Graph is the arena: a node id -> Node map plus an index slice that
// preserves insertion order for deterministic traversal (first_node,
// find_loops).
type Graph struct {
	nodes map[string]*Node
	order []string // node ids in insertion order
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// AddNode adds a vertex. It fails if id already exists.
func (g *Graph) AddNode(id string, instance kernelnode.Node) error {
	if _, exists := g.nodes[id]; exists {
		return fmt.Errorf("graph: node %q already exists", id)
	}
	g.nodes[id] = &Node{
		ID:       id,
		Instance: instance,
		next:     make(map[string][]string),
	}
	g.order = append(g.order, id)
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns every node id, in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int { return len(g.nodes) }

// Connect appends `to` onto `from`'s branch-key adjacency list. Both
// nodes must already exist. Repeated calls with the same (from, to, key)
// append rather than collapse, so unlabelled fan-out is preserved.
func (g *Graph) Connect(from, to, key string) error {
	if key == "" {
		key = DefaultBranch
	}
	fromNode, ok := g.nodes[from]
	if !ok {
		return fmt.Errorf("graph: connect: source node %q does not exist", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("graph: connect: target node %q does not exist", to)
	}
	if _, seen := fromNode.next[key]; !seen {
		fromNode.nextKeys = append(fromNode.nextKeys, key)
	}
	fromNode.next[key] = append(fromNode.next[key], to)
	return nil
}

// Neighbors returns a defensive copy of id's branch-key adjacency map.
func (g *Graph) Neighbors(id string) map[string][]string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	out := make(map[string][]string, len(n.next))
	for k, v := range n.next {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// BranchKeys returns id's declared branch keys in first-seen order.
func (g *Graph) BranchKeys(id string) []string {
	n, ok := g.nodes[id]
	if !ok {
		return nil
	}
	return append([]string(nil), n.nextKeys...)
}

// Upstream returns every node id with at least one edge into id.
func (g *Graph) Upstream(id string) []string {
	var out []string
	for _, nid := range g.order {
		n := g.nodes[nid]
	outer:
		for _, targets := range n.next {
			for _, t := range targets {
				if t == id {
					out = append(out, nid)
					break outer
				}
			}
		}
	}
	return out
}

// hasIncoming reports whether any edge targets id.
func (g *Graph) hasIncoming(id string) bool {
	for _, nid := range g.order {
		for _, targets := range g.nodes[nid].next {
			for _, t := range targets {
				if t == id {
					return true
				}
			}
		}
	}
	return false
}

// FirstNode picks, deterministically: the first declared node with no
// incoming edges; else the first declared Producer; else the first
// declared node overall.
func (g *Graph) FirstNode() (string, bool) {
	if len(g.order) == 0 {
		return "", false
	}
	for _, id := range g.order {
		if !g.hasIncoming(id) {
			return id, true
		}
	}
	for _, id := range g.order {
		if _, ok := g.nodes[id].Instance.(kernelnode.Producer); ok {
			return id, true
		}
	}
	return g.order[0], true
}

// Producers returns every node whose instance satisfies Producer, in
// declared order.
func (g *Graph) Producers() []string {
	var out []string
	for _, id := range g.order {
		if _, ok := g.nodes[id].Instance.(kernelnode.Producer); ok {
			out = append(out, id)
		}
	}
	return out
}

// Loop pairs a producer with the terminator FindLoops resolved for it.
type Loop struct {
	Producer   string
	Terminator string
}

// FindLoops walks forward from each producer, in branch-key-`default`
// (falling back to the first available branch) order, until it hits a
// NonBlocking node — the terminator — or revisits a node, which cuts the
// walk off with the caller expected to log a warning (FindLoops itself
// just omits that pair from the result; callers render the log line).
func (g *Graph) FindLoops() ([]Loop, []string) {
	var loops []Loop
	var warnings []string

	for _, p := range g.Producers() {
		visited := map[string]bool{p: true}
		current := p
		for {
			n := g.nodes[current]
			next, ok := firstOf(n)
			if !ok {
				break
			}
			if visited[next] {
				warnings = append(warnings, fmt.Sprintf("graph: cycle detected while tracing loop from producer %q at node %q", p, next))
				break
			}
			visited[next] = true
			if _, ok := g.nodes[next].Instance.(kernelnode.NonBlocking); ok {
				loops = append(loops, Loop{Producer: p, Terminator: next})
				break
			}
			current = next
		}
	}
	return loops, warnings
}

func firstOf(n *Node) (string, bool) {
	if list, ok := n.next[DefaultBranch]; ok && len(list) > 0 {
		return list[0], true
	}
	for _, k := range n.nextKeys {
		if list := n.next[k]; len(list) > 0 {
			return list[0], true
		}
	}
	return "", false
}
