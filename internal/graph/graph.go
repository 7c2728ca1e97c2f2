package graph

import (
	"fmt"
	"sort"

	"github.com/cwobiora/oncoflow/internal/config"
)

// Artifact is a resolved, path-addressable data unit: produced by exactly one
// node, read-only to every consumer. Paths are absolute.
type Artifact struct {
	Name string
	Path string
}

// Node is one executable stage instance. Per-sample stages contribute one
// node per sample; everything the executor needs (argv, env, paths, resource
// spec) is fully resolved at build time.
type Node struct {
	ID        string
	StageName string
	SampleID  string
	Image     string
	Command   []string
	Env       map[string]string
	Resources config.ResourceSpec

	Inputs  []Artifact
	Outputs []Artifact

	// BarrierArity is the declared upstream-completion count for join
	// stages, zero otherwise. By construction it always equals len(Preds)
	// for barrier nodes; the scheduler counts completions against it.
	BarrierArity int

	Preds map[string]*Node
	Succs map[string]*Node

	declIndex int
	depth     int
}

// Graph is the validated stage dependency graph for one run.
type Graph struct {
	Nodes map[string]*Node

	order     []string
	terminals []string
}

// TopoOrder returns all node IDs in a topological order that is stable with
// respect to declaration order: nodes are sorted by dependency depth first,
// then by the order their stages were declared.
func (g *Graph) TopoOrder() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// Terminals returns the nodes no other node depends on. The run verdict is
// judged on these.
func (g *Graph) Terminals() []*Node {
	out := make([]*Node, 0, len(g.terminals))
	for _, id := range g.terminals {
		out = append(out, g.Nodes[id])
	}
	return out
}

// Node returns the node with the given ID.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.Nodes[id]
	return n, ok
}

// nodeID builds the canonical instance ID for a stage, optionally scoped to
// a sample.
func nodeID(stageName, sampleID string) string {
	if sampleID == "" {
		return "stage." + stageName
	}
	return fmt.Sprintf("stage.%s[%s]", stageName, sampleID)
}

// finalize computes dependency depths, the stable topological order and the
// terminal set. Callers must have validated acyclicity first.
func (g *Graph) finalize() {
	var depth func(n *Node) int
	memo := make(map[string]int, len(g.Nodes))
	depth = func(n *Node) int {
		if d, ok := memo[n.ID]; ok {
			return d
		}
		d := 0
		for _, pred := range n.Preds {
			if pd := depth(pred) + 1; pd > d {
				d = pd
			}
		}
		memo[n.ID] = d
		return d
	}

	ids := make([]string, 0, len(g.Nodes))
	for id, n := range g.Nodes {
		n.depth = depth(n)
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		a, b := g.Nodes[ids[i]], g.Nodes[ids[j]]
		if a.depth != b.depth {
			return a.depth < b.depth
		}
		if a.declIndex != b.declIndex {
			return a.declIndex < b.declIndex
		}
		return a.SampleID < b.SampleID
	})
	g.order = ids

	g.terminals = g.terminals[:0]
	for _, id := range ids {
		if len(g.Nodes[id].Succs) == 0 {
			g.terminals = append(g.terminals, id)
		}
	}
}
