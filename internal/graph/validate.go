package graph

import (
	"strings"

	"github.com/gammazero/toposort"

	"github.com/cwobiora/oncoflow/internal/config"
)

// validateBarriers checks every barrier node's declared arity against its
// resolved upstream count, and that per-sample barriers carry a pairing
// policy when they join fanned-out branches.
func (b *builder) validateBarriers() error {
	for _, s := range b.model.Stages {
		if s.Barrier == nil {
			continue
		}
		for _, node := range b.byStage[s.Name] {
			if got := len(node.Preds); got != s.Barrier.Arity {
				return config.Errorf("barrier stage %q declares arity %d but has %d upstream stages", node.ID, s.Barrier.Arity, got)
			}
			if b.barrierJoinsSamples(node) && s.Barrier.Join == "" {
				return config.Errorf("barrier stage %q joins per-sample branches without a declared pairing policy", s.Name)
			}
			if s.PerSample && s.Barrier.Join == config.JoinCross {
				return config.Errorf("barrier stage %q is per-sample and cannot use the cross pairing policy", s.Name)
			}
		}
	}
	return nil
}

func (b *builder) barrierJoinsSamples(node *Node) bool {
	for _, pred := range node.Preds {
		if pred.SampleID != "" {
			return true
		}
	}
	return false
}

// validateAcyclic runs a topological sort over the whole graph and rejects
// cycles and disconnected losses.
func (b *builder) validateAcyclic() error {
	var edges []toposort.Edge
	for id, node := range b.graph.Nodes {
		if len(node.Preds) == 0 {
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for predID := range node.Preds {
			edges = append(edges, toposort.Edge{predID, id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return config.Errorf("dependency cycle: %v", err)
	}

	count := 0
	for _, id := range sorted {
		if id != nil {
			count++
		}
	}
	if count != len(b.graph.Nodes) {
		var missing []string
		found := make(map[any]bool, count)
		for _, id := range sorted {
			found[id] = true
		}
		for id := range b.graph.Nodes {
			if !found[id] {
				missing = append(missing, id)
			}
		}
		return config.Errorf("topological sort lost %d stages: %s", len(missing), strings.Join(missing, ", "))
	}
	return nil
}
