package scheduler

import (
	"context"

	"github.com/cwobiora/oncoflow/internal/ctxlog"
	"github.com/cwobiora/oncoflow/internal/graph"
)

// skipSuccessors marks every stage transitively reachable from a failed
// stage as skipped, each carrying a DependencyError naming the root cause.
// Skipped stages are never dispatched; independent branches keep running.
// There are no automatic retries: a failed run is re-invoked by the operator,
// typically with resume enabled so finished stages are reused.
func (s *Scheduler) skipSuccessors(ctx context.Context, failed *graph.Node, rootCause string) {
	logger := ctxlog.FromContext(ctx)
	stack := make([]*graph.Node, 0, len(failed.Succs))
	for _, succ := range failed.Succs {
		stack = append(stack, succ)
	}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if s.states[node.ID].terminal() {
			continue
		}
		depErr := &DependencyError{Stage: node.ID, Cause: rootCause}
		s.skips[node.ID] = depErr
		s.transition(node, StateSkipped, "dependency", depErr.Error())
		logger.Warn("Skipping stage, upstream failure.", "stage", node.ID, "cause", rootCause)
		for _, succ := range node.Succs {
			stack = append(stack, succ)
		}
	}
}

// skipRemaining marks every stage not yet in a terminal state as skipped.
// Called after an aborted run has drained its workers.
func (s *Scheduler) skipRemaining(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	for _, id := range s.graph.TopoOrder() {
		if s.states[id].terminal() || s.states[id] == StateRunning {
			continue
		}
		node := s.graph.Nodes[id]
		s.transition(node, StateSkipped, "cancelled", "run aborted")
		logger.Warn("Skipping stage, run aborted.", "stage", id)
	}
}
