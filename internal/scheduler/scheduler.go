// Package scheduler drives a validated stage graph to completion: it owns the
// per-stage state machine, computes the ready set, dispatches stages to the
// executor inside the global resource ceiling, and turns failures into
// downstream skip decisions and a terminal run verdict.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/cwobiora/oncoflow/internal/cache"
	"github.com/cwobiora/oncoflow/internal/config"
	"github.com/cwobiora/oncoflow/internal/ctxlog"
	"github.com/cwobiora/oncoflow/internal/events"
	"github.com/cwobiora/oncoflow/internal/executor"
	"github.com/cwobiora/oncoflow/internal/graph"
)

// Runner executes one stage instance to completion. Satisfied by
// *executor.Executor; tests substitute their own.
type Runner interface {
	Run(ctx context.Context, node *graph.Node) error
}

// Scheduler is the coordinating control loop for one run. Not safe for
// concurrent use; all state transitions happen on the goroutine calling Run.
type Scheduler struct {
	graph   *graph.Graph
	runner  Runner
	tracker *cache.Tracker
	bus     *events.Bus
	runID   string
	resume  bool

	states   map[string]State
	ledger   *ledger
	failures []StageFailure
	skips    map[string]*DependencyError
}

// completion is a worker's report back to the control loop.
type completion struct {
	id  string
	err error
}

// New creates a scheduler over a built graph. Every node starts pending.
func New(g *graph.Graph, runner Runner, tracker *cache.Tracker, bus *events.Bus, runCtx *config.RunContext, runID string) *Scheduler {
	states := make(map[string]State, len(g.Nodes))
	for id := range g.Nodes {
		states[id] = StatePending
	}
	return &Scheduler{
		graph:   g,
		runner:  runner,
		tracker: tracker,
		bus:     bus,
		runID:   runID,
		resume:  runCtx.Resume,
		states:  states,
		ledger:  newLedger(runCtx.Ceiling),
		skips:   make(map[string]*DependencyError),
	}
}

// Run executes the graph. It returns nil when every terminal stage finished,
// a *ResourceError before any execution when a stage could never fit the
// ceiling, and a *RunError naming the root-cause failures otherwise.
//
// The loop suspends only while at least one stage is outstanding; it never
// waits on a specific stage. Cancelling ctx kills running stage processes,
// records them as failed, and skips everything not yet dispatched.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.validateCeiling(); err != nil {
		return err
	}

	completions := make(chan completion)
	running := 0
	for {
		if ctx.Err() == nil {
			running += s.dispatch(ctx, completions)
		}
		if running == 0 {
			break
		}
		c := <-completions
		running--
		s.ledger.release(s.graph.Nodes[c.id].Resources)
		s.handleCompletion(ctx, c)
	}

	if ctx.Err() != nil {
		s.skipRemaining(ctx)
	}
	return s.verdict()
}

// StateOf returns the recorded state of a stage instance.
func (s *Scheduler) StateOf(id string) State {
	return s.states[id]
}

// SkipCause returns the dependency error a stage was skipped with, if any.
func (s *Scheduler) SkipCause(id string) *DependencyError {
	return s.skips[id]
}

// validateCeiling rejects the run before any execution if some stage could
// never be dispatched even alone.
func (s *Scheduler) validateCeiling() error {
	for _, id := range s.graph.TopoOrder() {
		node := s.graph.Nodes[id]
		if !withinCeiling(node.Resources, s.ledger.ceiling) {
			return &ResourceError{Stage: id, Required: node.Resources, Ceiling: s.ledger.ceiling}
		}
	}
	return nil
}

// dispatch promotes every satisfied pending stage to ready and starts ready
// stages the ledger admits, in stable topological order. Cached stages
// resolve to cached_complete without a worker; because the scan follows
// topological order, a chain of cached stages resolves in a single pass.
// Returns the number of workers started.
func (s *Scheduler) dispatch(ctx context.Context, completions chan<- completion) int {
	logger := ctxlog.FromContext(ctx)
	started := 0
	for _, id := range s.graph.TopoOrder() {
		node := s.graph.Nodes[id]
		switch s.states[id] {
		case StatePending:
			if !s.satisfied(node) {
				continue
			}
			s.transition(node, StateReady, "", "")
		case StateReady:
			// Left over from an earlier pass; retry admission below.
		default:
			continue
		}

		if s.resume && s.tracker.IsCached(node) {
			s.transition(node, StateCachedComplete, "", "prior run outputs reused")
			logger.Info("Stage cached, reusing prior outputs.", "stage", id)
			continue
		}
		if !s.ledger.admits(node.Resources) {
			continue
		}

		s.ledger.reserve(node.Resources)
		s.transition(node, StateRunning, "", "")
		logger.Info("Dispatching stage.", "stage", id, "cpus", node.Resources.Cpus, "memory_mb", node.Resources.MemoryMB)
		started++
		go func() {
			completions <- completion{id: node.ID, err: s.runner.Run(ctx, node)}
		}()
	}
	return started
}

// satisfied reports whether every predecessor finished. Barrier stages count
// finished predecessors against their declared arity; arrival order is
// irrelevant. Completions only ever add to the ready set.
func (s *Scheduler) satisfied(node *graph.Node) bool {
	finished := 0
	for id := range node.Preds {
		if !s.states[id].finished() {
			return false
		}
		finished++
	}
	if node.BarrierArity > 0 {
		return finished == node.BarrierArity
	}
	return true
}

func (s *Scheduler) handleCompletion(ctx context.Context, c completion) {
	logger := ctxlog.FromContext(ctx)
	node := s.graph.Nodes[c.id]
	if c.err == nil {
		s.transition(node, StateCompleted, "", "")
		logger.Info("Stage completed.", "stage", c.id)
		return
	}

	kind, excerpt := classify(c.err)
	s.failures = append(s.failures, StageFailure{Stage: c.id, Kind: kind, Excerpt: excerpt})
	s.transition(node, StateFailed, kind, c.err.Error())
	logger.Error("Stage failed.", "stage", c.id, "kind", kind, "error", c.err)
	s.skipSuccessors(ctx, node, c.id)
}

func classify(err error) (kind, excerpt string) {
	var execErr *executor.ExecutionError
	if errors.As(err, &execErr) {
		return string(execErr.Kind), execErr.Excerpt
	}
	return "internal", ""
}

func (s *Scheduler) transition(node *graph.Node, to State, errorKind, detail string) {
	from := s.states[node.ID]
	s.states[node.ID] = to
	s.bus.Publish(events.StageEvent{
		RunID:     s.runID,
		Stage:     node.ID,
		From:      string(from),
		To:        string(to),
		ErrorKind: errorKind,
		Detail:    detail,
		Timestamp: time.Now(),
	})
}

// verdict judges the run on its terminal stages: success iff every one of
// them finished. A failed verdict reports originating failures only.
func (s *Scheduler) verdict() error {
	for _, node := range s.graph.Terminals() {
		if !s.states[node.ID].finished() {
			return &RunError{Failures: s.failures}
		}
	}
	return nil
}
