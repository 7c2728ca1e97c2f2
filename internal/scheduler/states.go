package scheduler

// State is the scheduler-owned lifecycle position of one stage instance.
// Transitions are driven exclusively by the control loop.
type State string

const (
	// StatePending means at least one predecessor has not finished.
	StatePending State = "pending"
	// StateReady means all predecessors finished but the stage has not been
	// dispatched, usually because the resource ledger has no room for it.
	StateReady State = "ready"
	// StateCachedComplete means a prior run's completion marker and outputs
	// were reused without dispatching the stage.
	StateCachedComplete State = "cached_complete"
	// StateRunning means the stage's process is executing.
	StateRunning State = "running"
	// StateCompleted means the stage's process succeeded in this run.
	StateCompleted State = "completed"
	// StateFailed means the stage's process was dispatched and failed.
	StateFailed State = "failed"
	// StateSkipped means the stage never ran because an ancestor failed or
	// the run was aborted.
	StateSkipped State = "skipped"
)

// finished reports whether the state satisfies downstream dependencies.
func (s State) finished() bool {
	return s == StateCompleted || s == StateCachedComplete
}

// terminal reports whether the state can no longer change this run.
func (s State) terminal() bool {
	return s.finished() || s == StateFailed || s == StateSkipped
}
