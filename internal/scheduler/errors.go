package scheduler

import (
	"fmt"
	"strings"

	"github.com/cwobiora/oncoflow/internal/config"
)

// ResourceError reports a stage whose declared resource spec exceeds the
// global ceiling even with nothing else running. It is raised before any
// stage executes; such a stage could never be dispatched.
type ResourceError struct {
	Stage    string
	Required config.ResourceSpec
	Ceiling  config.ResourceSpec
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("stage %s requires %d cpus / %d MB, exceeding the run ceiling of %d cpus / %d MB",
		e.Stage, e.Required.Cpus, e.Required.MemoryMB, e.Ceiling.Cpus, e.Ceiling.MemoryMB)
}

// DependencyError marks a stage that never ran because an ancestor failed.
// Cause names the root-cause stage, never an intermediate skipped one.
type DependencyError struct {
	Stage string
	Cause string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("stage %s skipped: upstream stage %s failed", e.Stage, e.Cause)
}

// StageFailure is one root-cause entry in a failed run's report.
type StageFailure struct {
	Stage   string
	Kind    string
	Excerpt string
}

// RunError is the terminal error of a run in which not every terminal stage
// finished. Failures lists originating failures only; skipped stages are
// symptoms and are not repeated here.
type RunError struct {
	Failures []StageFailure
}

func (e *RunError) Error() string {
	if len(e.Failures) == 0 {
		return "run incomplete: no terminal stage finished"
	}
	names := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		names[i] = fmt.Sprintf("%s (%s)", f.Stage, f.Kind)
	}
	return "run failed: " + strings.Join(names, ", ")
}
