package executor

import "fmt"

// ErrorKind classifies why a stage execution failed.
type ErrorKind string

const (
	// KindExit marks a non-zero process exit.
	KindExit ErrorKind = "exit"
	// KindMissingOutput marks a zero exit that left declared outputs missing.
	KindMissingOutput ErrorKind = "missing_output"
	// KindTimeout marks a stage killed for exceeding its walltime.
	KindTimeout ErrorKind = "timeout"
	// KindCancelled marks a stage killed because the run was aborted.
	KindCancelled ErrorKind = "cancelled"
	// KindEnvironment marks an unusable execution environment: missing
	// runtime binary, missing image reference, absent input mounts.
	KindEnvironment ErrorKind = "environment"
)

// ExecutionError is a stage-scoped failure. It carries the stage identity and
// a bounded excerpt of the captured process log so the operator-visible
// report can name the root cause without digging through log files.
type ExecutionError struct {
	Stage   string
	Kind    ErrorKind
	Excerpt string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("stage %s failed (%s): %v", e.Stage, e.Kind, e.Err)
	}
	return fmt.Sprintf("stage %s failed (%s)", e.Stage, e.Kind)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func newError(stage string, kind ErrorKind, excerpt string, err error) *ExecutionError {
	return &ExecutionError{Stage: stage, Kind: kind, Excerpt: excerpt, Err: err}
}
