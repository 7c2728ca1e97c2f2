// Package executor runs one stage's external process inside its declared
// isolation environment and converts the outcome into the completion-marker
// protocol: marker written on verified success, stage-scoped ExecutionError
// otherwise.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/cwobiora/oncoflow/internal/cache"
	"github.com/cwobiora/oncoflow/internal/config"
	"github.com/cwobiora/oncoflow/internal/ctxlog"
	"github.com/cwobiora/oncoflow/internal/fsutil"
	"github.com/cwobiora/oncoflow/internal/graph"
)

// Executor executes stage processes for one run.
type Executor struct {
	runtime config.RuntimeKind
	workdir string
	logsDir string
	tracker *cache.Tracker
}

// New creates an executor bound to the run context's runtime and working
// directory. Per-stage process logs land under <workdir>/logs.
func New(runCtx *config.RunContext, tracker *cache.Tracker) *Executor {
	return &Executor{
		runtime: runCtx.Runtime,
		workdir: runCtx.Workdir,
		logsDir: filepath.Join(runCtx.Workdir, "logs"),
		tracker: tracker,
	}
}

// LogPath returns the per-stage log file path for a node.
func (e *Executor) LogPath(node *graph.Node) string {
	return filepath.Join(e.logsDir, fsutil.SafeName(node.ID)+".log")
}

// Run executes one stage to completion. On success the stage's completion
// marker exists when Run returns; on any failure it does not (a prior run's
// marker is never removed here; re-verification is the cache tracker's job).
func (e *Executor) Run(ctx context.Context, node *graph.Node) error {
	logger := ctxlog.FromContext(ctx).With("stage", node.ID)

	if err := e.checkPreconditions(node); err != nil {
		return err
	}
	if err := e.prepareDirs(node); err != nil {
		return newError(node.ID, KindEnvironment, "", err)
	}

	argv, err := buildArgv(e.runtime, e.workdir, node)
	if err != nil {
		return newError(node.ID, KindEnvironment, "", err)
	}
	if e.runtime != config.RuntimeLocal && node.Image == "" {
		return newError(node.ID, KindEnvironment, "", fmt.Errorf("stage declares no container image"))
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return newError(node.ID, KindEnvironment, "", fmt.Errorf("runtime %q unavailable: %w", argv[0], err))
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if node.Resources.Walltime > 0 {
		runCtx, cancel = context.WithTimeout(ctx, node.Resources.Walltime)
		defer cancel()
	}

	logFile, err := os.Create(e.LogPath(node))
	if err != nil {
		return newError(node.ID, KindEnvironment, "", fmt.Errorf("creating stage log: %w", err))
	}
	defer logFile.Close()
	tail := newTailBuffer(4096)

	cmd := newCommand(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = io.MultiWriter(logFile, tail)
	cmd.Stderr = io.MultiWriter(logFile, tail)
	cmd.Env = e.processEnv(node)

	logger.Info("Launching stage process.", "runtime", string(e.runtime), "log", e.LogPath(node))
	logger.Debug("Stage argv resolved.", "argv", argv)

	runErr := cmd.Run()
	if runErr != nil {
		kind := KindExit
		switch {
		case runCtx.Err() != nil && ctx.Err() != nil:
			kind = KindCancelled
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			kind = KindTimeout
			runErr = fmt.Errorf("walltime %s exceeded", node.Resources.Walltime)
		}
		return newError(node.ID, kind, tail.Excerpt(), runErr)
	}

	if missing := e.missingOutputs(node); len(missing) > 0 {
		return newError(node.ID, KindMissingOutput, tail.Excerpt(),
			fmt.Errorf("process exited 0 but declared outputs are missing: %v", missing))
	}

	if err := e.tracker.WriteMarker(node); err != nil {
		return newError(node.ID, KindEnvironment, "", err)
	}
	logger.Info("Stage completed.", "marker", e.tracker.MarkerPath(node))
	return nil
}

// checkPreconditions verifies every declared input artifact is on disk. The
// scheduler guarantees upstream completion; a missing path at this point
// means the environment lost an artifact out from under the run.
func (e *Executor) checkPreconditions(node *graph.Node) error {
	for _, in := range node.Inputs {
		if !fsutil.Exists(in.Path) {
			return newError(node.ID, KindEnvironment, "",
				fmt.Errorf("input artifact %q not found at %s", in.Name, in.Path))
		}
	}
	return nil
}

func (e *Executor) prepareDirs(node *graph.Node) error {
	if err := os.MkdirAll(e.logsDir, 0755); err != nil {
		return fmt.Errorf("creating logs directory: %w", err)
	}
	for _, out := range node.Outputs {
		if err := os.MkdirAll(filepath.Dir(out.Path), 0755); err != nil {
			return fmt.Errorf("creating output directory for %q: %w", out.Name, err)
		}
	}
	return nil
}

// processEnv builds the host process environment. Stage configuration never
// travels through the orchestrator's ambient environment: container runtimes
// receive values through explicit flags (see runtime.go), and only the local
// runtime injects them into the process directly.
func (e *Executor) processEnv(node *graph.Node) []string {
	env := []string{"PATH=" + os.Getenv("PATH")}
	if home := os.Getenv("HOME"); home != "" {
		env = append(env, "HOME="+home)
	}
	if e.runtime == config.RuntimeLocal {
		env = append(env, envPairs(node)...)
	}
	return env
}

func (e *Executor) missingOutputs(node *graph.Node) []string {
	var missing []string
	for _, out := range node.Outputs {
		if !fsutil.Exists(out.Path) {
			missing = append(missing, out.Name)
		}
	}
	return missing
}
