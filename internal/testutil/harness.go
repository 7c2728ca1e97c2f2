// Package testutil provides the shared harness for integration tests: it
// materializes an inline pipeline declaration into a temp directory and runs
// the full application against it with the local runtime.
package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cwobiora/oncoflow/internal/app"
	"github.com/cwobiora/oncoflow/internal/fsutil"
	"github.com/cwobiora/oncoflow/internal/hcl"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	Workdir   string
	// markers is the set of completion marker filenames present under the
	// state directory when this run finished. Snapshotting here keeps the
	// result tied to its own run even when a later run reuses the workdir.
	markers map[string]bool
}

func markerSnapshot(workdir string) map[string]bool {
	markers := map[string]bool{}
	entries, err := os.ReadDir(filepath.Join(workdir, "state"))
	if err != nil {
		return markers
	}
	for _, entry := range entries {
		markers[entry.Name()] = true
	}
	return markers
}

// RunPipelineTest runs one full pipeline execution with a default background
// context. files maps relative paths to contents; every .hcl file under
// pipeline/ is part of the declaration.
func RunPipelineTest(t *testing.T, files map[string]string, mut func(*app.Config)) *HarnessResult {
	t.Helper()
	return RunPipelineTestWithContext(context.Background(), t, files, mut)
}

// RunPipelineTestWithContext is RunPipelineTest with a caller-provided
// context, for cancellation tests.
func RunPipelineTestWithContext(ctx context.Context, t *testing.T, files map[string]string, mut func(*app.Config)) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	pipelineDir := filepath.Join(tmpDir, "pipeline")
	workdir := filepath.Join(tmpDir, "work")
	require.NoError(t, os.Mkdir(pipelineDir, 0755))

	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0644))
	}

	appConfig := &app.Config{
		PipelinePath: pipelineDir,
		Workdir:      workdir,
		Runtime:      "local",
		CeilingCpu:   8,
		LogLevel:     "debug",
		LogFormat:    "text",
		HistoryLimit: 20,
	}
	if mut != nil {
		mut(appConfig)
	}

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, hcl.NewLoader())
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			Workdir:   appConfig.Workdir,
			markers:   markerSnapshot(appConfig.Workdir),
		}
	}

	runErr := testApp.Run(ctx)

	if os.Getenv("ONCOFLOW_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		Workdir:   appConfig.Workdir,
		markers:   markerSnapshot(appConfig.Workdir),
	}
}

// MarkerExists reports whether a stage's completion marker was present under
// the harness working directory when the run finished.
func (r *HarnessResult) MarkerExists(id string) bool {
	return r.markers[fsutil.SafeName(id)+".done"]
}
