// Package cache decides whether a stage's prior-run outputs can be reused.
//
// The cache key is the stage's completion marker: a zero-byte sentinel
// written only after the stage's process exited successfully and all declared
// outputs were present. Validity is presence-based, not content-based: a
// stage counts as cached because it previously finished, not because its
// upstream inputs are unchanged. This mirrors the sentinel semantics of the
// original pipeline drivers.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cwobiora/oncoflow/internal/fsutil"
	"github.com/cwobiora/oncoflow/internal/graph"
)

// Tracker resolves completion markers under one run directory.
type Tracker struct {
	stateDir string
}

// NewTracker creates a tracker rooted at the run working directory. Markers
// live under <workdir>/state.
func NewTracker(workdir string) *Tracker {
	return &Tracker{stateDir: filepath.Join(workdir, "state")}
}

// MarkerPath returns the deterministic marker path for a stage instance.
func (t *Tracker) MarkerPath(node *graph.Node) string {
	return filepath.Join(t.stateDir, fsutil.SafeName(node.ID)+".done")
}

// IsCached reports whether the stage instance completed in a prior run: its
// marker exists and every declared output artifact is still present on disk.
func (t *Tracker) IsCached(node *graph.Node) bool {
	if !fsutil.Exists(t.MarkerPath(node)) {
		return false
	}
	for _, out := range node.Outputs {
		if !fsutil.Exists(out.Path) {
			return false
		}
	}
	return true
}

// WriteMarker records a stage instance's successful completion. The marker is
// zero bytes; its presence is the whole signal.
func (t *Tracker) WriteMarker(node *graph.Node) error {
	if err := os.MkdirAll(t.stateDir, 0755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	if err := os.WriteFile(t.MarkerPath(node), nil, 0644); err != nil {
		return fmt.Errorf("writing completion marker for %s: %w", node.ID, err)
	}
	return nil
}
