package samples

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cwobiora/oncoflow/internal/ctxlog"
)

// Discover scans a preprocessing output tree (one directory per sample, named
// "<pid>_Tumour" or "<pid>_Normal") and pairs tumour and normal directories
// by patient ID. Tumour directories without a matching normal are logged and
// dropped; they cannot enter a matched-pair pipeline.
func Discover(ctx context.Context, baseDir string) ([]Sample, error) {
	logger := ctxlog.FromContext(ctx)

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return nil, fmt.Errorf("scanning sample directory %s: %w", baseDir, err)
	}

	normals := make(map[string]string)
	tumours := make(map[string]string)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		path := filepath.Join(baseDir, name)
		switch {
		case strings.HasSuffix(name, "_Normal"):
			normals[strings.TrimSuffix(name, "_Normal")] = path
		case strings.HasSuffix(name, "_Tumour"):
			tumours[strings.TrimSuffix(name, "_Tumour")] = path
		case strings.HasSuffix(name, "_Tumor"):
			tumours[strings.TrimSuffix(name, "_Tumor")] = path
		}
	}

	var pairs []Sample
	for pid, tumourDir := range tumours {
		normalDir, ok := normals[pid]
		if !ok {
			logger.Warn("Tumour sample has no matching normal, skipping.", "sample", pid)
			continue
		}
		pairs = append(pairs, Sample{ID: pid, Tumour: tumourDir, Normal: normalDir})
	}
	sortByID(pairs)

	logger.Info("Sample discovery complete.", "dir", baseDir, "pairs", len(pairs))
	return pairs, nil
}
