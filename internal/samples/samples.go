// Package samples resolves the tumour/normal sample pairs a pipeline run
// operates on, either from an explicit YAML manifest or by scanning a
// preprocessing output tree for matched sample directories.
package samples

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Sample is one matched tumour/normal pair identified by patient ID.
type Sample struct {
	ID     string `yaml:"id"`
	Tumour string `yaml:"tumour"`
	Normal string `yaml:"normal"`
}

// manifest is the on-disk YAML shape of a sample sheet.
type manifest struct {
	Samples []Sample `yaml:"samples"`
}

// LoadManifest reads a samples.yaml manifest and returns its sample pairs in
// declaration order.
func LoadManifest(path string) ([]Sample, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sample manifest: %w", err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing sample manifest %s: %w", path, err)
	}

	seen := make(map[string]bool, len(m.Samples))
	for _, s := range m.Samples {
		if s.ID == "" {
			return nil, fmt.Errorf("sample manifest %s: sample with empty id", path)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("sample manifest %s: duplicate sample id %q", path, s.ID)
		}
		seen[s.ID] = true
		if s.Tumour == "" || s.Normal == "" {
			return nil, fmt.Errorf("sample manifest %s: sample %q must declare tumour and normal paths", path, s.ID)
		}
	}

	return m.Samples, nil
}

// sortByID orders samples deterministically for discovery results, where the
// filesystem gives no stable order.
func sortByID(pairs []Sample) {
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].ID < pairs[j].ID })
}
