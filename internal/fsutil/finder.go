// Package fsutil provides small file system helpers shared across the orchestrator.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// FindFilesByExtension recursively searches the given root path for all files
// ending with the specified extension and returns their full paths in
// lexical walk order.
func FindFilesByExtension(rootPath string, extension string) ([]string, error) {
	if extension == "" {
		panic("extension must not be empty")
	}

	var files []string
	err := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), extension) {
			files = append(files, path)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return files, nil
}

// Exists reports whether the given path is present on disk.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SafeName maps a stage instance ID to a filesystem-safe file name component.
func SafeName(id string) string {
	replacer := strings.NewReplacer("/", "_", "[", ".", "]", "")
	return replacer.Replace(id)
}
